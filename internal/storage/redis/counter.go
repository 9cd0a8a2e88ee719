// Package redis keeps per-session message counters in Redis.
package redis

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/wa-rotator/backend/internal/storage"
)

// Counter stores each session's count under <prefix><sessionID>.
type Counter struct {
	client *redis.Client
	prefix string
}

var _ storage.CounterStore = (*Counter)(nil)

func NewCounter(client *redis.Client, prefix string) *Counter {
	return &Counter{client: client, prefix: prefix}
}

// Dial connects to addr and pings it before returning the counter.
func Dial(ctx context.Context, addr, password string, db int, prefix string) (*Counter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to reach redis at %s", addr)
	}
	return NewCounter(client, prefix), nil
}

func (c *Counter) key(sessionID string) string {
	return c.prefix + sessionID
}

func (c *Counter) IncrementMessageCount(ctx context.Context, sessionID string) error {
	if err := c.client.Incr(ctx, c.key(sessionID)).Err(); err != nil {
		return errors.Wrap(err, "failed to increment message count")
	}
	return nil
}

// MessageCount returns 0 for a session that has never sent.
func (c *Counter) MessageCount(ctx context.Context, sessionID string) (int, error) {
	val, err := c.client.Get(ctx, c.key(sessionID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to get message count")
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid message count %q", val)
	}
	return n, nil
}

func (c *Counter) Close() error {
	return c.client.Close()
}
