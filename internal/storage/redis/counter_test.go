package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestCounter(t *testing.T) *Counter {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	c, err := Dial(context.Background(), addr, "", 0, "wa:test:"+uuid.NewString()+":")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCounterIncrement(t *testing.T) {
	ctx := context.Background()
	c := dialTestCounter(t)
	t.Cleanup(func() { c.client.Del(ctx, c.key("s1")) })

	n, err := c.MessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.IncrementMessageCount(ctx, "s1"))
	}
	n, err = c.MessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, c.client.Del(ctx, c.key("s1")).Err())
	n, err = c.MessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCounterKeysArePrefixed(t *testing.T) {
	c := NewCounter(nil, "wa:session:")
	assert.Equal(t, "wa:session:abc", c.key("abc"))
}

func TestDialUnreachable(t *testing.T) {
	_, err := Dial(context.Background(), "127.0.0.1:1", "", 0, "x:")
	assert.Error(t, err)
}
