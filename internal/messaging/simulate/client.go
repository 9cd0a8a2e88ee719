// Package simulate provides a stand-in messaging client that logs sends
// instead of delivering them. It is used in development and demo mode.
package simulate

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/wa-rotator/backend/internal/messaging"
	"github.com/wa-rotator/backend/internal/session"
)

// Sent is one message accepted by a simulated client.
type Sent struct {
	SessionID string
	Target    string
	Body      string
	At        time.Time
}

// Factory builds simulated clients. Latency delays every send and
// FailureRate (0..1) is the probability a send fails. Sends are kept for
// Sent only when Record is set.
type Factory struct {
	Latency     time.Duration
	FailureRate float64
	Record      bool
	Log         zerolog.Logger

	mu   sync.Mutex
	rng  *rand.Rand
	sent []Sent
}

var _ messaging.Factory = (*Factory)(nil)

func NewFactory(latency time.Duration, failureRate float64, logger zerolog.Logger) *Factory {
	return &Factory{
		Latency:     latency,
		FailureRate: failureRate,
		Log:         logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (f *Factory) NewClient(_ context.Context, s *session.Session) (messaging.Client, error) {
	return &Client{
		factory:   f,
		sessionID: s.SessionID,
		connType:  s.ConnectionType,
		phoneID:   s.PhoneID,
		log:       f.Log.With().Str("session", s.SessionID).Logger(),
	}, nil
}

// Sent returns a copy of every message recorded by this factory's clients.
func (f *Factory) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sent, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *Factory) fail() bool {
	if f.FailureRate <= 0 {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rng == nil {
		f.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return f.rng.Float64() < f.FailureRate
}

func (f *Factory) record(s Sent) {
	if !f.Record {
		return
	}
	f.mu.Lock()
	f.sent = append(f.sent, s)
	f.mu.Unlock()
}

type Client struct {
	factory   *Factory
	sessionID string
	connType  session.ConnectionType
	phoneID   string
	log       zerolog.Logger

	mu        sync.Mutex
	connected bool
}

func (c *Client) Initialize(ctx context.Context) error {
	if c.connType == session.ConnectPhoneID && c.phoneID == "" {
		return errors.New("phoneId is required for phoneId connections")
	}
	if err := sleep(ctx, c.factory.Latency); err != nil {
		return err
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.log.Info().Str("connection", c.connType.String()).Msg("simulated client connected")
	return nil
}

func (c *Client) SendMessage(ctx context.Context, target, body string) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return errors.New("not connected")
	}
	if err := sleep(ctx, c.factory.Latency); err != nil {
		return err
	}
	if c.factory.fail() {
		return errors.Errorf("simulated delivery failure to %s", target)
	}
	c.factory.record(Sent{SessionID: c.sessionID, Target: target, Body: body, At: time.Now()})
	c.log.Debug().Str("target", target).Int("bytes", len(body)).Msg("simulated send")
	return nil
}

func (c *Client) Destroy(context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
