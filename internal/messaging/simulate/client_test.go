package simulate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-rotator/backend/internal/session"
)

func TestSendRecordsMessages(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(0, 0, zerolog.Nop())
	f.Record = true

	c, err := f.NewClient(ctx, &session.Session{SessionID: "s1"})
	require.NoError(t, err)
	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.SendMessage(ctx, "4071", "hello"))
	require.NoError(t, c.SendMessage(ctx, "4072", "world"))

	sent := f.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "s1", sent[0].SessionID)
	assert.Equal(t, "4071", sent[0].Target)
	assert.Equal(t, "world", sent[1].Body)
}

func TestSendsNotKeptByDefault(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(0, 0, zerolog.Nop())

	c, err := f.NewClient(ctx, &session.Session{SessionID: "s1"})
	require.NoError(t, err)
	require.NoError(t, c.Initialize(ctx))
	for i := 0; i < 100; i++ {
		require.NoError(t, c.SendMessage(ctx, "4071", "hello"))
	}

	assert.Empty(t, f.Sent())
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Nil(t, f.sent)
}

func TestSendBeforeInitializeFails(t *testing.T) {
	ctx := context.Background()
	c, err := NewFactory(0, 0, zerolog.Nop()).NewClient(ctx, &session.Session{SessionID: "s1"})
	require.NoError(t, err)
	assert.Error(t, c.SendMessage(ctx, "4071", "x"))
}

func TestSendAfterDestroyFails(t *testing.T) {
	ctx := context.Background()
	c, err := NewFactory(0, 0, zerolog.Nop()).NewClient(ctx, &session.Session{SessionID: "s1"})
	require.NoError(t, err)
	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Destroy(ctx))
	assert.Error(t, c.SendMessage(ctx, "4071", "x"))
}

func TestPhoneIDConnectionRequiresPhoneID(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(0, 0, zerolog.Nop())

	c, err := f.NewClient(ctx, &session.Session{SessionID: "s1", ConnectionType: session.ConnectPhoneID})
	require.NoError(t, err)
	assert.Error(t, c.Initialize(ctx))

	c, err = f.NewClient(ctx, &session.Session{SessionID: "s2", ConnectionType: session.ConnectPhoneID, PhoneID: "4071"})
	require.NoError(t, err)
	assert.NoError(t, c.Initialize(ctx))
}

func TestFailureRateOne(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(0, 1, zerolog.Nop())
	f.Record = true
	c, err := f.NewClient(ctx, &session.Session{SessionID: "s1"})
	require.NoError(t, err)
	require.NoError(t, c.Initialize(ctx))

	for i := 0; i < 5; i++ {
		assert.Error(t, c.SendMessage(ctx, "4071", "x"))
	}
	assert.Empty(t, f.Sent())
}

func TestLatencyHonoursContext(t *testing.T) {
	f := NewFactory(time.Hour, 0, zerolog.Nop())
	c, err := f.NewClient(context.Background(), &session.Session{SessionID: "s1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = c.Initialize(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
