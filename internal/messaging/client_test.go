package messaging

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wa-rotator/backend/internal/session"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Initialize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockClient) SendMessage(ctx context.Context, target, body string) error {
	return m.Called(ctx, target, body).Error(0)
}

func (m *mockClient) Destroy(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestOpenInitializes(t *testing.T) {
	c := &mockClient{}
	c.On("Initialize", mock.Anything).Return(nil)

	f := FactoryFunc(func(context.Context, *session.Session) (Client, error) { return c, nil })
	got, err := Open(context.Background(), f, &session.Session{SessionID: "s1"})
	require.NoError(t, err)
	assert.Same(t, c, got)
	c.AssertExpectations(t)
	c.AssertNotCalled(t, "Destroy", mock.Anything)
}

func TestOpenDestroysOnInitializeFailure(t *testing.T) {
	c := &mockClient{}
	c.On("Initialize", mock.Anything).Return(errors.New("no device"))
	c.On("Destroy", mock.Anything).Return(errors.New("already closed"))

	f := FactoryFunc(func(context.Context, *session.Session) (Client, error) { return c, nil })
	got, err := Open(context.Background(), f, &session.Session{SessionID: "s1"})
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrClientInitialization))
	assert.Contains(t, err.Error(), "no device")
	c.AssertExpectations(t)
}

func TestOpenWrapsFactoryError(t *testing.T) {
	f := FactoryFunc(func(context.Context, *session.Session) (Client, error) {
		return nil, errors.New("bad creds")
	})
	_, err := Open(context.Background(), f, &session.Session{SessionID: "s1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrClientInitialization))
	assert.Contains(t, err.Error(), "bad creds")
}
