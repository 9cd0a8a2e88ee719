// Package messaging defines the client contract the registry sends through.
// Concrete clients live in the whatsapp and simulate subpackages.
package messaging

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/wa-rotator/backend/internal/session"
)

// Client is one live connection to the messaging platform.
type Client interface {
	// Initialize connects the client. It must be called once before
	// SendMessage.
	Initialize(ctx context.Context) error
	SendMessage(ctx context.Context, target, body string) error
	// Destroy releases the connection. It is safe to call after a failed
	// Initialize.
	Destroy(ctx context.Context) error
}

// Factory builds an uninitialised client for a session.
type Factory interface {
	NewClient(ctx context.Context, s *session.Session) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, s *session.Session) (Client, error)

func (f FactoryFunc) NewClient(ctx context.Context, s *session.Session) (Client, error) {
	return f(ctx, s)
}

// Open builds and initialises a client. Any failure is wrapped in
// session.ErrClientInitialization and a half-built client is destroyed.
func Open(ctx context.Context, f Factory, s *session.Session) (Client, error) {
	client, err := f.NewClient(ctx, s)
	if err != nil {
		return nil, errors.Wrapf(session.ErrClientInitialization, "session %s: %v", s.SessionID, err)
	}
	if err := client.Initialize(ctx); err != nil {
		if derr := client.Destroy(ctx); derr != nil {
			log.Warn().Err(derr).Str("session", s.SessionID).Msg("destroy after failed initialize")
		}
		return nil, errors.Wrapf(session.ErrClientInitialization, "session %s: %v", s.SessionID, err)
	}
	return client, nil
}
