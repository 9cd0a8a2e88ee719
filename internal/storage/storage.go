// Package storage defines the persistence collaborators of the session
// registry: the session repository and the sent-message counter.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/session"
)

// ErrNotFound is returned when no session record exists for an id.
var ErrNotFound = errors.New("record not found")

// CounterStore persists the per-session sent-message count.
type CounterStore interface {
	IncrementMessageCount(ctx context.Context, sessionID string) error
	MessageCount(ctx context.Context, sessionID string) (int, error)
}

// Repository persists session configurations and upload records.
type Repository interface {
	CounterStore

	// SaveSession inserts the session or replaces its configuration. The
	// message count and creation time of an existing record are kept.
	SaveSession(ctx context.Context, s *session.Session) error
	GetSession(ctx context.Context, sessionID string) (*session.Session, error)
	SetActive(ctx context.Context, sessionID string, active bool) error
	ListSessions(ctx context.Context, activeOnly bool) ([]*session.Session, error)

	SaveUpload(ctx context.Context, u *session.Upload) error

	Close() error
}
