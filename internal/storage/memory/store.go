// Package memory is an in-process storage.Repository. Records are lost when
// the process exits.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/session"
	"github.com/wa-rotator/backend/internal/storage"
)

type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*session.Session
	uploads      []session.Upload
	nextUploadID int64
	now          func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]*session.Session),
		nextUploadID: 1,
		now:          time.Now,
	}
}

var _ storage.Repository = (*Store)(nil)

func (s *Store) SaveSession(_ context.Context, sess *session.Session) error {
	if sess.SessionID == "" {
		return errors.New("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	c := sess.Clone()
	if existing, ok := s.sessions[sess.SessionID]; ok {
		c.MessageCount = existing.MessageCount
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.sessions[sess.SessionID] = c

	sess.MessageCount = c.MessageCount
	sess.CreatedAt = c.CreatedAt
	sess.UpdatedAt = c.UpdatedAt
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	st.IsActive = active
	st.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) ListSessions(_ context.Context, activeOnly bool) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*session.Session, 0, len(s.sessions))
	for _, st := range s.sessions {
		if activeOnly && !st.IsActive {
			continue
		}
		result = append(result, st.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SessionID < result[j].SessionID })
	return result, nil
}

func (s *Store) IncrementMessageCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	st.MessageCount++
	st.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) MessageCount(_ context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return st.MessageCount, nil
}

func (s *Store) SaveUpload(_ context.Context, u *session.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.nextUploadID
	s.nextUploadID++
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.uploads = append(s.uploads, *u)
	return nil
}

// Uploads returns a copy of every recorded upload in insertion order.
func (s *Store) Uploads() []session.Upload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.Upload, len(s.uploads))
	copy(out, s.uploads)
	return out
}

func (s *Store) Close() error { return nil }
