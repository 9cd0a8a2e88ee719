// Package registry owns the runtime state of every running session: its
// messaging client, its parsed lists, its rotation cursor and the ticker
// goroutine that sends on an interval.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/wa-rotator/backend/internal/messaging"
	"github.com/wa-rotator/backend/internal/session"
	"github.com/wa-rotator/backend/internal/storage"
)

// Observer receives runtime status changes. The websocket broadcaster
// implements it.
type Observer interface {
	QueueUpdate(statuses []*session.Status)
	QueueRemoval(sessionIDs []string)
}

type Options struct {
	// SendTimeout bounds a single send and the counter increment after it.
	SendTimeout time.Duration
	// FailureThreshold is the consecutive-failure count at which a session
	// reports itself as failing.
	FailureThreshold int
	// TickUnit is the duration of one unit of Session.Delay. Defaults to
	// one second.
	TickUnit time.Duration
	Observer Observer
	Logger   zerolog.Logger
}

type Registry struct {
	factory messaging.Factory
	counter storage.CounterStore
	opts    Options
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	lastGen uint64
}

// entry is the runtime record of one active session. The cursor and health
// fields change only by replacing the map value under Registry.mu.
type entry struct {
	id        string
	gen       uint64
	client    messaging.Client
	cancel    context.CancelFunc
	targets   []string
	messages  []string
	delay     int
	connType  session.ConnectionType
	startedAt time.Time
	cursor    Cursor
	sent      int
	health    sendHealth
}

func New(factory messaging.Factory, counter storage.CounterStore, opts Options) *Registry {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.TickUnit <= 0 {
		opts.TickUnit = time.Second
	}
	return &Registry{
		factory: factory,
		counter: counter,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "registry").Logger(),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Start validates the session, connects its client and begins sending every
// Delay seconds. A session already running under the same id is stopped
// first. Nothing is registered unless every step succeeds.
func (r *Registry) Start(ctx context.Context, s *session.Session) error {
	if err := session.ValidateID(s.SessionID); err != nil {
		return err
	}
	if err := r.Stop(ctx, s.SessionID); err == nil {
		r.log.Info().Str("session", s.SessionID).Msg("restarting running session")
	}

	targets := session.ParseTargets(s.Targets)
	if len(targets) == 0 {
		return errors.Wrapf(session.ErrEmptyTargets, "session %s", s.SessionID)
	}
	messages, err := session.LoadMessages(s)
	if err != nil {
		return errors.Wrapf(err, "session %s", s.SessionID)
	}
	if s.Delay <= 0 {
		return errors.Wrapf(session.ErrInvalidDelay, "session %s: delay %d", s.SessionID, s.Delay)
	}

	client, err := messaging.Open(ctx, r.factory, s)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		id:        s.SessionID,
		client:    client,
		cancel:    cancel,
		targets:   targets,
		messages:  messages,
		delay:     s.Delay,
		connType:  s.ConnectionType,
		startedAt: r.now(),
	}

	r.mu.Lock()
	r.lastGen++
	e.gen = r.lastGen
	evicted := r.entries[e.id]
	r.entries[e.id] = e
	status := e.status(r.opts.FailureThreshold)
	r.mu.Unlock()

	if evicted != nil {
		r.log.Warn().Str("session", e.id).Msg("concurrent start replaced a running session")
		r.teardown(ctx, evicted)
	}

	go r.run(loopCtx, e.id, e.gen, time.Duration(e.delay)*r.opts.TickUnit)

	r.log.Info().
		Str("session", e.id).
		Str("connection", e.connType.String()).
		Int("targets", len(targets)).
		Int("messages", len(messages)).
		Int("delay", e.delay).
		Msg("session started")
	r.queueUpdate(status)
	return nil
}

// Stop cancels the session's ticker, forgets it and destroys its client.
// A send already in flight is left to finish.
func (r *Registry) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return errors.Wrapf(session.ErrSessionNotFound, "session %s", id)
	}
	r.teardown(ctx, e)
	r.log.Info().Str("session", id).Int("sent", e.sent).Msg("session stopped")
	if r.opts.Observer != nil {
		r.opts.Observer.QueueRemoval([]string{id})
	}
	return nil
}

// StopAll stops every running session.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		entries = append(entries, e)
		ids = append(ids, id)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		r.teardown(ctx, e)
	}
	if len(ids) > 0 {
		r.log.Info().Int("count", len(ids)).Msg("stopped all sessions")
		if r.opts.Observer != nil {
			r.opts.Observer.QueueRemoval(ids)
		}
	}
}

func (r *Registry) teardown(ctx context.Context, e *entry) {
	e.cancel()
	if err := e.client.Destroy(ctx); err != nil {
		r.log.Warn().Err(err).Str("session", e.id).Msg("failed to destroy client")
	}
}

// Status returns a snapshot of a running session.
func (r *Registry) Status(id string) (*session.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.status(r.opts.FailureThreshold), true
}

// IsActive reports whether a session is running.
func (r *Registry) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// List returns snapshots of every running session ordered by id.
func (r *Registry) List() []*session.Status {
	r.mu.Lock()
	result := make([]*session.Status, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, e.status(r.opts.FailureThreshold))
	}
	r.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].SessionID < result[j].SessionID })
	return result
}

// Len returns the number of running sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) queueUpdate(s *session.Status) {
	if r.opts.Observer != nil && s != nil {
		r.opts.Observer.QueueUpdate([]*session.Status{s})
	}
}

// status builds a snapshot. Caller must hold Registry.mu.
func (e *entry) status(threshold int) *session.Status {
	s := &session.Status{
		SessionID:           e.id,
		ConnectionType:      e.connType,
		Delay:               e.delay,
		TargetCount:         len(e.targets),
		MessageTotal:        len(e.messages),
		Sent:                e.sent,
		TargetIndex:         e.cursor.TargetIndex,
		MessageIndex:        e.cursor.MessageIndex,
		CurrentTarget:       e.targets[e.cursor.TargetIndex],
		StartedAt:           e.startedAt,
		ConsecutiveFailures: e.health.consecutiveFailures,
		LastError:           e.health.lastErr,
		Health:              e.health.status(threshold),
	}
	if !e.health.lastSentAt.IsZero() {
		t := e.health.lastSentAt
		s.LastSentAt = &t
	}
	if !e.health.lastFailureAt.IsZero() {
		t := e.health.lastFailureAt
		s.LastFailureAt = &t
	}
	return s
}
