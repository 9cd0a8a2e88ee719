package registry

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/session"
)

// run fires once per interval until ctx is cancelled. time.Ticker drops
// ticks while fire is still sending, so a session never has two sends in
// flight.
func (r *Registry) run(ctx context.Context, id string, gen uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			r.fire(id, gen)
		}
	}
}

// fire sends the message under the cursor of generation gen of session id.
// It is a no-op if that generation is no longer registered.
func (r *Registry) fire(id string, gen uint64) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.gen != gen {
		r.mu.Unlock()
		return
	}
	client := e.client
	cursor := e.cursor
	target := e.targets[cursor.TargetIndex]
	body := e.messages[cursor.MessageIndex]
	r.mu.Unlock()

	// Detached from the session so Stop does not abort a send mid-flight.
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.SendTimeout)
	defer cancel()

	if err := client.SendMessage(ctx, target, body); err != nil {
		err = errors.Wrapf(session.ErrSendFailure, "to %s: %v", target, err)
		r.log.Error().Err(err).
			Str("session", id).
			Int("targetIndex", cursor.TargetIndex).
			Int("messageIndex", cursor.MessageIndex).
			Msg("send failed")
		r.recordFailure(id, gen, err)
		return
	}

	if err := r.counter.IncrementMessageCount(ctx, id); err != nil {
		r.log.Warn().Err(err).Str("session", id).Msg("failed to increment message count")
	}

	r.mu.Lock()
	cur, ok := r.entries[id]
	if !ok || cur.gen != gen {
		r.mu.Unlock()
		r.log.Debug().Str("session", id).Msg("send completed after stop")
		return
	}
	next := *cur
	next.cursor = cursor.Advance(len(cur.messages), len(cur.targets))
	next.sent++
	next.health.recordSuccess(r.now())
	r.entries[id] = &next
	status := next.status(r.opts.FailureThreshold)
	r.mu.Unlock()

	r.log.Debug().Str("session", id).Str("target", target).Msg("message sent")
	r.queueUpdate(status)
}

func (r *Registry) recordFailure(id string, gen uint64, err error) {
	r.mu.Lock()
	cur, ok := r.entries[id]
	if !ok || cur.gen != gen {
		r.mu.Unlock()
		return
	}
	next := *cur
	next.health.recordFailure(err, r.now())
	r.entries[id] = &next
	status := next.status(r.opts.FailureThreshold)
	r.mu.Unlock()

	r.queueUpdate(status)
}
