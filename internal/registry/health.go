package registry

import (
	"time"

	"github.com/wa-rotator/backend/internal/session"
)

// sendHealth tracks consecutive send failures for one running session.
// It is only touched while the registry lock is held.
type sendHealth struct {
	consecutiveFailures int
	lastErr             string
	lastFailureAt       time.Time
	lastSentAt          time.Time
}

func (h *sendHealth) recordSuccess(at time.Time) {
	h.consecutiveFailures = 0
	h.lastErr = ""
	h.lastSentAt = at
}

func (h *sendHealth) recordFailure(err error, at time.Time) {
	h.consecutiveFailures++
	h.lastErr = err.Error()
	h.lastFailureAt = at
}

// status is degraded after any failure and failing once the streak reaches
// threshold.
func (h *sendHealth) status(threshold int) session.Health {
	switch {
	case h.consecutiveFailures == 0:
		return session.Healthy
	case threshold > 0 && h.consecutiveFailures >= threshold:
		return session.Failing
	default:
		return session.Degraded
	}
}
