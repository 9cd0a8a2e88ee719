package session

import (
	"strings"

	"github.com/pkg/errors"
)

// Start, stop and send outcomes. Callers match them with errors.Is; the
// registry wraps them with the session id and the underlying cause.
var (
	ErrEmptyTargets             = errors.New("no valid targets")
	ErrEmptyMessages            = errors.New("no messages")
	ErrMessageSourceUnavailable = errors.New("message file unavailable")
	ErrInvalidDelay             = errors.New("delay must be a positive number of seconds")
	ErrClientInitialization     = errors.New("messaging client initialization failed")
	ErrSendFailure              = errors.New("message send failed")
	ErrSessionNotFound          = errors.New("session not found")
	ErrInvalidSessionID         = errors.New("invalid session id")
)

// IsStartValidation reports whether err was caused by the session's own
// configuration rather than by the messaging client.
func IsStartValidation(err error) bool {
	return errors.Is(err, ErrInvalidSessionID) ||
		errors.Is(err, ErrEmptyTargets) ||
		errors.Is(err, ErrEmptyMessages) ||
		errors.Is(err, ErrMessageSourceUnavailable) ||
		errors.Is(err, ErrInvalidDelay)
}

// ValidateID rejects ids that are empty or could escape a directory when
// used as a file name.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return errors.Wrapf(ErrInvalidSessionID, "%q", id)
	}
	return nil
}
