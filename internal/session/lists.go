package session

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ParseTargets splits a comma separated recipient list, trimming whitespace
// and dropping empty entries.
func ParseTargets(raw string) []string {
	var targets []string
	for _, part := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(part); t != "" {
			targets = append(targets, t)
		}
	}
	return targets
}

// ParseMessages splits message text into one message per line. Carriage
// returns left by CRLF files are trimmed and blank lines are dropped.
func ParseMessages(text string) []string {
	var messages []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		messages = append(messages, line)
	}
	return messages
}

// LoadMessages resolves the message list for a session. Inline text wins
// over the file path when it contains anything but whitespace.
func LoadMessages(s *Session) ([]string, error) {
	var messages []string
	if strings.TrimSpace(s.MessageText) != "" {
		messages = ParseMessages(s.MessageText)
	} else {
		if s.MessagePath == "" {
			return nil, errors.Wrap(ErrMessageSourceUnavailable, "no message text and no message file")
		}
		data, err := os.ReadFile(s.MessagePath)
		if err != nil {
			return nil, errors.Wrapf(ErrMessageSourceUnavailable, "reading %s: %v", s.MessagePath, err)
		}
		messages = ParseMessages(string(data))
	}
	if len(messages) == 0 {
		return nil, ErrEmptyMessages
	}
	return messages, nil
}
