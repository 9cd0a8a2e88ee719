package whatsapp

import (
	"encoding/json"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow/types"
)

// Credentials is the subset of an uploaded credentials file needed to pick
// a paired device: either a multi-device auth state ("me.id") or a bare
// "jid" field.
type Credentials struct {
	Me struct {
		ID   string `json:"id"`
		Name string `json:"name,omitempty"`
	} `json:"me"`
	JID string `json:"jid"`
}

// ReadCredentials loads and decodes a credentials file.
func ReadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read credentials")
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "failed to parse credentials")
	}
	return &c, nil
}

// DeviceJID returns the account JID the credentials belong to.
func (c *Credentials) DeviceJID() (types.JID, error) {
	raw := c.Me.ID
	if raw == "" {
		raw = c.JID
	}
	if raw == "" {
		return types.EmptyJID, errors.New("credentials carry no account id")
	}
	jid, err := types.ParseJID(normalizeServer(raw))
	if err != nil {
		return types.EmptyJID, errors.Wrapf(err, "invalid account id %q", raw)
	}
	if jid.User == "" {
		return types.EmptyJID, errors.Errorf("invalid account id %q", raw)
	}
	return jid, nil
}

// TargetJID maps a recipient as typed by the user to a WhatsApp user JID.
// "<number>@c.us" and bare numbers become "<digits>@s.whatsapp.net"; other
// JIDs are parsed as-is.
func TargetJID(target string) (types.JID, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return types.EmptyJID, errors.New("empty target")
	}
	if user, ok := strings.CutSuffix(target, "@c.us"); ok {
		target = user
	}
	if strings.Contains(target, "@") {
		jid, err := types.ParseJID(target)
		if err != nil {
			return types.EmptyJID, errors.Wrapf(err, "invalid target %q", target)
		}
		return jid, nil
	}

	digits := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r):
			return r
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')':
			return -1
		default:
			return r
		}
	}, target)
	if digits == "" || strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return types.EmptyJID, errors.Errorf("invalid phone number %q", target)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

func normalizeServer(jid string) string {
	if user, ok := strings.CutSuffix(jid, "@c.us"); ok {
		return user + "@" + types.DefaultUserServer
	}
	return jid
}
