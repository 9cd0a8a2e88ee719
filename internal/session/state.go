package session

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// ConnectionType says how a session's messaging client finds its account.
type ConnectionType int

const (
	ConnectCredentials ConnectionType = iota
	ConnectPhoneID
)

var connectionNames = map[ConnectionType]string{
	ConnectCredentials: "creds",
	ConnectPhoneID:     "phoneId",
}

var connectionFromName = map[string]ConnectionType{
	"creds":   ConnectCredentials,
	"phoneId": ConnectPhoneID,
}

func (c ConnectionType) String() string {
	if s, ok := connectionNames[c]; ok {
		return s
	}
	return "unknown"
}

// ParseConnectionType maps the wire name to a ConnectionType. An empty name
// means credentials.
func ParseConnectionType(name string) (ConnectionType, error) {
	if name == "" {
		return ConnectCredentials, nil
	}
	if c, ok := connectionFromName[name]; ok {
		return c, nil
	}
	return 0, errors.Errorf("unknown connection type %q", name)
}

func (c ConnectionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ConnectionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseConnectionType(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// DefaultDelay is the send interval, in seconds, used when none is given.
const DefaultDelay = 10

// Session is the persisted configuration of one messaging campaign.
type Session struct {
	SessionID      string         `json:"sessionId"`
	PhoneNumber    string         `json:"phoneNumber"`
	ConnectionType ConnectionType `json:"connectionType"`
	PhoneID        string         `json:"phoneId,omitempty"`
	Targets        string         `json:"targets"`
	MessagePath    string         `json:"messagePath"`
	MessageText    string         `json:"messageText"`
	Delay          int            `json:"delay"`
	MessageCount   int            `json:"messageCount"`
	IsActive       bool           `json:"isActive"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Clone returns a copy of the session that can be mutated independently.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

// Health summarises recent send outcomes of a running session.
type Health string

const (
	Healthy  Health = "healthy"
	Degraded Health = "degraded"
	Failing  Health = "failing"
)

// Status is a point-in-time view of a running session's runtime state.
type Status struct {
	SessionID           string         `json:"sessionId"`
	ConnectionType      ConnectionType `json:"connectionMethod"`
	Delay               int            `json:"delay"`
	TargetCount         int            `json:"targetCount"`
	MessageTotal        int            `json:"messageTotal"`
	Sent                int            `json:"sent"`
	TargetIndex         int            `json:"targetIndex"`
	MessageIndex        int            `json:"messageIndex"`
	CurrentTarget       string         `json:"currentTarget"`
	StartedAt           time.Time      `json:"startedAt"`
	LastSentAt          *time.Time     `json:"lastSentAt,omitempty"`
	ConsecutiveFailures int            `json:"consecutiveFailures"`
	LastError           string         `json:"lastError,omitempty"`
	LastFailureAt       *time.Time     `json:"lastFailureAt,omitempty"`
	Health              Health         `json:"health"`
}

// Clone returns a deep copy of the Status.
func (s *Status) Clone() *Status {
	c := *s
	if s.LastSentAt != nil {
		t := *s.LastSentAt
		c.LastSentAt = &t
	}
	if s.LastFailureAt != nil {
		t := *s.LastFailureAt
		c.LastFailureAt = &t
	}
	return &c
}

// Upload records a file accepted through the upload endpoints.
type Upload struct {
	ID           int64     `json:"id"`
	OriginalName string    `json:"originalName"`
	StoragePath  string    `json:"storagePath"`
	FileType     string    `json:"fileType"`
	FileSize     int64     `json:"fileSize"`
	CreatedAt    time.Time `json:"createdAt"`
}
