package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/ws"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Stream follows the server's /ws feed.
type Stream struct {
	url   string
	token string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewStream derives the websocket URL from an http(s) base URL.
func NewStream(baseURL, token string) (*Stream, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", baseURL)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	return &Stream{url: u.String(), token: token}, nil
}

type connectedMsg struct{}

type disconnectedMsg struct{ err error }

type snapshotMsg struct{ payload ws.SnapshotPayload }

type deltaMsg struct{ payload ws.DeltaPayload }

type serverErrorMsg struct{ message string }

// Listen dials until connected or ctx is done, backing off between attempts.
func (s *Stream) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			header := http.Header{}
			if s.token != "" {
				header.Set("Authorization", "Bearer "+s.token)
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
			if err == nil {
				s.mu.Lock()
				s.conn = conn
				s.mu.Unlock()
				return connectedMsg{}
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			delay = min(delay*2, reconnectMaxDelay)
		}
	}
}

// ReadLoop returns the next snapshot, delta or error frame.
func (s *Stream) ReadLoop() tea.Cmd {
	return func() tea.Msg {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return disconnectedMsg{err: errors.New("no connection")}
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				s.mu.Lock()
				if s.conn == conn {
					s.conn = nil
				}
				s.mu.Unlock()
				conn.Close()
				return disconnectedMsg{err: err}
			}
			if msg := decodeFrame(data); msg != nil {
				return msg
			}
		}
	}
}

// Close drops the current connection.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func decodeFrame(data []byte) tea.Msg {
	var frame struct {
		Type    ws.MessageType  `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if json.Unmarshal(data, &frame) != nil {
		return nil
	}
	switch frame.Type {
	case ws.MsgSnapshot:
		var p ws.SnapshotPayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			return snapshotMsg{payload: p}
		}
	case ws.MsgDelta:
		var p ws.DeltaPayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			return deltaMsg{payload: p}
		}
	case ws.MsgError:
		var p ws.ErrorPayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			return serverErrorMsg{message: p.Message}
		}
	}
	return nil
}
