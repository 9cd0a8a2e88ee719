package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-rotator/backend/internal/session"
)

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		host    string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "example.com", "", true},
		{"same host", nil, "example.com:8080", "http://example.com:8080", true},
		{"localhost", nil, "example.com", "http://localhost:5173", true},
		{"loopback v4", nil, "example.com", "http://127.0.0.1:3000", true},
		{"loopback v6", nil, "example.com", "http://[::1]:3000", true},
		{"foreign", nil, "example.com", "http://evil.test", false},
		{"garbage", nil, "example.com", "::::", false},
		{"allow-list exact", []string{"https://ops.example"}, "x", "https://ops.example", true},
		{"allow-list host match", []string{"https://ops.example"}, "x", "http://ops.example", true},
		{"allow-list excludes localhost", []string{"https://ops.example"}, "x", "http://localhost", false},
		{"blank entries ignored", []string{" ", ""}, "example.com", "http://evil.test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOriginChecker(tt.allowed)
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, o.Check(r))
		})
	}
}

func TestServeWSStreamsSnapshot(t *testing.T) {
	b := NewBroadcaster(func() []*session.Status {
		return []*session.Status{{SessionID: "live"}}
	}, 10*time.Millisecond, time.Hour, 0, zerolog.Nop())
	defer b.Stop()

	origins := NewOriginChecker(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.ServeWS(w, r, origins)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	typ, _ := readMessage(t, conn)
	assert.Equal(t, MsgSnapshot, typ)
	assert.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	b.QueueRemoval([]string{"live"})
	typ, _ = readMessage(t, conn)
	assert.Equal(t, MsgDelta, typ)

	conn.Close()
	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWSRejectsForeignOrigin(t *testing.T) {
	b := NewBroadcaster(func() []*session.Status { return nil }, time.Hour, time.Hour, 0, zerolog.Nop())
	defer b.Stop()

	origins := NewOriginChecker(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.ServeWS(w, r, origins)
	}))
	defer srv.Close()

	header := http.Header{"Origin": []string{"http://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, b.ClientCount())
}
