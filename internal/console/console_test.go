package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-rotator/backend/internal/api"
	"github.com/wa-rotator/backend/internal/session"
)

func TestClientFetchesSessionsWithToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"message":"unauthorized"}`))
			return
		}
		switch r.URL.Path {
		case "/api/whatsapp/sessions":
			json.NewEncoder(w).Encode(api.ListSessionsResponse{Sessions: []*session.Status{
				{SessionID: "s1", TargetCount: 2, MessageTotal: 3, CurrentTarget: "4071", Health: session.Healthy},
			}})
		case "/api/health":
			json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok", ActiveSessions: 1})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	list, err := c.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "s1", list.Sessions[0].SessionID)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.ActiveSessions)

	_, err = NewClient(srv.URL, "").Sessions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRenderTable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sent := now.Add(-7 * time.Second)

	out := Render(&api.HealthResponse{Status: "ok", UptimeSeconds: 90, ActiveSessions: 2}, []*session.Status{
		{SessionID: "alpha", Delay: 10, TargetCount: 2, MessageTotal: 3, CurrentTarget: "4071", Sent: 4, LastSentAt: &sent, Health: session.Healthy},
		{SessionID: "beta", ConnectionType: session.ConnectPhoneID, Delay: 5, TargetCount: 1, MessageTotal: 1,
			CurrentTarget: "4072", Health: session.Failing, LastError: "send timeout"},
	}, now)

	for _, want := range []string{"wa-rotator", "up 1m30s", "2 active", "SESSION", "alpha", "beta", "phoneId", "4071 (1/2)", "7s ago", "failing", "send timeout"} {
		assert.Contains(t, out, want)
	}
}

func TestRenderEmpty(t *testing.T) {
	out := Render(nil, nil, time.Now())
	assert.Contains(t, out, "no running sessions")
	assert.NotContains(t, out, "SESSION")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512B", formatBytes(512))
	assert.Equal(t, "1.5KiB", formatBytes(1536))
	assert.Equal(t, "20.0MiB", formatBytes(20<<20))
}
