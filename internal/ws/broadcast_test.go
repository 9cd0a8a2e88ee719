package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-rotator/backend/internal/session"
)

// dialTestWS upgrades one connection on a throwaway server and returns
// both ends. The caller closes the server.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil, nil
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) (MessageType, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg.Type, msg.Payload
}

func staticSnapshot(statuses ...*session.Status) SnapshotFunc {
	return func() []*session.Status { return statuses }
}

func TestAddClientSendsSnapshot(t *testing.T) {
	b := NewBroadcaster(staticSnapshot(&session.Status{SessionID: "s1", Health: session.Healthy}),
		time.Hour, time.Hour, 0, zerolog.Nop())
	defer b.Stop()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	_, err := b.AddClient(serverConn)
	require.NoError(t, err)

	typ, payload := readMessage(t, clientConn)
	assert.Equal(t, MsgSnapshot, typ)

	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(payload, &snap))
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, "s1", snap.Sessions[0].SessionID)
}

func TestEmptySnapshotIsArray(t *testing.T) {
	b := NewBroadcaster(staticSnapshot(), time.Hour, time.Hour, 0, zerolog.Nop())
	defer b.Stop()

	data, err := json.Marshal(b.snapshotMessage())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sessions":[]`)
}

func TestDeltaCoalescesUpdates(t *testing.T) {
	b := NewBroadcaster(staticSnapshot(), 20*time.Millisecond, time.Hour, 0, zerolog.Nop())
	defer b.Stop()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	_, err := b.AddClient(serverConn)
	require.NoError(t, err)
	typ, _ := readMessage(t, clientConn)
	require.Equal(t, MsgSnapshot, typ)

	b.QueueUpdate([]*session.Status{{SessionID: "a", Sent: 1}})
	b.QueueUpdate([]*session.Status{{SessionID: "b", Sent: 1}})
	b.QueueUpdate([]*session.Status{{SessionID: "a", Sent: 2}})
	b.QueueUpdate([]*session.Status{{SessionID: "c", Sent: 1}})
	b.QueueRemoval([]string{"c"})

	typ, payload := readMessage(t, clientConn)
	require.Equal(t, MsgDelta, typ)

	var delta DeltaPayload
	require.NoError(t, json.Unmarshal(payload, &delta))
	require.Len(t, delta.Updates, 2)
	assert.Equal(t, "a", delta.Updates[0].SessionID)
	assert.Equal(t, 2, delta.Updates[0].Sent, "latest update wins")
	assert.Equal(t, "b", delta.Updates[1].SessionID)
	assert.Equal(t, []string{"c"}, delta.Removed)
}

func TestRestartWithinThrottleKeepsSession(t *testing.T) {
	b := NewBroadcaster(staticSnapshot(), 20*time.Millisecond, time.Hour, 0, zerolog.Nop())
	defer b.Stop()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	_, err := b.AddClient(serverConn)
	require.NoError(t, err)
	typ, _ := readMessage(t, clientConn)
	require.Equal(t, MsgSnapshot, typ)

	b.QueueRemoval([]string{"s1"})
	b.QueueUpdate([]*session.Status{{SessionID: "s1", Sent: 0}})

	typ, payload := readMessage(t, clientConn)
	require.Equal(t, MsgDelta, typ)
	var delta DeltaPayload
	require.NoError(t, json.Unmarshal(payload, &delta))

	view := map[string]*session.Status{"s1": {SessionID: "s1", Sent: 7}}
	for _, s := range delta.Updates {
		view[s.SessionID] = s
	}
	for _, id := range delta.Removed {
		delete(view, id)
	}
	require.Contains(t, view, "s1")
	assert.Equal(t, 0, view["s1"].Sent)
	assert.Empty(t, delta.Removed)
}

func TestPendingQueuesStayDeduplicated(t *testing.T) {
	b := NewBroadcaster(staticSnapshot(), time.Hour, time.Hour, 0, zerolog.Nop())
	defer b.Stop()

	b.QueueUpdate([]*session.Status{{SessionID: "a"}})
	b.QueueRemoval([]string{"a"})
	b.QueueUpdate([]*session.Status{{SessionID: "a", Sent: 2}})
	b.QueueRemoval([]string{"b"})
	b.QueueRemoval([]string{"b"})

	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	assert.Equal(t, []string{"a"}, b.pendingOrder)
	assert.Equal(t, 2, b.pendingUpdates["a"].Sent)
	assert.Equal(t, []string{"b"}, b.pendingRemoved)
}

func TestQueueUpdateCopiesStatus(t *testing.T) {
	b := NewBroadcaster(staticSnapshot(), time.Hour, time.Hour, 0, zerolog.Nop())
	defer b.Stop()

	st := &session.Status{SessionID: "a", Sent: 1}
	b.QueueUpdate([]*session.Status{st})
	st.Sent = 99

	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	assert.Equal(t, 1, b.pendingUpdates["a"].Sent)
}

func TestFlushWithNothingPendingIsQuiet(t *testing.T) {
	b := NewBroadcaster(staticSnapshot(), time.Hour, time.Hour, 0, zerolog.Nop())
	defer b.Stop()
	b.flush()
	assert.Equal(t, 0, b.ClientCount())
}

func TestAddClientMaxConnections(t *testing.T) {
	const maxConns = 2
	b := NewBroadcaster(staticSnapshot(), time.Hour, time.Hour, maxConns, zerolog.Nop())
	defer b.Stop()

	var clients []*client
	for i := 0; i < maxConns; i++ {
		srv, conn, peer := dialTestWS(t)
		defer srv.Close()
		defer peer.Close()

		c, err := b.AddClient(conn)
		require.NoError(t, err)
		clients = append(clients, c)
	}
	assert.Equal(t, maxConns, b.ClientCount())

	srv, conn, peer := dialTestWS(t)
	defer srv.Close()
	defer peer.Close()
	_, err := b.AddClient(conn)
	assert.True(t, errors.Is(err, ErrTooManyConnections))
	assert.Equal(t, maxConns, b.ClientCount())

	b.RemoveClient(clients[0])
	srv2, conn2, peer2 := dialTestWS(t)
	defer srv2.Close()
	defer peer2.Close()
	_, err = b.AddClient(conn2)
	assert.NoError(t, err)
}

func TestWritePumpRemovesClientOnWriteError(t *testing.T) {
	srv, serverConn, peer := dialTestWS(t)
	defer srv.Close()
	peer.Close()

	b := NewBroadcaster(staticSnapshot(), time.Hour, time.Hour, 0, zerolog.Nop())
	defer b.Stop()

	c := &client{conn: serverConn, b: b, send: make(chan []byte, 64)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{"type":"test"}`)
	go c.writePump()

	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopDisconnectsClients(t *testing.T) {
	b := NewBroadcaster(staticSnapshot(), time.Hour, time.Hour, 0, zerolog.Nop())

	srv, conn, peer := dialTestWS(t)
	defer srv.Close()
	defer peer.Close()
	_, err := b.AddClient(conn)
	require.NoError(t, err)

	b.Stop()
	b.Stop()
	assert.Equal(t, 0, b.ClientCount())
}
