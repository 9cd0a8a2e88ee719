// Package ws pushes session runtime status to browser clients over
// websockets: a full snapshot on connect and periodically, and throttled
// deltas as sessions change.
package ws

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/wa-rotator/backend/internal/session"
)

var ErrTooManyConnections = errors.New("too many websocket connections")

const writeWait = 10 * time.Second

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// SnapshotFunc returns the current status of every running session.
type SnapshotFunc func() []*session.Status

type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	snapshot SnapshotFunc
	maxConns int
	log      zerolog.Logger

	throttle       time.Duration
	snapshotTicker *time.Ticker
	done           chan struct{}
	stopOnce       sync.Once

	flushMu        sync.Mutex
	pendingUpdates map[string]*session.Status
	pendingOrder   []string
	pendingRemoved []string
	flushTimer     *time.Timer
}

// NewBroadcaster starts the periodic snapshot loop. maxConns <= 0 means
// unlimited clients.
func NewBroadcaster(snapshot SnapshotFunc, throttle, snapshotInterval time.Duration, maxConns int, logger zerolog.Logger) *Broadcaster {
	b := &Broadcaster{
		clients:        make(map[*client]bool),
		snapshot:       snapshot,
		maxConns:       maxConns,
		log:            logger.With().Str("component", "ws").Logger(),
		throttle:       throttle,
		done:           make(chan struct{}),
		pendingUpdates: make(map[string]*session.Status),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

// AddClient registers conn and queues an initial snapshot for it.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{conn: conn, b: b, send: make(chan []byte, 64)}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()

	data, err := json.Marshal(b.snapshotMessage())
	if err == nil {
		b.mu.RLock()
		if b.clients[c] {
			select {
			case c.send <- data:
			default:
			}
		}
		b.mu.RUnlock()
	}
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// QueueUpdate coalesces statuses by session id until the next flush.
func (b *Broadcaster) QueueUpdate(statuses []*session.Status) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	for _, s := range statuses {
		if _, seen := b.pendingUpdates[s.SessionID]; !seen {
			b.pendingOrder = append(b.pendingOrder, s.SessionID)
		}
		b.pendingUpdates[s.SessionID] = s.Clone()
		// A restart queues a removal and then an update; the update wins.
		b.pendingRemoved = without(b.pendingRemoved, s.SessionID)
	}
	b.scheduleFlushLocked()
}

// QueueRemoval drops any pending update for ids and announces their removal.
func (b *Broadcaster) QueueRemoval(ids []string) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	for _, id := range ids {
		delete(b.pendingUpdates, id)
		b.pendingOrder = without(b.pendingOrder, id)
		if !slices.Contains(b.pendingRemoved, id) {
			b.pendingRemoved = append(b.pendingRemoved, id)
		}
	}
	b.scheduleFlushLocked()
}

func without(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}

func (b *Broadcaster) scheduleFlushLocked() {
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	updates := make([]*session.Status, 0, len(b.pendingUpdates))
	for _, id := range b.pendingOrder {
		if s, ok := b.pendingUpdates[id]; ok {
			updates = append(updates, s)
		}
	}
	removed := b.pendingRemoved
	b.pendingUpdates = make(map[string]*session.Status)
	b.pendingOrder = nil
	b.pendingRemoved = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(updates) == 0 && len(removed) == 0 {
		return
	}

	b.broadcast(WSMessage{
		Type: MsgDelta,
		Payload: DeltaPayload{
			Updates: updates,
			Removed: removed,
		},
	})
}

func (b *Broadcaster) snapshotMessage() WSMessage {
	sessions := b.snapshot()
	if sessions == nil {
		sessions = []*session.Status{}
	}
	return WSMessage{Type: MsgSnapshot, Payload: SnapshotPayload{Sessions: sessions}}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.snapshotTicker.C:
			if b.ClientCount() > 0 {
				b.broadcast(b.snapshotMessage())
			}
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error().Err(err).Msg("broadcast marshal error")
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		b.mu.RLock()
		_, live := b.clients[c]
		if live {
			select {
			case c.send <- data:
			default:
				live = false
			}
		}
		b.mu.RUnlock()
		if !live {
			b.log.Warn().Msg("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop ends the snapshot loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.done)

		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.flushMu.Unlock()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}
