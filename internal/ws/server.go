package ws

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// OriginChecker accepts websocket upgrades from the configured origins, or
// when none are configured, from the same host and loopback addresses.
type OriginChecker struct {
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	o := &OriginChecker{
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		o.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			o.allowedHosts[parsed.Host] = true
		}
	}
	return o
}

func (o *OriginChecker) Check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(o.allowedOrigins) > 0 {
		if o.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return o.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ServeWS upgrades the request and attaches the connection to b until the
// peer goes away.
func (b *Broadcaster) ServeWS(w http.ResponseWriter, r *http.Request, origins *OriginChecker) {
	upgrader := websocket.Upgrader{CheckOrigin: origins.Check}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws upgrade error")
		return
	}

	c, err := b.AddClient(conn)
	if err != nil {
		if errors.Is(err, ErrTooManyConnections) {
			msg, _ := json.Marshal(WSMessage{Type: MsgError, Payload: ErrorPayload{Message: err.Error()}})
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.TextMessage, msg)
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		}
		b.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws client rejected")
		conn.Close()
		return
	}
	b.log.Info().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	go b.readPump(c, r.RemoteAddr)
}

// readPump discards client frames and keeps the connection alive with pings.
func (b *Broadcaster) readPump(c *client, remote string) {
	defer func() {
		b.RemoveClient(c)
		b.log.Info().Str("remote", remote).Msg("websocket client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
