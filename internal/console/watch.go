package console

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wa-rotator/backend/internal/api"
	"github.com/wa-rotator/backend/internal/session"
)

const healthRefresh = 5 * time.Second

type keyMap struct {
	Refresh key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Refresh, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

func defaultKeyMap() keyMap {
	return keyMap{
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type healthMsg struct {
	health *api.HealthResponse
	err    error
}

type tickMsg time.Time

// Watch is a live view of the server fed by the websocket stream, with
// process health polled over HTTP.
type Watch struct {
	client *Client
	stream *Stream
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	keys keyMap
	help help.Model

	sessions  map[string]*session.Status
	health    *api.HealthResponse
	connected bool
	lastErr   string
}

func NewWatch(client *Client, stream *Stream) *Watch {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watch{
		client:   client,
		stream:   stream,
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
		keys:     defaultKeyMap(),
		help:     help.New(),
		sessions: make(map[string]*session.Status),
	}
}

func (w *Watch) Init() tea.Cmd {
	return tea.Batch(w.stream.Listen(w.ctx), w.fetchHealth(), tick())
}

func (w *Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.help.Width = msg.Width
		return w, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, w.keys.Quit):
			w.cancel()
			w.stream.Close()
			return w, tea.Quit
		case key.Matches(msg, w.keys.Refresh):
			return w, w.fetchHealth()
		}
		return w, nil

	case connectedMsg:
		w.connected = true
		w.lastErr = ""
		return w, w.stream.ReadLoop()

	case disconnectedMsg:
		w.connected = false
		if msg.err != nil {
			w.lastErr = msg.err.Error()
		}
		return w, w.stream.Listen(w.ctx)

	case snapshotMsg:
		w.sessions = make(map[string]*session.Status, len(msg.payload.Sessions))
		for _, s := range msg.payload.Sessions {
			w.sessions[s.SessionID] = s
		}
		return w, w.stream.ReadLoop()

	case deltaMsg:
		for _, s := range msg.payload.Updates {
			w.sessions[s.SessionID] = s
		}
		for _, id := range msg.payload.Removed {
			delete(w.sessions, id)
		}
		return w, w.stream.ReadLoop()

	case serverErrorMsg:
		w.lastErr = msg.message
		return w, w.stream.ReadLoop()

	case healthMsg:
		if msg.err != nil {
			w.lastErr = msg.err.Error()
		} else {
			w.health = msg.health
		}
		return w, nil

	case tickMsg:
		return w, tea.Batch(w.fetchHealth(), tick())
	}
	return w, nil
}

func (w *Watch) View() string {
	var b strings.Builder
	if w.connected {
		b.WriteString(lipgloss.NewStyle().Foreground(colorHealthy).Render("● live"))
	} else {
		b.WriteString(lipgloss.NewStyle().Foreground(colorDanger).Render("○ connecting..."))
	}
	if w.lastErr != "" {
		b.WriteString(styleDimmed.Render("  " + w.lastErr))
	}
	b.WriteString("\n")
	b.WriteString(Render(w.health, w.sorted(), w.now()))
	b.WriteString(w.help.View(w.keys))
	b.WriteString("\n")
	return b.String()
}

func (w *Watch) sorted() []*session.Status {
	out := make([]*session.Status, 0, len(w.sessions))
	for _, s := range w.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (w *Watch) fetchHealth() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(w.ctx, 5*time.Second)
		defer cancel()
		h, err := w.client.Health(ctx)
		return healthMsg{health: h, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(healthRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}
