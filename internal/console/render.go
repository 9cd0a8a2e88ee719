package console

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wa-rotator/backend/internal/api"
	"github.com/wa-rotator/backend/internal/session"
)

const healthCol = 6

// Render draws the health line and one table row per running session.
// now is used for the "last sent" column.
func Render(h *api.HealthResponse, sessions []*session.Status, now time.Time) string {
	var b strings.Builder

	if h != nil {
		b.WriteString(styleTitle.Render("wa-rotator"))
		b.WriteString(styleDimmed.Render(fmt.Sprintf("  %s  up %s  %d active  %d ws  rss %s",
			h.Status,
			(time.Duration(h.UptimeSeconds) * time.Second).String(),
			h.ActiveSessions,
			h.WSClients,
			formatBytes(h.Process.RSSBytes),
		)))
		b.WriteString("\n")
	}

	if len(sessions) == 0 {
		b.WriteString(styleDimmed.Render("no running sessions"))
		b.WriteString("\n")
		return b.String()
	}

	rows := make([][]string, 0, len(sessions))
	healths := make([]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.SessionID,
			s.ConnectionType.String(),
			strconv.Itoa(s.Delay) + "s",
			fmt.Sprintf("%s (%d/%d)", s.CurrentTarget, s.TargetIndex+1, s.TargetCount),
			fmt.Sprintf("%d/%d", s.MessageIndex+1, s.MessageTotal),
			strconv.Itoa(s.Sent),
			string(s.Health),
			lastSent(s.LastSentAt, now),
			s.LastError,
		})
		healths = append(healths, string(s.Health))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers("SESSION", "VIA", "DELAY", "TARGET", "MESSAGE", "SENT", "HEALTH", "LAST SENT", "LAST ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			if col == healthCol && row >= 0 && row < len(healths) {
				return styleCell.Foreground(healthColor(healths[row]))
			}
			return styleCell
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	return b.String()
}

func lastSent(t *time.Time, now time.Time) string {
	if t == nil {
		return "-"
	}
	d := now.Sub(*t).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String() + " ago"
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
