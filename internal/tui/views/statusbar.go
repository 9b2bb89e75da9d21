package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type StatusInfo struct {
	Total       int
	Sources     int
	Bursts      int
	Store       string
	LastRefresh time.Time
	Refresh     time.Duration
	Err         error
}

// Status is the bottom bar. The heartbeat dims as the last refresh ages
// past the refresh interval.
type Status struct {
	Width int
	Info  StatusInfo
	Now   func() time.Time
}

func NewStatus(width int) *Status {
	return &Status{Width: width, Now: time.Now}
}

func (s *Status) Update(info StatusInfo) { s.Info = info }

func (s *Status) Render() string {
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff41"))
	amber := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb000"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff3333"))
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#707070"))
	border := lipgloss.NewStyle().Foreground(lipgloss.Color("#2a2a2a"))

	bursts := green
	if s.Info.Bursts > 0 {
		bursts = red.Bold(true)
	}

	items := []string{
		s.heartbeat(green, amber, red),
		muted.Render("RECS:") + " " + green.Render(fmtLarge(int64(s.Info.Total))),
		muted.Render("SRCS:") + " " + green.Render(fmtLarge(int64(s.Info.Sources))),
		muted.Render("BURST:") + " " + bursts.Render(fmtLarge(int64(s.Info.Bursts))),
		muted.Render("DB:") + " " + muted.Render(s.Info.Store),
	}
	if !s.Info.LastRefresh.IsZero() {
		items = append(items, muted.Render("AT:")+" "+green.Render(s.Info.LastRefresh.Format("15:04:05")))
	}
	if s.Info.Err != nil {
		items = append(items, red.Render("ERR: "+s.Info.Err.Error()))
	}

	return lipgloss.NewStyle().
		Width(s.Width).
		Padding(0, 1).
		Background(lipgloss.Color("#0a0a0a")).
		Render(strings.Join(items, border.Render(" │ ")))
}

func (s *Status) heartbeat(ok, warn, crit lipgloss.Style) string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("#707070")).Render("SYS:")
	if s.Info.LastRefresh.IsZero() {
		return label + " " + warn.Render("○")
	}

	age := s.Now().Sub(s.Info.LastRefresh)
	refresh := max(s.Info.Refresh, time.Second)
	switch {
	case s.Info.Err != nil:
		return label + " " + crit.Render("○")
	case age <= refresh+time.Second:
		return label + " " + ok.Bold(true).Render("●")
	case age <= 3*refresh:
		return label + " " + warn.Render("●")
	default:
		return label + " " + crit.Render("○")
	}
}

func fmtLarge(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}
