// Package tui is the read-only terminal dashboard over the record store.
//
// It periodically reads the most recent records and renders a burst verdict
// banner, the requests-per-second trace, the prediction breakdown, the top
// sources and a table of the newest records. It never writes to the store
// and can run alongside the monitor.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/ports"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/tui/views"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/pkg/sanitize"
)

const (
	viewSources = iota
	viewRecords
)

type Config struct {
	Reader     ports.RecentReader
	Limit      int
	TableLimit int
	Refresh    time.Duration
	// StoreName is shown in the status bar.
	StoreName string
	// BurstRate colours the rate trace; requests per second.
	BurstRate float64
	Timeout   time.Duration
	Now       func() time.Time
}

type App struct {
	cfg   Config
	model Model

	trace     *views.RateTrace
	breakdown *views.Breakdown
	sources   *views.TopSources
	table     *views.RecordTable
	status    *views.Status
	inspector *views.RecordInspector

	ready    bool
	loading  bool
	quitting bool
	width    int
	height   int
}

func NewApp(cfg Config) *App {
	if cfg.Limit <= 0 {
		cfg.Limit = 1000
	}
	if cfg.TableLimit <= 0 {
		cfg.TableLimit = 50
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BurstRate <= 0 {
		cfg.BurstRate = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	status := views.NewStatus(100)
	status.Now = cfg.Now
	return &App{
		cfg:       cfg,
		trace:     views.NewRateTrace(80, cfg.BurstRate),
		breakdown: views.NewBreakdown(100),
		sources:   views.NewTopSources(100),
		table:     views.NewRecordTable(15),
		status:    status,
		inspector: views.NewRecordInspector(),
	}
}

type tickMsg time.Time

type refreshMsg struct {
	records []*domain.Record
	err     error
	at      time.Time
}

func (a *App) Init() tea.Cmd {
	a.loading = true
	return tea.Batch(a.refresh(), a.tick())
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.cfg.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *App) refresh() tea.Cmd {
	reader, limit, timeout, now := a.cfg.Reader, a.cfg.Limit, a.cfg.Timeout, a.cfg.Now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		records, err := reader.RecentRecords(ctx, limit)
		return refreshMsg{records: records, err: err, at: now()}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.inspector.Visible {
			switch msg.String() {
			case "esc", "q", "enter":
				a.inspector.Close()
			}
			return a, nil
		}

		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "r":
			if !a.loading {
				a.loading = true
				return a, a.refresh()
			}
		case "tab":
			a.model.NextView()
		case "up", "k":
			a.table.ScrollUp()
		case "down", "j":
			a.table.ScrollDown()
		case "enter":
			if a.model.ActiveView == viewRecords {
				a.inspector.Open(a.table.Selected())
			}
		}

	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.ready = true
		a.trace.SetWidth(msg.Width - 20)
		a.breakdown.Width = msg.Width
		a.sources.Width = msg.Width - 4
		a.table.Width = msg.Width
		a.table.VisibleCount = max(msg.Height-14, 5)
		a.status.Width = msg.Width
		a.inspector.SetDimensions(msg.Width-4, msg.Height-2)

	case tickMsg:
		if a.loading {
			return a, a.tick()
		}
		a.loading = true
		return a, tea.Batch(a.refresh(), a.tick())

	case refreshMsg:
		a.loading = false
		a.apply(msg)
	}
	return a, nil
}

func (a *App) apply(msg refreshMsg) {
	a.model.Apply(msg.records, a.cfg.TableLimit, msg.err, msg.at)
	s := a.model.Summary

	a.trace.SetData(s.RatePerSecond)
	a.breakdown.Update(s.Benign, s.Bursts)

	rows := make([]views.SourceRow, len(s.TopSources))
	for i, e := range s.TopSources {
		rows[i] = views.SourceRow{
			SourceID:    e.SourceID,
			Requests:    e.Requests,
			Bursts:      e.Bursts,
			LastSeen:    e.LastSeen.Format("15:04:05"),
			RequestRate: e.Latest.RequestRate,
		}
	}
	a.sources.Update(rows)
	a.table.Update(a.model.Recent)

	a.status.Update(views.StatusInfo{
		Total:       s.Total,
		Sources:     s.Sources,
		Bursts:      s.Bursts,
		Store:       a.cfg.StoreName,
		LastRefresh: a.model.LastRefresh,
		Refresh:     a.cfg.Refresh,
		Err:         a.model.Err,
	})
}

func (a *App) View() string {
	if a.quitting {
		return "\n  Dashboard closed.\n\n"
	}
	if !a.ready {
		return "\n  Initializing...\n\n"
	}
	if a.inspector.Visible {
		return a.inspector.Render()
	}

	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(TextDim.Render(strings.Repeat("─", a.width)))
	b.WriteString("\n")

	b.WriteString(SectionStyle.Render("  REQUESTS / SEC"))
	b.WriteString("\n")
	b.WriteString(a.trace.Render())
	b.WriteString("\n\n")

	b.WriteString(SectionStyle.Render("  PREDICTIONS"))
	b.WriteString("\n")
	b.WriteString(a.breakdown.Render())
	b.WriteString("\n\n")

	if a.model.ActiveView == viewRecords {
		b.WriteString(SectionStyle.Render(fmt.Sprintf("  RECENT RECORDS (%d)", len(a.model.Recent))))
		b.WriteString("\n")
		b.WriteString(a.table.Render())
	} else {
		b.WriteString(SectionStyle.Render("  TOP SOURCES"))
		b.WriteString("\n")
		b.WriteString(a.sources.Render())
	}

	b.WriteString("\n\n")
	b.WriteString(a.status.Render())
	b.WriteString("\n")
	b.WriteString(a.renderHelp())
	return b.String()
}

func (a *App) renderHeader() string {
	s := a.model.Summary
	var banner string
	switch s.Verdict {
	case VerdictBurst:
		names := make([]string, 0, 3)
		for _, src := range s.BurstSources[:min(len(s.BurstSources), 3)] {
			names = append(names, sanitize.String(src, 24))
		}
		if extra := len(s.BurstSources) - len(names); extra > 0 {
			names = append(names, fmt.Sprintf("+%d", extra))
		}
		banner = fmt.Sprintf("BURST DETECTED: %s", strings.Join(names, ", "))
	case VerdictClear:
		banner = "NO BURST DETECTED"
	default:
		banner = "NO DATA: is the monitor running?"
	}
	return fmt.Sprintf("  %s  %s", TitleStyle.Render("DDOSRADAR"), BannerStyle(s.Verdict).Render(banner))
}

func (a *App) renderHelp() string {
	names := []string{"SOURCES", "RECORDS"}
	return TextDim.Render(fmt.Sprintf("  %s [%s]  %s scroll  %s inspect  %s refresh  %s quit",
		TextKey.Render("TAB"), names[a.model.ActiveView],
		TextKey.Render("↑↓"), TextKey.Render("ENTER"), TextKey.Render("r"), TextKey.Render("q")))
}

func (a *App) Model() Model { return a.model }

func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
