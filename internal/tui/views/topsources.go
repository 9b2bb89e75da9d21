package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/pkg/sanitize"
)

type SourceRow struct {
	SourceID    string
	Requests    int
	Bursts      int
	LastSeen    string
	RequestRate float64
}

// TopSources ranks sources by request count with a proportional bar.
type TopSources struct {
	Rows         []SourceRow
	Width        int
	VisibleCount int
}

func NewTopSources(width int) *TopSources {
	return &TopSources{Width: width, VisibleCount: 10}
}

func (v *TopSources) Update(rows []SourceRow) { v.Rows = rows }

func (v *TopSources) Render() string {
	greenDim := lipgloss.NewStyle().Foreground(lipgloss.Color("#00aa2a"))
	amber := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb000"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff3333"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#404040"))
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#707070"))

	if len(v.Rows) == 0 {
		return dim.Italic(true).Render("  No sources")
	}

	var lines []string
	lines = append(lines, muted.Bold(true).Render(fmt.Sprintf(" %-3s %-20s %-18s %-8s %-10s %s",
		"#", "SOURCE", "REQUESTS", "RATE", "LAST", "BURST")))
	lines = append(lines, dim.Render(strings.Repeat("─", max(v.Width, 10))))

	maxRequests := v.Rows[0].Requests
	for _, r := range v.Rows {
		maxRequests = max(maxRequests, r.Requests)
	}

	rows := v.Rows
	if len(rows) > v.VisibleCount {
		rows = rows[:v.VisibleCount]
	}

	for i, r := range rows {
		style := greenDim
		share := float64(r.Requests) / float64(max(maxRequests, 1))
		switch {
		case r.Bursts > 0:
			style = red.Bold(true)
		case share > 0.5:
			style = amber
		}

		const barWidth = 8
		fill := min(int(share*barWidth), barWidth)
		bar := strings.Repeat("█", fill) + strings.Repeat("░", barWidth-fill)

		burst := dim.Render("-")
		if r.Bursts > 0 {
			burst = red.Render(fmt.Sprintf("%d", r.Bursts))
		}

		lines = append(lines, fmt.Sprintf(" %s %s %s %s %s %s",
			muted.Render(fmt.Sprintf("%2d.", i+1)),
			style.Render(sanitize.Field(r.SourceID, 20)),
			style.Render(fmt.Sprintf("%s %9s", bar, fmtLarge(int64(r.Requests)))),
			muted.Render(fmt.Sprintf("%-8s", fmt.Sprintf("%.2f", r.RequestRate))),
			muted.Render(fmt.Sprintf("%-10s", r.LastSeen)),
			burst,
		))
	}

	if len(v.Rows) > v.VisibleCount {
		lines = append(lines, dim.Render(fmt.Sprintf("  [showing %d of %d sources]", v.VisibleCount, len(v.Rows))))
	}
	return strings.Join(lines, "\n")
}
