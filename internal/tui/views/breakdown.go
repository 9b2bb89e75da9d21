package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Breakdown renders the benign/burst split of recent records as a single
// stacked bar.
type Breakdown struct {
	Benign int
	Burst  int
	Width  int
}

func NewBreakdown(width int) *Breakdown {
	return &Breakdown{Width: width}
}

func (b *Breakdown) Update(benign, burst int) {
	b.Benign, b.Burst = benign, burst
}

// Split returns the number of bar cells given to burst records. Any
// non-zero burst count gets at least one cell.
func (b *Breakdown) Split(cells int) int {
	total := b.Benign + b.Burst
	if total == 0 || cells <= 0 {
		return 0
	}
	n := b.Burst * cells / total
	if b.Burst > 0 && n == 0 {
		n = 1
	}
	return n
}

func (b *Breakdown) Render() string {
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("#00aa2a"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff3333"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#404040"))
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#707070"))

	total := b.Benign + b.Burst
	if total == 0 {
		return dim.Italic(true).Render("  No predictions")
	}

	cells := max(b.Width-40, 10)
	burstCells := b.Split(cells)
	bar := red.Render(strings.Repeat("█", burstCells)) + green.Render(strings.Repeat("█", cells-burstCells))

	pct := 100 * float64(b.Burst) / float64(total)
	return fmt.Sprintf("  %s  %s %s  %s %s",
		bar,
		red.Render("burst"), muted.Render(fmt.Sprintf("%d (%.1f%%)", b.Burst, pct)),
		green.Render("benign"), muted.Render(fmt.Sprintf("%d (%.1f%%)", b.Benign, 100-pct)),
	)
}
