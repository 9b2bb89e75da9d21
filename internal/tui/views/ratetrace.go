package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	sparkColorPrimary = lipgloss.Color("#00ff41")
	sparkColorAmber   = lipgloss.Color("#ffb000")
	sparkColorRed     = lipgloss.Color("#ff3333")
	sparkColorDim     = lipgloss.Color("#404040")
	sparkColorGhost   = lipgloss.Color("#252525")
)

var signalChars = []rune{'⎽', '⎼', '─', '⎻', '⎺'}

var barChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RateTrace draws the requests-per-second series as a one-line trace.
// Values at or above BurstRate are drawn red, above half of it amber.
type RateTrace struct {
	Data      []float64
	Width     int
	BurstRate float64
	BarMode   bool
}

func NewRateTrace(width int, burstRate float64) *RateTrace {
	if width <= 0 {
		width = 60
	}
	return &RateTrace{Width: width, BurstRate: burstRate}
}

// SetData replaces the series; only the newest Width points are drawn.
func (t *RateTrace) SetData(data []float64) {
	t.Data = data
}

func (t *RateTrace) SetWidth(width int) {
	if width > 0 {
		t.Width = width
	}
}

func (t *RateTrace) visible() []float64 {
	if len(t.Data) > t.Width {
		return t.Data[len(t.Data)-t.Width:]
	}
	return t.Data
}

func (t *RateTrace) styleFor(v float64) lipgloss.Style {
	switch {
	case t.BurstRate > 0 && v >= t.BurstRate:
		return lipgloss.NewStyle().Foreground(sparkColorRed)
	case t.BurstRate > 0 && v >= t.BurstRate/2:
		return lipgloss.NewStyle().Foreground(sparkColorAmber)
	default:
		return lipgloss.NewStyle().Foreground(sparkColorPrimary)
	}
}

func (t *RateTrace) Render() string {
	dim := lipgloss.NewStyle().Foreground(sparkColorDim)
	ghost := lipgloss.NewStyle().Foreground(sparkColorGhost)

	data := t.visible()
	if len(data) == 0 {
		return dim.Italic(true).Render("  No traffic")
	}

	var current, peak float64
	for _, v := range data {
		peak = max(peak, v)
	}
	current = data[len(data)-1]
	scale := max(peak, 10)

	chars := signalChars
	if t.BarMode {
		chars = barChars
	}

	var trace strings.Builder
	trace.WriteString(" ")
	for i, v := range data {
		if !t.BarMode && i > 0 && i%10 == 0 && v == 0 {
			trace.WriteString(ghost.Render("│"))
			continue
		}
		if v == 0 {
			trace.WriteString(dim.Render(string(chars[0])))
			continue
		}
		level := int(v / scale * float64(len(chars)-1))
		level = min(level, len(chars)-1)
		trace.WriteString(t.styleFor(v).Render(string(chars[level])))
	}

	trace.WriteString(t.styleFor(current).Bold(true).Render(fmt.Sprintf(" ▶ %.0f/s", current)))
	trace.WriteString(dim.Render(fmt.Sprintf("  peak %.0f/s", peak)))
	return trace.String()
}
