package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/pkg/sanitize"
)

// RecordTable lists the most recent records, newest first, with a movable
// selection.
type RecordTable struct {
	Records       []*domain.Record
	VisibleCount  int
	Width         int
	SelectedIndex int
	offset        int
}

func NewRecordTable(visibleCount int) *RecordTable {
	return &RecordTable{VisibleCount: visibleCount, Width: 100}
}

func (t *RecordTable) Update(records []*domain.Record) {
	t.Records = records
	if t.SelectedIndex >= len(records) {
		t.SelectedIndex = max(len(records)-1, 0)
	}
	t.clampOffset()
}

func (t *RecordTable) ScrollUp() {
	if t.SelectedIndex > 0 {
		t.SelectedIndex--
	}
	t.clampOffset()
}

func (t *RecordTable) ScrollDown() {
	if t.SelectedIndex < len(t.Records)-1 {
		t.SelectedIndex++
	}
	t.clampOffset()
}

func (t *RecordTable) clampOffset() {
	if t.SelectedIndex < t.offset {
		t.offset = t.SelectedIndex
	}
	if t.VisibleCount > 0 && t.SelectedIndex >= t.offset+t.VisibleCount {
		t.offset = t.SelectedIndex - t.VisibleCount + 1
	}
	t.offset = max(t.offset, 0)
}

func (t *RecordTable) Selected() *domain.Record {
	if t.SelectedIndex >= 0 && t.SelectedIndex < len(t.Records) {
		return t.Records[t.SelectedIndex]
	}
	return nil
}

func (t *RecordTable) Render() string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#404040"))
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#707070"))
	text := lipgloss.NewStyle().Foreground(lipgloss.Color("#e5e5e5"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff41"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff3333"))
	selected := lipgloss.NewStyle().Background(lipgloss.Color("#003300")).Foreground(lipgloss.Color("#00ff41"))

	if len(t.Records) == 0 {
		return dim.Italic(true).Render("  No recent records")
	}

	urlWidth := max(t.Width-70, 10)

	var lines []string
	lines = append(lines, muted.Bold(true).Render(
		fmt.Sprintf("  %-12s  %-18s  %-*s  %8s  %5s  %s", "TIME", "SOURCE", urlWidth, "URL", "RATE", "UNIQ", "PRED")))
	lines = append(lines, dim.Render("  "+strings.Repeat("─", max(t.Width-4, 10))))

	end := min(t.offset+t.VisibleCount, len(t.Records))
	for i := t.offset; i < end; i++ {
		r := t.Records[i]
		isSelected := i == t.SelectedIndex

		prefix := "  "
		rowStyle := text
		if isSelected {
			prefix = "▶ "
			rowStyle = selected
		}

		pred := green.Render("benign")
		if r.Prediction == domain.LabelBurst {
			pred = red.Bold(true).Render("BURST ")
		}

		lines = append(lines, prefix+rowStyle.Render(fmt.Sprintf("%-12s  %s  %s  %8.2f  %5.0f",
			r.Timestamp.Format("15:04:05.000"),
			sanitize.Field(r.SourceID, 18),
			sanitize.Field(r.URL, urlWidth),
			r.RequestRate,
			r.UniqueURLProxy,
		))+"  "+pred)
	}

	if len(t.Records) > t.VisibleCount {
		lines = append(lines, dim.Render(fmt.Sprintf("  [%d-%d of %d]", t.offset+1, end, len(t.Records))))
	}
	return strings.Join(lines, "\n")
}
