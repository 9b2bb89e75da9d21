package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/pkg/sanitize"
)

var (
	inspColorPrimary = lipgloss.Color("#00ff41")
	inspColorAmber   = lipgloss.Color("#ffb000")
	inspColorRed     = lipgloss.Color("#ff3333")
	inspColorText    = lipgloss.Color("#e5e5e5")
	inspColorDim     = lipgloss.Color("#404040")
	inspColorBg      = lipgloss.Color("#0a1f0a")
)

// RecordInspector shows every stored field of one record, with the full
// URL wrapped across lines.
type RecordInspector struct {
	Record  *domain.Record
	Width   int
	Height  int
	Visible bool
}

func NewRecordInspector() *RecordInspector {
	return &RecordInspector{Width: 80, Height: 24}
}

func (p *RecordInspector) Open(r *domain.Record) {
	p.Record = r
	p.Visible = r != nil
}

func (p *RecordInspector) Close() {
	p.Record = nil
	p.Visible = false
}

func (p *RecordInspector) SetDimensions(width, height int) {
	p.Width = width
	p.Height = height
}

func (p *RecordInspector) Render() string {
	if p.Record == nil {
		return ""
	}
	r := p.Record
	contentWidth := max(p.Width-4, 20)

	header := lipgloss.NewStyle().Foreground(inspColorPrimary).Bold(true)
	label := lipgloss.NewStyle().Foreground(inspColorAmber).Width(14)
	value := lipgloss.NewStyle().Foreground(inspColorText)
	dimText := lipgloss.NewStyle().Foreground(inspColorDim)
	code := lipgloss.NewStyle().Foreground(inspColorPrimary).Background(inspColorBg)

	pred := value.Render(r.Prediction.String())
	if r.Prediction == domain.LabelBurst {
		pred = lipgloss.NewStyle().Foreground(inspColorRed).Bold(true).Render("BURST")
	}

	field := func(name, v string) string {
		return label.Render(name) + " " + v
	}

	lines := []string{
		header.Render("▶ RECORD"),
		dimText.Render(strings.Repeat("─", contentWidth)),
		field("ID:", value.Render(fmt.Sprintf("%d", r.ID))),
		field("Batch:", value.Render(sanitize.String(r.BatchID, contentWidth-15))),
		field("Source:", value.Render(sanitize.String(r.SourceID, contentWidth-15))),
		field("Timestamp:", value.Render(domain.FormatStoreTime(r.Timestamp))),
		field("Request rate:", value.Render(fmt.Sprintf("%.4f req/s", r.RequestRate))),
		field("Unique URLs:", value.Render(fmt.Sprintf("%.0f", r.UniqueURLProxy))),
		field("Prediction:", pred),
		"",
		header.Render("▶ URL"),
	}

	url := sanitize.Terminal(r.URL)
	for i := 0; i < len(url); i += contentWidth {
		lines = append(lines, code.Render(url[i:min(i+contentWidth, len(url))]))
	}

	lines = append(lines, "", dimText.Render("[ESC] Close"))
	if p.Height > 2 && len(lines) > p.Height-2 {
		lines = lines[:p.Height-2]
	}

	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(inspColorPrimary).
		Padding(0, 1).
		Width(p.Width).
		Render(strings.Join(lines, "\n"))
}
