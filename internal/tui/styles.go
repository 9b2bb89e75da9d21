package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary    = lipgloss.Color("#00ff41")
	ColorPrimaryDim = lipgloss.Color("#00aa2a")
	ColorPrimaryBg  = lipgloss.Color("#0a1f0a")
	ColorAmber      = lipgloss.Color("#ffb000")
	ColorRed        = lipgloss.Color("#ff3333")
	ColorRedBg      = lipgloss.Color("#2a0505")
	ColorText       = lipgloss.Color("#e5e5e5")
	ColorMuted      = lipgloss.Color("#707070")
	ColorDim        = lipgloss.Color("#404040")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	BannerClearStyle = lipgloss.NewStyle().
				Background(ColorPrimaryBg).
				Foreground(ColorPrimary).
				Bold(true).
				Padding(0, 1)

	BannerBurstStyle = lipgloss.NewStyle().
				Background(ColorRedBg).
				Foreground(ColorRed).
				Bold(true).
				Padding(0, 1)

	BannerNoDataStyle = lipgloss.NewStyle().
				Foreground(ColorAmber).
				Bold(true).
				Padding(0, 1)

	SectionStyle = lipgloss.NewStyle().Foreground(ColorMuted).Bold(true)
	TextDim      = lipgloss.NewStyle().Foreground(ColorDim)
	TextKey      = lipgloss.NewStyle().Foreground(ColorPrimaryDim)
	TextRed      = lipgloss.NewStyle().Foreground(ColorRed)
)

func BannerStyle(v Verdict) lipgloss.Style {
	switch v {
	case VerdictBurst:
		return BannerBurstStyle
	case VerdictClear:
		return BannerClearStyle
	default:
		return BannerNoDataStyle
	}
}
