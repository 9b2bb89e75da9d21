// Package sanitize makes untrusted log fields safe to print on a terminal.
//
// Source ids and URLs come straight from the access log, so a hostile client
// can embed escape sequences that would repaint or hijack the dashboard.
package sanitize

import (
	"strings"
	"unicode/utf8"
)

// String neutralises control characters and truncates to maxLen bytes with
// a trailing "..." (maxLen <= 0 means no limit).
func String(s string, maxLen int) string {
	clean := Terminal(s)
	if maxLen <= 0 || len(clean) <= maxLen {
		return clean
	}
	if maxLen <= 3 {
		return trimRunes(clean, maxLen)
	}
	return trimRunes(clean, maxLen-3) + "..."
}

// Terminal replaces control bytes with visible markers. A CSI sequence
// (ESC '[' ... final byte) collapses into a single "[ESC]".
func Terminal(s string) string {
	if !needsCleaning(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 0x1B:
			if i+1 < len(s) && s[i+1] == '[' {
				i += 2
				for i < len(s) && !isCSIFinal(s[i]) {
					i++
				}
			}
			b.WriteString("[ESC]")
		case c == '\t' || c == '\n':
			b.WriteByte(' ')
		case c == '\r':
			b.WriteString("[CR]")
		case c == 0x7F:
			b.WriteString("[DEL]")
		case c < 0x20:
			b.WriteString("[CTRL]")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Field sanitises s and pads or truncates it to exactly width bytes, for
// fixed-width table columns.
func Field(s string, width int) string {
	if width <= 0 {
		return ""
	}
	clean := String(s, width)
	if len(clean) < width {
		return clean + strings.Repeat(" ", width-len(clean))
	}
	return clean
}

func needsCleaning(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c == 0x7F {
			return true
		}
	}
	return false
}

func isCSIFinal(c byte) bool {
	return c >= 0x40 && c <= 0x7E
}

// trimRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func trimRunes(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
