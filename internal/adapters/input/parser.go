package input

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/ports"
)

const (
	sourceMarker = "IP: "
	urlMarker    = "URL: "
	timeMarker   = "Time: "
)

// WireParser reads lines of the form
//
//	IP: <source>, URL: <url>, Time: <ISO-8601 timestamp>
//
// Markers are located by substring search, so producers may prefix lines
// with their own logging metadata. Source and URL end at the first comma
// after their marker.
type WireParser struct {
	loc *time.Location
}

// NewWireParser interprets zone-less timestamps in loc (time.Local if nil).
func NewWireParser(loc *time.Location) *WireParser {
	if loc == nil {
		loc = time.Local
	}
	return &WireParser{loc: loc}
}

func (p *WireParser) Format() string {
	return "wire"
}

func (p *WireParser) Parse(line string) (*domain.Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) > domain.MaxLineLength {
		return nil, domain.NewParseError(line, "line exceeds maximum length")
	}

	source, ok := segment(line, sourceMarker)
	if !ok {
		return nil, domain.NewParseError(line, "missing IP marker")
	}
	source, _, _ = strings.Cut(source, ",")
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, domain.NewParseError(line, "empty source")
	}

	url, ok := segment(line, urlMarker)
	if !ok {
		return nil, domain.NewParseError(line, "missing URL marker")
	}
	url, _, _ = strings.Cut(url, ",")

	raw, ok := segment(line, timeMarker)
	if !ok {
		return nil, domain.NewParseError(line, "missing Time marker")
	}
	ts, err := domain.ParseISOTime(strings.TrimSpace(raw), p.loc)
	if err != nil {
		return nil, domain.NewParseError(line, "invalid timestamp")
	}

	return domain.NewRecord(source, url, ts), nil
}

// segment returns the text between the first occurrence of marker and the
// next occurrence of the same marker (or the end of line).
func segment(line, marker string) (string, bool) {
	_, rest, found := strings.Cut(line, marker)
	if !found {
		return "", false
	}
	rest, _, _ = strings.Cut(rest, marker)
	return rest, true
}

// ParseBatch parses lines in order, dropping malformed ones. The number of
// dropped lines is returned alongside the records.
func ParseBatch(p ports.LineParser, lines []string) ([]*domain.Record, int) {
	records := make([]*domain.Record, 0, len(lines))
	failed := 0
	for _, line := range lines {
		r, err := p.Parse(line)
		if err != nil {
			log.Debug().Err(err).Msg("Dropping malformed line")
			failed++
			continue
		}
		records = append(records, r)
	}
	return records, failed
}
