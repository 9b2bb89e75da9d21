package domain

import (
	"strings"
	"time"
)

const (
	MaxLineLength = 8192

	// UnseenSource is the encoding returned for a source the classifier
	// artifact was never fitted on.
	UnseenSource = -1
)

// StoreTimeLayout is fixed-width so that text ordering of stored timestamps
// matches chronological ordering. Values are always written in UTC.
const StoreTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Record struct {
	ID             int64     `json:"id"`
	BatchID        string    `json:"batch_id,omitempty"`
	SourceID       string    `json:"ip"`
	Timestamp      time.Time `json:"timestamp"`
	URL            string    `json:"url"`
	RequestRate    float64   `json:"request_rate"`
	UniqueURLProxy float64   `json:"unique_urls_proxy"`
	Prediction     Label     `json:"prediction"`
}

func NewRecord(sourceID, url string, ts time.Time) *Record {
	return &Record{
		SourceID:  sourceID,
		URL:       url,
		Timestamp: ts,
	}
}

func (r *Record) Annotate(a Annotation) {
	r.RequestRate = a.RequestRate
	r.UniqueURLProxy = a.UniqueURLProxy
	r.Prediction = a.Prediction
}

func (r *Record) Annotation() Annotation {
	return Annotation{
		Features: Features{
			RequestRate:    r.RequestRate,
			UniqueURLProxy: r.UniqueURLProxy,
		},
		Prediction: r.Prediction,
	}
}

func (r *Record) Clone() *Record {
	clone := *r
	clone.SourceID = strings.Clone(r.SourceID)
	clone.URL = strings.Clone(r.URL)
	return &clone
}

func FormatStoreTime(t time.Time) string {
	return t.UTC().Format(StoreTimeLayout)
}

// ISO-8601 forms without a zone designator, as written by producers that log
// naive local timestamps. A missing fraction is accepted by every layout.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseISOTime accepts RFC 3339 timestamps and zone-less ISO-8601 timestamps.
// Zone-less values are interpreted in loc.
func ParseISOTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	var firstErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// ParseStoreTime reads a stored timestamp. Rows written by older producers
// may lack a zone; those are taken as UTC.
func ParseStoreTime(s string) (time.Time, error) {
	return ParseISOTime(s, time.UTC)
}

// DistinctSources returns the source ids of records in first-seen order.
func DistinctSources(records []*Record) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0, 8)
	for _, r := range records {
		if _, ok := seen[r.SourceID]; ok {
			continue
		}
		seen[r.SourceID] = struct{}{}
		out = append(out, r.SourceID)
	}
	return out
}

func RecordIDs(records []*Record) []int64 {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
