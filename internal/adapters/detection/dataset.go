package detection

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

// DefaultBurstThreshold is the request rate (req/s) above which a training
// sample is labelled a burst.
const DefaultBurstThreshold = 10.0

var DatasetHeader = []string{"src_ip", "request_rate", "unique_urls_proxy", "label"}

type Sample struct {
	SourceID string
	Features domain.Features
	Label    domain.Label
}

type DatasetConfig struct {
	Window    time.Duration
	Threshold float64
}

// BuildDataset labels every record with the features of its source over the
// trailing window (t-window, t] ending at the record's own timestamp.
// Samples come out in timestamp order; records are not modified.
func BuildDataset(records []*domain.Record, cfg DatasetConfig) []Sample {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBurstThreshold
	}

	ordered := make([]*domain.Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	// Per-source window of records; head advances as the window slides.
	type sourceWindow struct {
		records []*domain.Record
		head    int
	}
	windows := make(map[string]*sourceWindow)

	samples := make([]Sample, 0, len(ordered))
	for _, r := range ordered {
		w, ok := windows[r.SourceID]
		if !ok {
			w = &sourceWindow{}
			windows[r.SourceID] = w
		}
		w.records = append(w.records, r)

		lower := r.Timestamp.Add(-cfg.Window)
		for w.head < len(w.records) && !w.records[w.head].Timestamp.After(lower) {
			w.head++
		}

		f := Compute(w.records[w.head:], cfg.Window)
		label := domain.LabelBenign
		if f.RequestRate > cfg.Threshold {
			label = domain.LabelBurst
		}
		samples = append(samples, Sample{SourceID: r.SourceID, Features: f, Label: label})
	}
	return samples
}

func WriteDatasetCSV(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DatasetHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range samples {
		row := []string{
			s.SourceID,
			strconv.FormatFloat(s.Features.RequestRate, 'f', -1, 64),
			strconv.FormatFloat(s.Features.UniqueURLProxy, 'f', -1, 64),
			strconv.Itoa(int(s.Label)),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
