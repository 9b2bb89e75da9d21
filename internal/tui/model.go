package tui

import (
	"container/heap"
	"time"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

const (
	// maxRateBuckets bounds the requests-per-second series; older seconds
	// fall off the left edge.
	maxRateBuckets = 3600
	defaultTopN    = 10
)

type Verdict int

const (
	VerdictNoData Verdict = iota
	VerdictClear
	VerdictBurst
)

type SourceEntry struct {
	SourceID string
	Requests int
	Bursts   int
	LastSeen time.Time
	// Latest is the most recent annotation written for the source.
	Latest    domain.Annotation
	heapIndex int
}

// Summary is everything the dashboard renders, derived from one read of the
// most recent records.
type Summary struct {
	Verdict Verdict
	Total   int
	Bursts  int
	Benign  int
	Sources int

	// RatePerSecond holds request counts per wall-clock second, oldest
	// first, starting at RateStart.
	RatePerSecond []float64
	RateStart     time.Time

	TopSources   []*SourceEntry
	BurstSources []string
	Newest       time.Time
	Oldest       time.Time
}

type sourceHeap []*SourceEntry

func (h sourceHeap) Len() int { return len(h) }
func (h sourceHeap) Less(i, j int) bool {
	if h[i].Requests != h[j].Requests {
		return h[i].Requests > h[j].Requests
	}
	return h[i].SourceID < h[j].SourceID
}
func (h sourceHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *sourceHeap) Push(x any) {
	item := x.(*SourceEntry)
	item.heapIndex = len(*h)
	*h = append(*h, item)
}

func (h *sourceHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapIndex = -1
	*h = old[:n-1]
	return item
}

// Summarize aggregates records (any order) into the dashboard summary. The
// verdict is a burst when any record carries a burst prediction.
func Summarize(records []*domain.Record, topN int) Summary {
	if topN <= 0 {
		topN = defaultTopN
	}
	s := Summary{Total: len(records)}
	if len(records) == 0 {
		return s
	}

	bySource := make(map[string]*SourceEntry)
	var burstOrder []string
	s.Oldest, s.Newest = records[0].Timestamp, records[0].Timestamp

	for _, r := range records {
		if r.Timestamp.Before(s.Oldest) {
			s.Oldest = r.Timestamp
		}
		if r.Timestamp.After(s.Newest) {
			s.Newest = r.Timestamp
		}

		e, ok := bySource[r.SourceID]
		if !ok {
			e = &SourceEntry{SourceID: r.SourceID}
			bySource[r.SourceID] = e
		}
		e.Requests++
		if !r.Timestamp.Before(e.LastSeen) {
			e.LastSeen = r.Timestamp
			e.Latest = r.Annotation()
		}

		if r.Prediction == domain.LabelBurst {
			s.Bursts++
			if e.Bursts == 0 {
				burstOrder = append(burstOrder, r.SourceID)
			}
			e.Bursts++
		} else {
			s.Benign++
		}
	}

	s.Sources = len(bySource)
	s.BurstSources = burstOrder
	s.Verdict = VerdictClear
	if s.Bursts > 0 {
		s.Verdict = VerdictBurst
	}

	h := make(sourceHeap, 0, len(bySource))
	for _, e := range bySource {
		heap.Push(&h, e)
	}
	for h.Len() > 0 && len(s.TopSources) < topN {
		s.TopSources = append(s.TopSources, heap.Pop(&h).(*SourceEntry))
	}

	s.RateStart, s.RatePerSecond = ratePerSecond(records, s.Oldest, s.Newest)
	return s
}

// ratePerSecond buckets records into whole seconds between oldest and newest.
func ratePerSecond(records []*domain.Record, oldest, newest time.Time) (time.Time, []float64) {
	start := oldest.Truncate(time.Second)
	end := newest.Truncate(time.Second)
	if n := int(end.Sub(start)/time.Second) + 1; n > maxRateBuckets {
		start = end.Add(-(maxRateBuckets - 1) * time.Second)
	}

	buckets := make([]float64, int(end.Sub(start)/time.Second)+1)
	for _, r := range records {
		ts := r.Timestamp.Truncate(time.Second)
		if ts.Before(start) {
			continue
		}
		buckets[int(ts.Sub(start)/time.Second)]++
	}
	return start, buckets
}

// Model is the dashboard state between refreshes.
type Model struct {
	Summary     Summary
	Recent      []*domain.Record
	Err         error
	LastRefresh time.Time
	Refreshes   int
	ActiveView  int
}

const viewCount = 2

// Apply installs a refresh result. A failed refresh keeps the previous data
// on screen and records the error.
func (m *Model) Apply(records []*domain.Record, tableLimit int, err error, at time.Time) {
	m.LastRefresh = at
	m.Refreshes++
	m.Err = err
	if err != nil {
		return
	}
	m.Summary = Summarize(records, defaultTopN)
	if tableLimit > 0 && len(records) > tableLimit {
		records = records[:tableLimit]
	}
	m.Recent = records
}

func (m *Model) NextView() {
	m.ActiveView = (m.ActiveView + 1) % viewCount
}
