// Package detection derives burst features from windows of request records.
//
// The monitor queries the store for every record of a source inside the
// trailing window and summarises them into a fixed-shape feature record:
//
//   - RequestRate: records in the window divided by the window length in seconds
//   - UniqueURLProxy: number of distinct URLs in the window
//
// The same computation feeds the offline dataset builder so that training
// data and live classification use identical features.
package detection

import (
	"time"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

// DefaultWindow is the trailing window over which features are computed.
const DefaultWindow = 30 * time.Second

// Compute summarises the records of one source over a window.
//
// Parameters:
//   - records: every record of the source inside the window (any order)
//   - window: window length; a non-positive window yields a zero rate
//
// Returns:
//   - Features{0, 0} for an empty window
func Compute(records []*domain.Record, window time.Duration) domain.Features {
	if len(records) == 0 {
		return domain.Features{}
	}

	urls := make(map[string]struct{}, len(records))
	for _, r := range records {
		urls[r.URL] = struct{}{}
	}

	var rate float64
	if seconds := window.Seconds(); seconds > 0 {
		rate = float64(len(records)) / seconds
	}

	return domain.Features{
		RequestRate:    rate,
		UniqueURLProxy: float64(len(urls)),
	}
}

// WindowStart returns the inclusive lower bound of the window ending at now.
func WindowStart(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}
