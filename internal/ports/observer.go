package ports

import (
	"time"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

// BatchStats summarises one PROCESSING_BATCH cycle.
type BatchStats struct {
	BatchID       string
	LinesRead     int
	Parsed        int
	ParseFailures int
	Appended      int
	Dropped       int
	Sources       int
	Duration      time.Duration
	Err           error
}

// CycleObserver receives monitor events. Used by the Prometheus adapter and
// by tests.
//
// Performance: called synchronously from the monitor loop, so
// implementations should return quickly.
type CycleObserver interface {
	OnStateChange(state domain.MonitorState)
	OnBatch(stats BatchStats)
	OnClassification(c *domain.Classification)
	OnStoreError(op string)
}
