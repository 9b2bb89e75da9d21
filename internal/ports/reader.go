// Package ports defines the interfaces between the monitor core and the
// infrastructure around it (log sources, record storage, classifiers,
// observers).
//
// Adapters in internal/adapters implement these interfaces. The core in
// internal/app depends only on this package and internal/domain.
package ports

import (
	"context"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

// LineSource yields lines appended to a growing log.
//
// Implementations:
//   - CursorTailer: byte cursor over a regular file, polled
//   - FollowTailer: nxadm/tail follower, tolerant of rename rotation
type LineSource interface {
	// Start positions the source at the current end of the log. Lines
	// written before Start are never returned.
	Start(ctx context.Context) error

	// Poll returns the complete lines appended since the previous call.
	//
	// Contract:
	//   - MUST NOT block waiting for growth; no growth returns (nil, nil)
	//   - a missing log is not an error
	//   - each line is returned at most once
	Poll(ctx context.Context) ([]string, error)

	// Close releases file handles and background goroutines.
	Close() error
}

// LineParser turns one raw log line into a Record.
type LineParser interface {
	// Parse returns a *domain.ParseError for lines that do not match the
	// wire format. The caller drops such lines and continues the batch.
	Parse(line string) (*domain.Record, error)

	// Format names the wire format for logging.
	Format() string
}

// ChangeNotifier signals that the log may have grown. It is a hint only:
// the monitor still polls on its idle schedule without it.
type ChangeNotifier interface {
	Changes() <-chan struct{}
	Close() error
}
