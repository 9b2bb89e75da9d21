package ports

import (
	"context"
	"time"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

// RecordStore is the durable, append-mostly table of request records.
//
// Implementations:
//   - SQLiteStore: embedded SQLite database (default)
//   - PostgresStore: shared PostgreSQL database
//
// Concurrency: every operation is serialised by a guard private to the
// store. Acquiring the guard is bounded by a timeout; expiry returns a
// *domain.StoreError wrapping domain.ErrStoreTimeout. All failures are
// reported as *domain.StoreError.
type RecordStore interface {
	RecentReader

	// BulkAppend inserts records in one all-or-nothing transaction with
	// default annotations (0.0, 0.0, 0). On success every record's ID is set
	// to its store identifier.
	BulkAppend(ctx context.Context, records []*domain.Record) error

	// QueryWindow returns every record of sourceID with a timestamp at or
	// after windowStart, oldest first. Zero matches is an empty slice.
	QueryWindow(ctx context.Context, sourceID string, windowStart time.Time) ([]*domain.Record, error)

	// UpdateWindow annotates every record of sourceID with a timestamp at or
	// after windowStart and returns the number of rows affected. Applying the
	// same arguments twice leaves the store unchanged.
	UpdateWindow(ctx context.Context, sourceID string, ann domain.Annotation, windowStart time.Time) (int64, error)

	// UpdateRecords annotates exactly the records with the given IDs and
	// returns the number of rows affected.
	UpdateRecords(ctx context.Context, ids []int64, ann domain.Annotation) (int64, error)

	// Close releases the underlying connections.
	Close() error
}

// RecentReader is the read-only view used by the dashboard and CLI.
type RecentReader interface {
	// RecentRecords returns at most limit records, newest timestamp first.
	RecentRecords(ctx context.Context, limit int) ([]*domain.Record, error)
}
