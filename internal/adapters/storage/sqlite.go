package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

const (
	opOpen         = "open"
	opBulkAppend   = "bulk_append"
	opQueryWindow  = "query_window"
	opUpdateWindow = "update_window"
	opUpdateIDs    = "update_records"
	opRecent       = "recent_records"
	opClose        = "close"

	// updateChunk keeps IN lists well below SQLite's bound-parameter limit.
	updateChunk = 500
)

const schema = `
CREATE TABLE IF NOT EXISTS requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id TEXT NOT NULL DEFAULT '',
	ip TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	url TEXT NOT NULL,
	request_rate REAL NOT NULL DEFAULT 0.0,
	unique_urls_proxy REAL NOT NULL DEFAULT 0.0,
	prediction INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_requests_ip_timestamp ON requests (ip, timestamp);
CREATE INDEX IF NOT EXISTS idx_requests_timestamp ON requests (timestamp);
`

// rowid aliases id on tables created here and still exists on legacy tables
// that were created without an id column.
const selectColumns = `rowid, batch_id, ip, timestamp, url, request_rate, unique_urls_proxy, prediction`

type SQLiteConfig struct {
	Path    string
	Timeout time.Duration
}

type SQLiteStore struct {
	pool  *sqlitex.Pool
	guard *guard
	path  string
}

func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, domain.NewStoreError(opOpen, errors.New("path is required"))
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
			return nil, domain.NewStoreError(opOpen, fmt.Errorf("create directory: %w", err))
		}
	}

	g := newGuard(cfg.Timeout)
	busyTimeout := g.timeout.Milliseconds()

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: 1,
		PrepareConn: func(conn *sqlite.Conn) error {
			pragmas := []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
			}
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("%s: %w", pragma, err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, domain.NewStoreError(opOpen, fmt.Errorf("open %s: %w", cfg.Path, err))
	}

	s := &SQLiteStore{pool: pool, guard: g, path: cfg.Path}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Str("driver", "sqlite").Str("path", cfg.Path).Dur("timeout", g.timeout).Msg("Record store opened")
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	conn, release, err := s.take(ctx, opOpen)
	if err != nil {
		return err
	}
	defer release()

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return domain.NewStoreError(opOpen, fmt.Errorf("create schema: %w", err))
	}

	hasBatchID := false
	err = sqlitex.ExecuteTransient(conn, "SELECT name FROM pragma_table_info('requests')", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if stmt.ColumnText(0) == "batch_id" {
				hasBatchID = true
			}
			return nil
		},
	})
	if err != nil {
		return domain.NewStoreError(opOpen, fmt.Errorf("inspect schema: %w", err))
	}
	if !hasBatchID {
		log.Warn().Str("path", s.path).Msg("Migrating legacy requests table, adding batch_id column")
		if err := sqlitex.ExecuteTransient(conn, "ALTER TABLE requests ADD COLUMN batch_id TEXT NOT NULL DEFAULT ''", nil); err != nil {
			return domain.NewStoreError(opOpen, fmt.Errorf("add batch_id: %w", err))
		}
	}
	return nil
}

// take acquires the guard and then the single pooled connection. Both waits
// are bounded by the store timeout; statements on the returned connection
// are interrupted only when the caller's ctx ends.
func (s *SQLiteStore) take(ctx context.Context, op string) (*sqlite.Conn, func(), error) {
	releaseGuard, err := s.guard.acquire(ctx, op)
	if err != nil {
		return nil, nil, err
	}
	takeCtx, cancel := s.guard.bounded(ctx)
	conn, err := s.pool.Take(takeCtx)
	if err != nil {
		cancel()
		releaseGuard()
		return nil, nil, wrapErr(op, err)
	}
	conn.SetInterrupt(ctx.Done())
	cancel()
	return conn, func() {
		s.pool.Put(conn)
		releaseGuard()
	}, nil
}

func (s *SQLiteStore) BulkAppend(ctx context.Context, records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	conn, release, err := s.take(ctx, opBulkAppend)
	if err != nil {
		return err
	}
	defer release()

	ids, err := appendRecords(conn, records)
	if err != nil {
		return wrapErr(opBulkAppend, err)
	}
	for i, r := range records {
		r.ID = ids[i]
	}
	return nil
}

func appendRecords(conn *sqlite.Conn, records []*domain.Record) (ids []int64, err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	ids = make([]int64, 0, len(records))
	for _, r := range records {
		err = sqlitex.Execute(conn,
			`INSERT INTO requests (batch_id, ip, timestamp, url, request_rate, unique_urls_proxy, prediction)
			VALUES (?, ?, ?, ?, 0.0, 0.0, 0)`,
			&sqlitex.ExecOptions{
				Args: []any{r.BatchID, r.SourceID, domain.FormatStoreTime(r.Timestamp), r.URL},
			})
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", r.SourceID, err)
		}
		ids = append(ids, conn.LastInsertRowID())
	}
	return ids, nil
}

func (s *SQLiteStore) QueryWindow(ctx context.Context, sourceID string, windowStart time.Time) ([]*domain.Record, error) {
	conn, release, err := s.take(ctx, opQueryWindow)
	if err != nil {
		return nil, err
	}
	defer release()

	records := make([]*domain.Record, 0, 16)
	err = sqlitex.Execute(conn,
		`SELECT `+selectColumns+` FROM requests
		WHERE ip = ? AND timestamp >= ?
		ORDER BY timestamp ASC, rowid ASC`,
		&sqlitex.ExecOptions{
			Args: []any{sourceID, domain.FormatStoreTime(windowStart)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				r, err := scanRecord(stmt)
				if err != nil {
					return err
				}
				records = append(records, r)
				return nil
			},
		})
	if err != nil {
		return nil, wrapErr(opQueryWindow, err)
	}
	return records, nil
}

func (s *SQLiteStore) UpdateWindow(ctx context.Context, sourceID string, ann domain.Annotation, windowStart time.Time) (int64, error) {
	conn, release, err := s.take(ctx, opUpdateWindow)
	if err != nil {
		return 0, err
	}
	defer release()

	err = sqlitex.Execute(conn,
		`UPDATE requests SET request_rate = ?, unique_urls_proxy = ?, prediction = ?
		WHERE ip = ? AND timestamp >= ?`,
		&sqlitex.ExecOptions{
			Args: []any{ann.RequestRate, ann.UniqueURLProxy, int(ann.Prediction),
				sourceID, domain.FormatStoreTime(windowStart)},
		})
	if err != nil {
		return 0, wrapErr(opUpdateWindow, err)
	}
	return int64(conn.Changes()), nil
}

func (s *SQLiteStore) UpdateRecords(ctx context.Context, ids []int64, ann domain.Annotation) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	conn, release, err := s.take(ctx, opUpdateIDs)
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := updateByID(conn, ids, ann)
	if err != nil {
		return 0, wrapErr(opUpdateIDs, err)
	}
	return n, nil
}

func updateByID(conn *sqlite.Conn, ids []int64, ann domain.Annotation) (n int64, err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for start := 0; start < len(ids); start += updateChunk {
		end := min(start+updateChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, 0, len(chunk)+3)
		args = append(args, ann.RequestRate, ann.UniqueURLProxy, int(ann.Prediction))
		for _, id := range chunk {
			args = append(args, id)
		}
		query := `UPDATE requests SET request_rate = ?, unique_urls_proxy = ?, prediction = ?
			WHERE rowid IN (` + placeholders(len(chunk)) + `)`

		if err = sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return 0, err
		}
		n += int64(conn.Changes())
	}
	return n, nil
}

func (s *SQLiteStore) RecentRecords(ctx context.Context, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		return []*domain.Record{}, nil
	}

	conn, release, err := s.take(ctx, opRecent)
	if err != nil {
		return nil, err
	}
	defer release()

	records := make([]*domain.Record, 0, min(limit, 1024))
	err = sqlitex.Execute(conn,
		`SELECT `+selectColumns+` FROM requests ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				r, err := scanRecord(stmt)
				if err != nil {
					return err
				}
				records = append(records, r)
				return nil
			},
		})
	if err != nil {
		return nil, wrapErr(opRecent, err)
	}
	return records, nil
}

func (s *SQLiteStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.guard.timeout)
	defer cancel()
	if err := s.guard.close(ctx); err != nil {
		log.Warn().Err(err).Msg("Closing record store with an operation in flight")
	}
	if err := s.pool.Close(); err != nil {
		return domain.NewStoreError(opClose, err)
	}
	return nil
}

func scanRecord(stmt *sqlite.Stmt) (*domain.Record, error) {
	ts, err := domain.ParseStoreTime(stmt.ColumnText(3))
	if err != nil {
		return nil, fmt.Errorf("row %d: timestamp: %w", stmt.ColumnInt64(0), err)
	}
	return &domain.Record{
		ID:             stmt.ColumnInt64(0),
		BatchID:        stmt.ColumnText(1),
		SourceID:       stmt.ColumnText(2),
		Timestamp:      ts,
		URL:            stmt.ColumnText(4),
		RequestRate:    stmt.ColumnFloat(5),
		UniqueURLProxy: stmt.ColumnFloat(6),
		Prediction:     domain.Label(stmt.ColumnInt(7)),
	}, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func wrapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", domain.ErrStoreTimeout, err)
	}
	return domain.NewStoreError(op, err)
}
