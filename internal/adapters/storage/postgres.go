package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS requests (
	id                BIGSERIAL PRIMARY KEY,
	batch_id          TEXT NOT NULL DEFAULT '',
	ip                TEXT NOT NULL,
	timestamp         TEXT NOT NULL,
	url               TEXT NOT NULL,
	request_rate      DOUBLE PRECISION NOT NULL DEFAULT 0.0,
	unique_urls_proxy DOUBLE PRECISION NOT NULL DEFAULT 0.0,
	prediction        INTEGER NOT NULL DEFAULT 0 CHECK (prediction IN (0, 1))
);
CREATE INDEX IF NOT EXISTS idx_requests_ip_timestamp ON requests (ip, timestamp);
CREATE INDEX IF NOT EXISTS idx_requests_timestamp ON requests (timestamp);
`

const pgSelectColumns = `id, batch_id, ip, timestamp, url, request_rate, unique_urls_proxy, prediction`

// pqQueryCanceled is the SQLSTATE raised when statement_timeout or a context
// deadline cancels a running statement.
const pqQueryCanceled = "57014"

type PostgresConfig struct {
	DSN     string
	Timeout time.Duration
}

type PostgresStore struct {
	db    *sql.DB
	guard *guard
}

func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, domain.NewStoreError(opOpen, errors.New("dsn is required"))
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, domain.NewStoreError(opOpen, fmt.Errorf("open postgres: %w", err))
	}
	// The guard admits one operation at a time; one connection is enough.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &PostgresStore{db: db, guard: newGuard(cfg.Timeout)}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", "postgres").Dur("timeout", s.guard.timeout).Msg("Record store opened")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	conn, release, err := s.take(ctx, opOpen)
	if err != nil {
		return err
	}
	defer release()

	pingCtx, cancel := s.guard.bounded(ctx)
	err = conn.PingContext(pingCtx)
	cancel()
	if err != nil {
		return wrapPGErr(opOpen, fmt.Errorf("ping postgres: %w", err))
	}
	if _, err := conn.ExecContext(ctx, postgresSchema); err != nil {
		return wrapPGErr(opOpen, fmt.Errorf("run migrations: %w", err))
	}
	return nil
}

// take acquires the guard and then a pooled connection, dialling it within
// the store timeout. Statements on the returned connection run under
// the caller's ctx.
func (s *PostgresStore) take(ctx context.Context, op string) (*sql.Conn, func(), error) {
	releaseGuard, err := s.guard.acquire(ctx, op)
	if err != nil {
		return nil, nil, err
	}
	takeCtx, cancel := s.guard.bounded(ctx)
	defer cancel()

	conn, err := s.db.Conn(takeCtx)
	if err != nil {
		releaseGuard()
		return nil, nil, wrapPGErr(op, fmt.Errorf("connect postgres: %w", err))
	}
	return conn, func() {
		conn.Close()
		releaseGuard()
	}, nil
}

func (s *PostgresStore) BulkAppend(ctx context.Context, records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	conn, release, err := s.take(ctx, opBulkAppend)
	if err != nil {
		return err
	}
	defer release()

	ids, err := appendTx(ctx, conn, records)
	if err != nil {
		return wrapPGErr(opBulkAppend, err)
	}
	for i, r := range records {
		r.ID = ids[i]
	}
	return nil
}

func appendTx(ctx context.Context, conn *sql.Conn, records []*domain.Record) ([]int64, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO requests (batch_id, ip, timestamp, url) VALUES ($1, $2, $3, $4) RETURNING id`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		var id int64
		err := stmt.QueryRowContext(ctx, r.BatchID, r.SourceID, domain.FormatStoreTime(r.Timestamp), r.URL).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", r.SourceID, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) QueryWindow(ctx context.Context, sourceID string, windowStart time.Time) ([]*domain.Record, error) {
	conn, release, err := s.take(ctx, opQueryWindow)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.QueryContext(ctx,
		`SELECT `+pgSelectColumns+` FROM requests
		WHERE ip = $1 AND timestamp >= $2
		ORDER BY timestamp ASC, id ASC`,
		sourceID, domain.FormatStoreTime(windowStart))
	if err != nil {
		return nil, wrapPGErr(opQueryWindow, err)
	}
	records, err := scanRows(rows)
	if err != nil {
		return nil, wrapPGErr(opQueryWindow, err)
	}
	return records, nil
}

func (s *PostgresStore) UpdateWindow(ctx context.Context, sourceID string, ann domain.Annotation, windowStart time.Time) (int64, error) {
	conn, release, err := s.take(ctx, opUpdateWindow)
	if err != nil {
		return 0, err
	}
	defer release()

	res, err := conn.ExecContext(ctx,
		`UPDATE requests SET request_rate = $1, unique_urls_proxy = $2, prediction = $3
		WHERE ip = $4 AND timestamp >= $5`,
		ann.RequestRate, ann.UniqueURLProxy, int(ann.Prediction), sourceID, domain.FormatStoreTime(windowStart))
	if err != nil {
		return 0, wrapPGErr(opUpdateWindow, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapPGErr(opUpdateWindow, err)
	}
	return n, nil
}

func (s *PostgresStore) UpdateRecords(ctx context.Context, ids []int64, ann domain.Annotation) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	conn, release, err := s.take(ctx, opUpdateIDs)
	if err != nil {
		return 0, err
	}
	defer release()

	res, err := conn.ExecContext(ctx,
		`UPDATE requests SET request_rate = $1, unique_urls_proxy = $2, prediction = $3
		WHERE id = ANY($4)`,
		ann.RequestRate, ann.UniqueURLProxy, int(ann.Prediction), pq.Array(ids))
	if err != nil {
		return 0, wrapPGErr(opUpdateIDs, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapPGErr(opUpdateIDs, err)
	}
	return n, nil
}

func (s *PostgresStore) RecentRecords(ctx context.Context, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		return []*domain.Record{}, nil
	}

	conn, release, err := s.take(ctx, opRecent)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.QueryContext(ctx,
		`SELECT `+pgSelectColumns+` FROM requests ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapPGErr(opRecent, err)
	}
	records, err := scanRows(rows)
	if err != nil {
		return nil, wrapPGErr(opRecent, err)
	}
	return records, nil
}

func (s *PostgresStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.guard.timeout)
	defer cancel()
	if err := s.guard.close(ctx); err != nil {
		log.Warn().Err(err).Msg("Closing record store with an operation in flight")
	}
	if err := s.db.Close(); err != nil {
		return domain.NewStoreError(opClose, err)
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]*domain.Record, error) {
	defer rows.Close()

	records := make([]*domain.Record, 0, 16)
	for rows.Next() {
		var (
			r    domain.Record
			ts   string
			pred int
		)
		if err := rows.Scan(&r.ID, &r.BatchID, &r.SourceID, &ts, &r.URL, &r.RequestRate, &r.UniqueURLProxy, &pred); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		parsed, err := domain.ParseStoreTime(ts)
		if err != nil {
			return nil, fmt.Errorf("row %d: timestamp: %w", r.ID, err)
		}
		r.Timestamp = parsed
		r.Prediction = domain.Label(pred)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func wrapPGErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqQueryCanceled {
		return domain.NewStoreError(op, fmt.Errorf("%w: %v", domain.ErrStoreTimeout, err))
	}
	return wrapErr(op, err)
}
