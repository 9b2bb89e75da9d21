package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

func TestSQLiteGuardTimeoutThenRetry(t *testing.T) {
	s := openTestSQLite(t, 50*time.Millisecond)
	ctx := context.Background()

	holdRelease, err := s.guard.acquire(ctx, "test")
	require.NoError(t, err)

	batch := makeRecords("10.0.0.1", baseTime, 2)
	err = s.BulkAppend(ctx, batch)
	require.Error(t, err)

	var se *domain.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, opBulkAppend, se.Op)
	assert.ErrorIs(t, err, domain.ErrStoreTimeout)

	_, err = s.UpdateWindow(ctx, "10.0.0.1", domain.Annotation{}, baseTime)
	assert.ErrorIs(t, err, domain.ErrStoreTimeout)

	holdRelease()

	require.NoError(t, s.BulkAppend(ctx, batch))
	got, err := s.QueryWindow(ctx, "10.0.0.1", baseTime)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLiteCallerCancellation(t *testing.T) {
	s := openTestSQLite(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RecentRecords(ctx, 10)
	require.Error(t, err)
	assert.True(t, domain.IsStoreError(err))
}

func TestSQLiteStatementsOutliveStoreTimeout(t *testing.T) {
	const timeout = 10 * time.Millisecond
	s := openTestSQLite(t, timeout)
	ctx := context.Background()

	conn, release, err := s.take(ctx, opQueryWindow)
	require.NoError(t, err)
	time.Sleep(5 * timeout)
	err = sqlitex.ExecuteTransient(conn, "SELECT count(*) FROM requests", nil)
	release()
	require.NoError(t, err)

	batch := makeRecords("10.0.0.1", baseTime, 50000)
	require.NoError(t, s.BulkAppend(ctx, batch))
	got, err := s.QueryWindow(ctx, "10.0.0.1", baseTime)
	require.NoError(t, err)
	assert.Len(t, got, len(batch))
}

func TestSQLiteCallerCancelInterruptsStatement(t *testing.T) {
	s := openTestSQLite(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	conn, release, err := s.take(ctx, opQueryWindow)
	require.NoError(t, err)
	defer release()
	cancel()

	err = sqlitex.ExecuteTransient(conn, "SELECT count(*) FROM requests", nil)
	require.Error(t, err)
	assert.Equal(t, sqlite.ResultInterrupt, sqlite.ErrCode(err))
}

func TestSQLiteClosedStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), SQLiteConfig{Path: filepath.Join(t.TempDir(), "r.db")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.BulkAppend(context.Background(), makeRecords("10.0.0.1", baseTime, 1))
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
}

func TestSQLiteMigratesLegacyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.db")

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	require.NoError(t, err)
	require.NoError(t, sqlitex.ExecuteScript(conn, `
		CREATE TABLE requests (
			ip TEXT, timestamp TEXT, url TEXT,
			request_rate REAL, unique_urls_proxy REAL, prediction INTEGER
		);
		INSERT INTO requests VALUES ('10.0.0.7', '2025-03-01T12:00:00.500000', '/old', 0.0, 0.0, 0);
	`, nil))
	require.NoError(t, conn.Close())

	s, err := OpenSQLite(context.Background(), SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.QueryWindow(context.Background(), "10.0.0.7", baseTime)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].BatchID)
	assert.Equal(t, "/old", got[0].URL)
	assert.True(t, got[0].Timestamp.Equal(baseTime.Add(500*time.Millisecond)))

	n, err := s.UpdateRecords(context.Background(), []int64{got[0].ID}, domain.Annotation{Prediction: domain.LabelBurst})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.BulkAppend(context.Background(), makeRecords("10.0.0.7", baseTime.Add(time.Second), 1)))
}

func TestSQLiteUpdateRecordsLargeIDSet(t *testing.T) {
	s := openTestSQLite(t, 5*time.Second)
	ctx := context.Background()

	batch := makeRecords("10.0.0.1", baseTime, updateChunk*2+17)
	require.NoError(t, s.BulkAppend(ctx, batch))

	n, err := s.UpdateRecords(ctx, domain.RecordIDs(batch), domain.Annotation{Prediction: domain.LabelBurst})
	require.NoError(t, err)
	assert.Equal(t, int64(len(batch)), n)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestGuardSerialisesAcquirers(t *testing.T) {
	g := newGuard(20 * time.Millisecond)
	ctx := context.Background()

	release, err := g.acquire(ctx, "first")
	require.NoError(t, err)

	_, err = g.acquire(ctx, "second")
	assert.ErrorIs(t, err, domain.ErrStoreTimeout)

	release()
	release()

	release2, err := g.acquire(ctx, "third")
	require.NoError(t, err)
	release2()
}

func TestGuardDefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, newGuard(0).timeout)
}
