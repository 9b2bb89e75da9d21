package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/input"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/storage"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/app"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

func TestPrintRecordsTable(t *testing.T) {
	r := domain.NewRecord("203.0.113.9", "/?q=\x1b[2Jabc", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	r.ID = 7
	r.RequestRate = 13.333
	r.UniqueURLProxy = 400
	r.Prediction = domain.LabelBurst

	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, []*domain.Record{r}, false))

	out := buf.String()
	assert.Contains(t, out, "PREDICTION")
	assert.Contains(t, out, "203.0.113.9")
	assert.Contains(t, out, "13.333")
	assert.NotContains(t, out, "\x1b")
}

func TestPrintRecordsJSON(t *testing.T) {
	r := domain.NewRecord("10.0.0.1", "/", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, []*domain.Record{r, r}, true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, "10.0.0.1", decoded["ip"])
}

func TestPrintRecordsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, nil, false))
	assert.Equal(t, "No records.\n", buf.String())
}

func TestStoreNameHidesDSN(t *testing.T) {
	assert.Equal(t, "postgres", storeName(app.StoreSettings{Driver: storage.DriverPostgres, DSN: "postgres://u:secret@db/x"}))
	assert.Equal(t, "requests.db", storeName(app.StoreSettings{Driver: storage.DriverSQLite, Path: "./logs/requests.db"}))
}

func TestNewLineSourceByMode(t *testing.T) {
	assert.IsType(t, &input.FollowTailer{}, newLineSource(app.LogSettings{Path: "x.log", Mode: "follow"}))
	assert.IsType(t, &input.CursorTailer{}, newLineSource(app.LogSettings{Path: "x.log", Mode: "cursor"}))
}

func TestReadLinesSkipsBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, []byte("a\n\n  \nb\n"), 0644))

	lines, err := readLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
}
