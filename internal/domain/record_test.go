package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordDefaults(t *testing.T) {
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRecord("10.0.0.1", "/a", ts)

	assert.Equal(t, "10.0.0.1", r.SourceID)
	assert.Equal(t, "/a", r.URL)
	assert.Equal(t, ts, r.Timestamp)
	assert.Zero(t, r.RequestRate)
	assert.Zero(t, r.UniqueURLProxy)
	assert.Equal(t, LabelBenign, r.Prediction)
}

func TestRecordAnnotate(t *testing.T) {
	r := NewRecord("10.0.0.1", "/a", time.Now())
	ann := Annotation{Features: Features{RequestRate: 13.5, UniqueURLProxy: 4}, Prediction: LabelBurst}

	r.Annotate(ann)

	assert.Equal(t, ann, r.Annotation())
}

func TestRecordJSONFieldNames(t *testing.T) {
	r := NewRecord("10.0.0.1", "/a", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "10.0.0.1", parsed["ip"])
	assert.Equal(t, float64(0), parsed["prediction"])
	assert.Contains(t, parsed, "unique_urls_proxy")
}

func TestStoreTimeIsSortable(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 5, 0, time.UTC)
	earlier := FormatStoreTime(base)
	later := FormatStoreTime(base.Add(100 * time.Millisecond))
	inOtherZone := FormatStoreTime(base.Add(time.Second).In(time.FixedZone("x", 3600)))

	assert.Less(t, earlier, later)
	assert.Less(t, later, inOtherZone)
	assert.Len(t, earlier, len(later))

	parsed, err := ParseStoreTime(later)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(base.Add(100*time.Millisecond)))
}

func TestStoreTimeKeepsNanoseconds(t *testing.T) {
	ts, err := ParseISOTime("2025-03-01T12:00:00.123456789+02:00", nil)
	require.NoError(t, err)

	stored := FormatStoreTime(ts)
	assert.Equal(t, "2025-03-01T10:00:00.123456789Z", stored)

	back, err := ParseStoreTime(stored)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))
}

func TestDistinctSourcesKeepsFirstSeenOrder(t *testing.T) {
	now := time.Now()
	records := []*Record{
		NewRecord("b", "/", now),
		NewRecord("a", "/", now),
		NewRecord("b", "/x", now),
		NewRecord("c", "/", now),
	}

	assert.Equal(t, []string{"b", "a", "c"}, DistinctSources(records))
	assert.Empty(t, DistinctSources(nil))
}

func TestLabelString(t *testing.T) {
	assert.Equal(t, "benign", LabelBenign.String())
	assert.Equal(t, "burst", LabelBurst.String())
	assert.False(t, Label(7).Valid())
}

func TestFeaturesVectorOrder(t *testing.T) {
	f := Features{RequestRate: 0.1, UniqueURLProxy: 2}
	assert.Equal(t, [3]float64{-1, 0.1, 2}, f.Vector(UnseenSource))
}

func TestStoreErrorWrapping(t *testing.T) {
	err := NewStoreError("bulk_append", ErrStoreTimeout)
	wrapped := fmt.Errorf("cycle: %w", err)

	assert.True(t, IsStoreError(wrapped))
	assert.True(t, errors.Is(wrapped, ErrStoreTimeout))
	assert.Contains(t, err.Error(), "bulk_append")

	again := NewStoreError("query_window", wrapped)
	assert.Equal(t, "bulk_append", again.Op)
}

func TestParseErrorTruncatesLongLines(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := NewParseError(string(long), "missing IP marker")

	assert.True(t, IsParseError(err))
	assert.Less(t, len(err.Error()), 200)
}

func TestMissingArtifactErrorMessage(t *testing.T) {
	err := &MissingArtifactError{Component: "model", Path: "/models/rf.json", Err: errors.New("no such file")}
	assert.Contains(t, err.Error(), "/models/rf.json")
	assert.Contains(t, err.Error(), "training")
}

func TestMonitorMetricsSnapshot(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := NewMonitorMetrics(clock)

	m.IncrementCycles(false)
	m.IncrementCycles(true)
	m.AddLinesRead(10)
	m.AddRecordsIngested(8)
	m.IncrementParseFailures()
	m.RecordClassification(LabelBurst)
	m.RecordClassification(LabelBenign)
	m.SetState(StateErrorBackoff)
	m.SetPending(3, 1)

	now = now.Add(time.Minute)
	snap := m.GetSnapshot()

	assert.Equal(t, int64(2), snap.Cycles)
	assert.Equal(t, int64(1), snap.FailedCycles)
	assert.Equal(t, int64(10), snap.LinesRead)
	assert.Equal(t, int64(8), snap.RecordsIngested)
	assert.Equal(t, int64(1), snap.ParseFailures)
	assert.Equal(t, int64(2), snap.Classifications)
	assert.Equal(t, int64(1), snap.Bursts)
	assert.Equal(t, StateErrorBackoff, snap.State)
	assert.Equal(t, 3, snap.PendingRecords)
	assert.Equal(t, time.Minute, snap.Uptime)
}

func TestMonitorMetricsConsecutiveFailures(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMonitorMetrics(func() time.Time { return now })

	m.IncrementCycles(true)
	first := now
	now = now.Add(5 * time.Second)
	m.IncrementCycles(true)

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.ConsecutiveFailures)
	assert.Equal(t, first, snap.FailingSince)

	m.IncrementCycles(false)
	assert.Zero(t, m.GetSnapshot().ConsecutiveFailures)
	assert.Equal(t, int64(2), m.GetSnapshot().FailedCycles)
}

func TestMonitorStateString(t *testing.T) {
	assert.Equal(t, "IDLE_WAIT", StateIdleWait.String())
	assert.Equal(t, "PROCESSING_BATCH", StateProcessingBatch.String())
	assert.Len(t, AllStates, 6)
}
