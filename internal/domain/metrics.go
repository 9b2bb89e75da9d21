package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

type MonitorState int32

const (
	StateStartup MonitorState = iota
	StatePolling
	StateIdleWait
	StateProcessingBatch
	StateErrorBackoff
	StateStopped
)

var AllStates = []MonitorState{
	StateStartup,
	StatePolling,
	StateIdleWait,
	StateProcessingBatch,
	StateErrorBackoff,
	StateStopped,
}

func (s MonitorState) String() string {
	switch s {
	case StateStartup:
		return "STARTUP"
	case StatePolling:
		return "POLLING"
	case StateIdleWait:
		return "IDLE_WAIT"
	case StateProcessingBatch:
		return "PROCESSING_BATCH"
	case StateErrorBackoff:
		return "ERROR_BACKOFF"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

type MetricsSnapshot struct {
	Cycles            int64
	FailedCycles      int64
	LinesRead         int64
	RecordsIngested   int64
	ParseFailures     int64
	DroppedRecords    int64
	Classifications   int64
	Bursts            int64
	PendingRecords    int
	PendingSources    int
	State             MonitorState
	StateSince        time.Time
	LastBatch         time.Time
	LastBatchDuration time.Duration
	Uptime            time.Duration
	StartTime         time.Time

	// ConsecutiveFailures counts failed cycles since the last success.
	// FailingSince is when the first of them ended.
	ConsecutiveFailures int64
	FailingSince        time.Time
}

type MonitorMetrics struct {
	cycles          atomic.Int64
	failedCycles    atomic.Int64
	linesRead       atomic.Int64
	recordsIngested atomic.Int64
	parseFailures   atomic.Int64
	droppedRecords  atomic.Int64
	classifications atomic.Int64
	bursts          atomic.Int64

	mu                sync.RWMutex
	state             MonitorState
	stateSince        time.Time
	lastBatch         time.Time
	lastBatchDuration time.Duration
	pendingRecords    int
	pendingSources    int
	consecutive       int64
	failingSince      time.Time
	startTime         time.Time
	now               func() time.Time
}

func NewMonitorMetrics(now func() time.Time) *MonitorMetrics {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &MonitorMetrics{
		startTime:  start,
		stateSince: start,
		now:        now,
	}
}

func (m *MonitorMetrics) IncrementCycles(failed bool) {
	m.cycles.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !failed {
		m.consecutive = 0
		return
	}
	m.failedCycles.Add(1)
	if m.consecutive == 0 {
		m.failingSince = m.now()
	}
	m.consecutive++
}

func (m *MonitorMetrics) AddLinesRead(n int) {
	m.linesRead.Add(int64(n))
}

func (m *MonitorMetrics) AddRecordsIngested(n int) {
	m.recordsIngested.Add(int64(n))
}

func (m *MonitorMetrics) IncrementParseFailures() {
	m.parseFailures.Add(1)
}

// AddDroppedRecords counts parsed records discarded unstored because the
// retry buffer was full.
func (m *MonitorMetrics) AddDroppedRecords(n int) {
	m.droppedRecords.Add(int64(n))
}

func (m *MonitorMetrics) RecordClassification(label Label) {
	m.classifications.Add(1)
	if label == LabelBurst {
		m.bursts.Add(1)
	}
}

func (m *MonitorMetrics) SetState(s MonitorState) {
	m.mu.Lock()
	if m.state != s {
		m.state = s
		m.stateSince = m.now()
	}
	m.mu.Unlock()
}

func (m *MonitorMetrics) State() MonitorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MonitorMetrics) RecordBatch(at time.Time, d time.Duration) {
	m.mu.Lock()
	m.lastBatch = at
	m.lastBatchDuration = d
	m.mu.Unlock()
}

func (m *MonitorMetrics) SetPending(records, sources int) {
	m.mu.Lock()
	m.pendingRecords = records
	m.pendingSources = sources
	m.mu.Unlock()
}

func (m *MonitorMetrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		Cycles:            m.cycles.Load(),
		FailedCycles:      m.failedCycles.Load(),
		LinesRead:         m.linesRead.Load(),
		RecordsIngested:   m.recordsIngested.Load(),
		ParseFailures:     m.parseFailures.Load(),
		DroppedRecords:    m.droppedRecords.Load(),
		Classifications:   m.classifications.Load(),
		Bursts:            m.bursts.Load(),
		PendingRecords:    m.pendingRecords,
		PendingSources:    m.pendingSources,
		State:             m.state,
		StateSince:        m.stateSince,
		LastBatch:         m.lastBatch,
		LastBatchDuration: m.lastBatchDuration,
		Uptime:            m.now().Sub(m.startTime),
		StartTime:         m.startTime,

		ConsecutiveFailures: m.consecutive,
		FailingSince:        m.failingSince,
	}
}
