package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/input"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/storage"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/ports"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSource hands out queued batches, one per Poll.
type fakeSource struct {
	mu      sync.Mutex
	batches [][]string
	pollErr error
	started bool
	polls   int
}

func (s *fakeSource) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeSource) Poll(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.pollErr != nil {
		err := s.pollErr
		s.pollErr = nil
		return nil, err
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func (s *fakeSource) Close() error { return nil }

func (s *fakeSource) push(lines ...string) {
	s.mu.Lock()
	s.batches = append(s.batches, lines)
	s.mu.Unlock()
}

func (s *fakeSource) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// rateClassifier flags any window above threshold req/s.
type rateClassifier struct {
	known     map[string]int
	threshold float64
	failNext  int
	panicNext int
}

func (c *rateClassifier) Encode(src string) int {
	if id, ok := c.known[src]; ok {
		return id
	}
	return domain.UnseenSource
}

func (c *rateClassifier) Size() int { return len(c.known) }

func (c *rateClassifier) Predict(_ int, f domain.Features) (domain.Label, error) {
	if c.panicNext > 0 {
		c.panicNext--
		panic("backend crashed")
	}
	if c.failNext > 0 {
		c.failNext--
		return domain.LabelBenign, errors.New("inference backend unavailable")
	}
	if f.RequestRate > c.threshold {
		return domain.LabelBurst, nil
	}
	return domain.LabelBenign, nil
}

func (c *rateClassifier) Name() string  { return "rate" }
func (c *rateClassifier) Close() error { return nil }

// flakyStore fails the next n calls of an operation with a guard timeout.
type flakyStore struct {
	ports.RecordStore
	mu   sync.Mutex
	fail map[string]int
}

func (s *flakyStore) failOp(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[op] > 0 {
		s.fail[op]--
		return domain.NewStoreError(op, domain.ErrStoreTimeout)
	}
	return nil
}

func (s *flakyStore) BulkAppend(ctx context.Context, records []*domain.Record) error {
	if err := s.failOp("bulk_append"); err != nil {
		return err
	}
	return s.RecordStore.BulkAppend(ctx, records)
}

func (s *flakyStore) UpdateRecords(ctx context.Context, ids []int64, ann domain.Annotation) (int64, error) {
	if err := s.failOp("update_records"); err != nil {
		return 0, err
	}
	return s.RecordStore.UpdateRecords(ctx, ids, ann)
}

type recordingObserver struct {
	mu          sync.Mutex
	states      []domain.MonitorState
	batches     []ports.BatchStats
	results     []*domain.Classification
	storeErrors []string
}

func (o *recordingObserver) OnStateChange(s domain.MonitorState) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func (o *recordingObserver) OnBatch(s ports.BatchStats) {
	o.mu.Lock()
	o.batches = append(o.batches, s)
	o.mu.Unlock()
}

func (o *recordingObserver) OnClassification(c *domain.Classification) {
	o.mu.Lock()
	o.results = append(o.results, c)
	o.mu.Unlock()
}

func (o *recordingObserver) OnStoreError(op string) {
	o.mu.Lock()
	o.storeErrors = append(o.storeErrors, op)
	o.mu.Unlock()
}

func (o *recordingObserver) stateLog() []domain.MonitorState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.MonitorState(nil), o.states...)
}

type harness struct {
	monitor  *Monitor
	source   *fakeSource
	store    *flakyStore
	clf      *rateClassifier
	observer *recordingObserver
	clock    clockwork.FakeClock
}

func newHarness(t *testing.T, tunables Tunables) *harness {
	t.Helper()
	st, err := storage.OpenSQLite(context.Background(), storage.SQLiteConfig{
		Path:    filepath.Join(t.TempDir(), "requests.db"),
		Timeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := &harness{
		source:   &fakeSource{},
		store:    &flakyStore{RecordStore: st, fail: map[string]int{}},
		clf:      &rateClassifier{known: map[string]int{"10.0.0.1": 0, "203.0.113.9": 1}, threshold: 10},
		observer: &recordingObserver{},
		clock:    clockwork.NewFakeClockAt(t0.Add(5 * time.Second)),
	}
	h.monitor = NewMonitor(h.source, input.NewWireParser(time.UTC), h.store, h.clf, MonitorOptions{
		Tunables:  tunables,
		Clock:     h.clock,
		Observers: []ports.CycleObserver{h.observer},
	})
	return h
}

func wireLines(source string, n int, every time.Duration, urls ...string) []string {
	if len(urls) == 0 {
		urls = []string{"/"}
	}
	lines := make([]string, n)
	for i := range lines {
		ts := t0.Add(time.Duration(i) * every).Format(input.ProducerTimeLayout)
		lines[i] = input.FormatWireLine(source, urls[i%len(urls)], ts)
	}
	return lines
}

func recent(t *testing.T, h *harness) []*domain.Record {
	t.Helper()
	records, err := h.store.RecentRecords(context.Background(), 10000)
	require.NoError(t, err)
	return records
}

func TestProcessBatchLowRateSource(t *testing.T) {
	h := newHarness(t, DefaultTunables())

	stats, err := h.monitor.ProcessBatch(context.Background(), wireLines("10.0.0.1", 3, time.Second, "/a", "/b"))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Parsed)
	assert.Equal(t, 3, stats.Appended)
	assert.Equal(t, 1, stats.Sources)
	assert.NotEmpty(t, stats.BatchID)

	for _, r := range recent(t, h) {
		assert.InDelta(t, 0.10, r.RequestRate, 1e-9)
		assert.Equal(t, 2.0, r.UniqueURLProxy)
		assert.Equal(t, domain.LabelBenign, r.Prediction)
		assert.Equal(t, stats.BatchID, r.BatchID)
	}
}

func TestProcessBatchFloodSource(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	lines := append(wireLines("203.0.113.9", 400, 10*time.Millisecond), wireLines("10.0.0.1", 2, time.Second)...)

	_, err := h.monitor.ProcessBatch(context.Background(), lines)
	require.NoError(t, err)

	bySource := map[string][]*domain.Record{}
	for _, r := range recent(t, h) {
		bySource[r.SourceID] = append(bySource[r.SourceID], r)
	}
	require.Len(t, bySource["203.0.113.9"], 400)
	for _, r := range bySource["203.0.113.9"] {
		assert.Equal(t, domain.LabelBurst, r.Prediction)
		assert.InDelta(t, 13.333333, r.RequestRate, 1e-6)
		assert.Equal(t, 1.0, r.UniqueURLProxy)
	}
	for _, r := range bySource["10.0.0.1"] {
		assert.Equal(t, domain.LabelBenign, r.Prediction)
	}

	require.Len(t, h.observer.results, 2)
	assert.Equal(t, "203.0.113.9", h.observer.results[0].SourceID)
	assert.True(t, h.observer.results[0].Burst())

	snap := h.monitor.Metrics()
	assert.Equal(t, int64(402), snap.RecordsIngested)
	assert.Equal(t, int64(1), snap.Bursts)
}

func TestProcessBatchUnseenSourceStillClassified(t *testing.T) {
	h := newHarness(t, DefaultTunables())

	_, err := h.monitor.ProcessBatch(context.Background(), wireLines("198.51.100.7", 2, time.Second))
	require.NoError(t, err)

	require.Len(t, h.observer.results, 1)
	assert.True(t, h.observer.results[0].Unseen())
	assert.Equal(t, domain.UnseenSource, h.observer.results[0].EncodedID)
}

func TestProcessBatchDropsMalformedLines(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	lines := append([]string{"garbage", "IP: , URL: /, Time: 2025-03-01T12:00:00"}, wireLines("10.0.0.1", 1, time.Second)...)

	stats, err := h.monitor.ProcessBatch(context.Background(), lines)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ParseFailures)
	assert.Equal(t, 1, stats.Appended)
	assert.Equal(t, int64(2), h.monitor.Metrics().ParseFailures)
}

func TestProcessBatchSkipsSourceOutsideWindow(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	h.clock.Advance(time.Hour)

	stats, err := h.monitor.ProcessBatch(context.Background(), wireLines("10.0.0.1", 2, time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Appended)
	assert.Empty(t, h.observer.results)
	for _, r := range recent(t, h) {
		assert.Zero(t, r.RequestRate)
	}
}

func TestProcessBatchRetriesFailedAppend(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	h.store.fail["bulk_append"] = 1
	ctx := context.Background()

	_, err := h.monitor.ProcessBatch(ctx, wireLines("10.0.0.1", 3, time.Second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreTimeout))
	assert.Empty(t, recent(t, h))
	assert.Equal(t, []string{"bulk_append"}, h.observer.storeErrors)
	assert.Equal(t, 3, h.monitor.Metrics().PendingRecords)

	stats, err := h.monitor.ProcessBatch(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Appended)

	records := recent(t, h)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.InDelta(t, 0.10, r.RequestRate, 1e-9)
	}
	assert.Zero(t, h.monitor.Metrics().PendingRecords)
}

func TestProcessBatchRetriesFailedAnnotation(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	h.store.fail["update_records"] = 1
	ctx := context.Background()

	_, err := h.monitor.ProcessBatch(ctx, wireLines("10.0.0.1", 2, time.Second))
	require.Error(t, err)
	assert.Equal(t, 1, h.monitor.Metrics().PendingSources)

	_, err = h.monitor.ProcessBatch(ctx, nil)
	require.NoError(t, err)

	records := recent(t, h)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotZero(t, r.RequestRate)
	}
}

func TestProcessBatchRetriesFailedPrediction(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	h.clf.failNext = 1
	ctx := context.Background()

	_, err := h.monitor.ProcessBatch(ctx, wireLines("10.0.0.1", 2, time.Second))
	require.Error(t, err)
	assert.Empty(t, h.observer.storeErrors)

	_, err = h.monitor.ProcessBatch(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, h.observer.results, 1)
}

func TestProcessBatchRecoversClassifierPanic(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	h.clf.panicNext = 1
	ctx := context.Background()
	lines := append(wireLines("10.0.0.1", 2, time.Second), wireLines("203.0.113.9", 2, time.Second)...)

	var err error
	require.NotPanics(t, func() {
		_, err = h.monitor.ProcessBatch(ctx, lines)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend crashed")
	assert.Len(t, recent(t, h), 4)

	require.Len(t, h.observer.batches, 1)
	assert.Error(t, h.observer.batches[0].Err)
	snap := h.monitor.Metrics()
	assert.Equal(t, int64(1), snap.FailedCycles)
	assert.Equal(t, 2, snap.PendingSources)

	_, err = h.monitor.ProcessBatch(ctx, nil)
	require.NoError(t, err)
	require.Len(t, h.observer.results, 2)
	assert.Zero(t, h.monitor.Metrics().PendingSources)
}

func TestProcessBatchCapsPendingRecords(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	h.monitor.maxPending = 100
	h.store.fail["bulk_append"] = 5
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		stats, err := h.monitor.ProcessBatch(ctx, wireLines(fmt.Sprintf("10.0.%d.1", i), 60, 10*time.Millisecond))
		require.Error(t, err)
		assert.LessOrEqual(t, len(h.monitor.pendingRecords), 100)
		if i == 1 {
			assert.Equal(t, 20, stats.Dropped)
		}
	}

	snap := h.monitor.Metrics()
	assert.Equal(t, 100, snap.PendingRecords)
	assert.Equal(t, int64(200), snap.DroppedRecords)

	stats, err := h.monitor.ProcessBatch(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, stats.Appended)
	assert.Zero(t, stats.Dropped)

	bySource := map[string]int{}
	for _, r := range recent(t, h) {
		bySource[r.SourceID]++
	}
	assert.Equal(t, map[string]int{"10.0.3.1": 40, "10.0.4.1": 60}, bySource)
}

func TestProcessBatchWindowAnnotateMode(t *testing.T) {
	tun := DefaultTunables()
	tun.Annotate = AnnotateWindow
	h := newHarness(t, tun)

	_, err := h.monitor.ProcessBatch(context.Background(), wireLines("10.0.0.1", 4, time.Second))
	require.NoError(t, err)

	require.Len(t, h.observer.results, 1)
	assert.Equal(t, int64(4), h.observer.results[0].Annotated)
}

func TestSetTunablesAppliesToNextBatch(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	tun := DefaultTunables()
	tun.Window = 10 * time.Second
	h.monitor.SetTunables(tun)

	_, err := h.monitor.ProcessBatch(context.Background(), wireLines("10.0.0.1", 3, time.Second))
	require.NoError(t, err)
	for _, r := range recent(t, h) {
		assert.InDelta(t, 0.3, r.RequestRate, 1e-9)
	}
}

func TestNewMonitorRejectsInvalidTunables(t *testing.T) {
	h := newHarness(t, Tunables{})
	assert.Equal(t, DefaultTunables(), h.monitor.Tunables())
	assert.Equal(t, DefaultMaxPending, h.monitor.maxPending)
}

func TestRunIdlesAndStopsGracefully(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	h.source.push(wireLines("10.0.0.1", 2, time.Second)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.monitor.State() == domain.StateIdleWait
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, recent(t, h), 2)

	// Another idle round once the delay passes.
	polls := h.source.pollCount()
	h.clock.BlockUntil(1)
	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return h.source.pollCount() > polls
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Equal(t, domain.StateStopped, h.monitor.State())

	states := h.observer.stateLog()
	require.GreaterOrEqual(t, len(states), 5)
	assert.Equal(t, []domain.MonitorState{
		domain.StateStartup,
		domain.StatePolling,
		domain.StateProcessingBatch,
		domain.StatePolling,
		domain.StateIdleWait,
	}, states[:5])
	assert.Equal(t, domain.StateStopped, states[len(states)-1])
}

func TestRunBacksOffAfterStoreFailure(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	h.store.fail["bulk_append"] = 1
	h.source.push(wireLines("10.0.0.1", 2, time.Second)...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.monitor.State() == domain.StateErrorBackoff
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, recent(t, h))

	h.clock.BlockUntil(1)
	h.clock.Advance(5 * time.Second)

	// Pending work skips idle wait and lands after the backoff.
	require.Eventually(t, func() bool {
		return len(recent(t, h)) == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.monitor.State() == domain.StateIdleWait
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	snap := h.monitor.Metrics()
	assert.Equal(t, int64(1), snap.FailedCycles)
}

func TestRunBacksOffAfterBatchPanic(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	h.clf.panicNext = 1
	h.source.push(wireLines("10.0.0.1", 2, time.Second)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.monitor.State() == domain.StateErrorBackoff
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), h.monitor.Metrics().FailedCycles)

	h.clock.BlockUntil(1)
	h.clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool {
		return h.monitor.State() == domain.StateIdleWait
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, domain.StateStopped, h.monitor.State())
}

func TestRunBacksOffAfterPollError(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	h.source.pollErr = fmt.Errorf("permission denied")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.monitor.State() == domain.StateErrorBackoff
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, domain.StateStopped, h.monitor.State())
}

type chanNotifier struct{ ch chan struct{} }

func (n *chanNotifier) Changes() <-chan struct{} { return n.ch }
func (n *chanNotifier) Close() error             { return nil }

func TestRunWakesOnChangeNotification(t *testing.T) {
	h := newHarness(t, DefaultTunables())
	notifier := &chanNotifier{ch: make(chan struct{}, 1)}
	h.monitor.notifier = notifier

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.monitor.State() == domain.StateIdleWait
	}, 5*time.Second, 10*time.Millisecond)

	h.source.push(wireLines("10.0.0.1", 1, time.Second)...)
	notifier.ch <- struct{}{}

	// No clock advance: only the notification can end the idle wait.
	require.Eventually(t, func() bool {
		return len(recent(t, h)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
