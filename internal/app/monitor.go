package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/detection"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/ports"
)

// DefaultMaxPending is the retry buffer size used when MonitorOptions leaves
// MaxPending unset.
const DefaultMaxPending = 100000

// MonitorOptions configures a Monitor. Only Tunables is required.
type MonitorOptions struct {
	Tunables Tunables
	// Clock drives timestamps, windows and sleeps. Nil uses the real clock.
	Clock clockwork.Clock
	// Notifier, when set, wakes the monitor from IDLE_WAIT on log changes.
	Notifier  ports.ChangeNotifier
	Observers []ports.CycleObserver
	// MaxPending caps the parsed records carried over after failed appends.
	// The oldest are dropped first. Zero or less means DefaultMaxPending.
	MaxPending int
}

// Monitor drives the poll, ingest, classify and annotate cycle.
//
// The loop runs on a single goroutine. Records whose append failed and
// sources whose classification failed are carried to the next cycle, so a
// transient store error delays work instead of dropping it. Carried records
// are capped at MaxPending, oldest dropped first.
type Monitor struct {
	source     ports.LineSource
	parser     ports.LineParser
	store      ports.RecordStore
	classifier ports.Classifier
	notifier   ports.ChangeNotifier
	observers  []ports.CycleObserver
	clock      clockwork.Clock
	metrics    *domain.MonitorMetrics
	tunables   atomic.Pointer[Tunables]
	maxPending int

	pendingRecords []*domain.Record
	pendingSources []string
}

// NewMonitor wires a monitor over its ports. Invalid tunables fall back to
// DefaultTunables.
//
// Parameters:
//   - source: log tailer polled once per cycle
//   - parser: turns one line into a record
//   - store: persists records and annotations
//   - classifier: labels a source from its window features
//   - opts: tunables, clock, notifier, observers and retry buffer size
func NewMonitor(
	source ports.LineSource,
	parser ports.LineParser,
	store ports.RecordStore,
	classifier ports.Classifier,
	opts MonitorOptions,
) *Monitor {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Monitor{
		source:     source,
		parser:     parser,
		store:      store,
		classifier: classifier,
		notifier:   opts.Notifier,
		observers:  opts.Observers,
		clock:      clock,
		metrics:    domain.NewMonitorMetrics(clock.Now),
		maxPending: opts.MaxPending,
	}
	if m.maxPending <= 0 {
		m.maxPending = DefaultMaxPending
	}
	t := opts.Tunables
	if t.Validate() != nil {
		t = DefaultTunables()
	}
	m.tunables.Store(&t)
	return m
}

// Tunables returns the values the next cycle will use.
func (m *Monitor) Tunables() Tunables {
	return *m.tunables.Load()
}

// SetTunables replaces the running tunables. They take effect at the next
// cycle; a batch in progress finishes with the values it started with.
func (m *Monitor) SetTunables(t Tunables) {
	m.tunables.Store(&t)
}

// State is the current loop state. Safe to call from any goroutine.
func (m *Monitor) State() domain.MonitorState {
	return m.metrics.State()
}

// Metrics returns a point-in-time copy of the monitor counters.
func (m *Monitor) Metrics() domain.MetricsSnapshot {
	return m.metrics.GetSnapshot()
}

// Run executes the monitor loop until ctx is cancelled. Cancellation is
// observed only between cycles: a batch that has started is always
// completed, and Run returns nil after reaching STOPPED.
func (m *Monitor) Run(ctx context.Context) error {
	m.setState(domain.StateStartup)
	if err := m.source.Start(ctx); err != nil {
		m.setState(domain.StateStopped)
		return fmt.Errorf("start log source: %w", err)
	}

	t := m.Tunables()
	log.Info().
		Str("parser", m.parser.Format()).
		Str("classifier", m.classifier.Name()).
		Int("known_sources", m.classifier.Size()).
		Dur("window", t.Window).
		Str("annotate", string(t.Annotate)).
		Msg("Monitor started")

	defer func() {
		m.setState(domain.StateStopped)
		log.Info().Msg("Monitor stopped")
	}()

	for ctx.Err() == nil {
		m.setState(domain.StatePolling)

		// The poll and the batch run detached from ctx so that lines already
		// consumed from the log are never abandoned half way.
		work := context.WithoutCancel(ctx)
		lines, err := m.source.Poll(work)
		if err != nil {
			m.metrics.IncrementCycles(true)
			log.Error().Err(err).Msg("Failed to poll log")
			if !m.backoff(ctx) {
				return nil
			}
			continue
		}

		if len(lines) == 0 && !m.hasPending() {
			m.setState(domain.StateIdleWait)
			if !m.wait(ctx, m.Tunables().IdleDelay, true) {
				return nil
			}
			continue
		}

		m.setState(domain.StateProcessingBatch)
		if _, err := m.ProcessBatch(work, lines); err != nil {
			if !m.backoff(ctx) {
				return nil
			}
		}
	}
	return nil
}

// ProcessBatch runs one PROCESSING_BATCH cycle over lines plus any work
// carried over from a failed cycle. A panic in a parser, store or classifier
// is recovered and reported as a failed cycle.
func (m *Monitor) ProcessBatch(ctx context.Context, lines []string) (stats ports.BatchStats, err error) {
	start := m.clock.Now()
	t := m.Tunables()
	stats.LinesRead = len(lines)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("batch", stats.BatchID).Msg("Batch panic recovered")
			err = fmt.Errorf("batch panic: %v", r)
		}
		stats.Duration = m.clock.Since(start)
		stats.Err = err
		m.finishBatch(stats)
	}()

	records := m.parse(lines, &stats)
	if len(records) > 0 {
		stats.BatchID = uuid.NewString()
		for _, r := range records {
			r.BatchID = stats.BatchID
		}
		m.pendingRecords = append(m.pendingRecords, records...)
	}
	stats.Dropped = m.trimPending()

	if len(m.pendingRecords) > 0 {
		if err := m.store.BulkAppend(ctx, m.pendingRecords); err != nil {
			m.storeFailure(err, len(m.pendingRecords))
			return stats, err
		}
		stats.Appended = len(m.pendingRecords)
		m.metrics.AddRecordsIngested(stats.Appended)
		m.queueSources(domain.DistinctSources(m.pendingRecords))
		m.pendingRecords = nil
	}

	windowStart := detection.WindowStart(m.clock.Now(), t.Window)
	sources := m.pendingSources
	for i, src := range sources {
		m.pendingSources = sources[i:]
		if err := m.classifySource(ctx, src, windowStart, t, stats.BatchID); err != nil {
			return stats, err
		}
		stats.Sources++
	}
	m.pendingSources = nil

	log.Debug().
		Str("batch", stats.BatchID).
		Int("lines", stats.LinesRead).
		Int("parsed", stats.Parsed).
		Int("appended", stats.Appended).
		Int("sources", stats.Sources).
		Msg("Batch processed")
	return stats, nil
}

func (m *Monitor) parse(lines []string, stats *ports.BatchStats) []*domain.Record {
	records := make([]*domain.Record, 0, len(lines))
	for _, line := range lines {
		r, err := m.parser.Parse(line)
		if err != nil {
			stats.ParseFailures++
			m.metrics.IncrementParseFailures()
			log.Warn().Err(err).Msg("Dropping malformed line")
			continue
		}
		records = append(records, r)
	}
	stats.Parsed = len(records)
	m.metrics.AddLinesRead(len(lines))
	return records
}

func (m *Monitor) classifySource(ctx context.Context, src string, windowStart time.Time, t Tunables, batchID string) error {
	records, err := m.store.QueryWindow(ctx, src, windowStart)
	if err != nil {
		m.storeFailure(err, 0)
		return err
	}
	if len(records) == 0 {
		// Timestamps older than the window, e.g. a replayed log.
		log.Debug().Str("source", src).Time("window_start", windowStart).Msg("No records inside window, skipping")
		return nil
	}

	features := detection.Compute(records, t.Window)
	encoded := m.classifier.Encode(src)
	label, err := m.classifier.Predict(encoded, features)
	if err != nil {
		log.Error().Err(err).Str("source", src).Msg("Classification failed")
		return fmt.Errorf("classify %s: %w", src, err)
	}

	ann := domain.Annotation{Features: features, Prediction: label}
	var annotated int64
	if t.Annotate == AnnotateWindow {
		annotated, err = m.store.UpdateWindow(ctx, src, ann, windowStart)
	} else {
		annotated, err = m.store.UpdateRecords(ctx, domain.RecordIDs(records), ann)
	}
	if err != nil {
		m.storeFailure(err, 0)
		return err
	}

	c := &domain.Classification{
		SourceID:    src,
		BatchID:     batchID,
		EncodedID:   encoded,
		WindowStart: windowStart,
		Records:     len(records),
		Annotated:   annotated,
		Annotation:  ann,
		At:          m.clock.Now(),
	}
	m.metrics.RecordClassification(label)
	for _, o := range m.observers {
		o.OnClassification(c)
	}

	event := log.Info()
	msg := "No burst detected"
	if c.Burst() {
		event = log.Warn()
		msg = "Burst detected"
	}
	event.
		Str("source", src).
		Bool("unseen", c.Unseen()).
		Float64("request_rate", features.RequestRate).
		Float64("unique_urls", features.UniqueURLProxy).
		Int("window_records", len(records)).
		Int64("annotated", annotated).
		Msg(msg)
	return nil
}

// queueSources appends sources not already pending, keeping first-seen order.
func (m *Monitor) queueSources(sources []string) {
	seen := make(map[string]struct{}, len(m.pendingSources))
	for _, s := range m.pendingSources {
		seen[s] = struct{}{}
	}
	for _, s := range sources {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			m.pendingSources = append(m.pendingSources, s)
		}
	}
}

// trimPending drops the oldest pending records beyond maxPending and returns
// how many were dropped.
func (m *Monitor) trimPending() int {
	excess := len(m.pendingRecords) - m.maxPending
	if excess <= 0 {
		return 0
	}
	kept := make([]*domain.Record, m.maxPending)
	copy(kept, m.pendingRecords[excess:])
	m.pendingRecords = kept

	m.metrics.AddDroppedRecords(excess)
	log.Warn().
		Int("dropped", excess).
		Int("max_pending", m.maxPending).
		Msg("Retry buffer full, dropping oldest unstored records")
	return excess
}

func (m *Monitor) hasPending() bool {
	return len(m.pendingRecords) > 0 || len(m.pendingSources) > 0
}

func (m *Monitor) storeFailure(err error, retained int) {
	op := "unknown"
	var se *domain.StoreError
	if errors.As(err, &se) {
		op = se.Op
	}
	for _, o := range m.observers {
		o.OnStoreError(op)
	}
	ev := log.Error().Err(err).Str("op", op)
	if retained > 0 {
		ev = ev.Int("retained_records", retained)
	}
	ev.Msg("Store operation failed")
}

func (m *Monitor) finishBatch(stats ports.BatchStats) {
	m.metrics.IncrementCycles(stats.Err != nil)
	m.metrics.RecordBatch(m.clock.Now(), stats.Duration)
	m.metrics.SetPending(len(m.pendingRecords), len(m.pendingSources))
	for _, o := range m.observers {
		o.OnBatch(stats)
	}
}

func (m *Monitor) backoff(ctx context.Context) bool {
	m.setState(domain.StateErrorBackoff)
	d := m.Tunables().BackoffDelay
	log.Warn().Dur("delay", d).Msg("Backing off before next cycle")
	return m.wait(ctx, d, false)
}

// wait sleeps for d on the monitor clock. It returns false if ctx ended
// first. With wake set, a change notification cuts the sleep short.
func (m *Monitor) wait(ctx context.Context, d time.Duration, wake bool) bool {
	timer := m.clock.NewTimer(d)
	defer timer.Stop()

	var changes <-chan struct{}
	if wake && m.notifier != nil {
		changes = m.notifier.Changes()
	}

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	case <-changes:
		return true
	}
}

func (m *Monitor) setState(s domain.MonitorState) {
	if m.metrics.State() == s && s != domain.StateStartup {
		return
	}
	m.metrics.SetState(s)
	for _, o := range m.observers {
		o.OnStateChange(s)
	}
	log.Debug().Str("state", s.String()).Msg("Monitor state changed")
}

// RunUntilSignal runs the monitor until SIGINT or SIGTERM, then waits for the
// in-flight cycle to finish.
func (m *Monitor) RunUntilSignal(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		log.Info().Msg("Stopping monitor gracefully...")
		return <-done
	}
}
