package output

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/ports"
)

// PrometheusMetrics exports monitor events. It owns its registry so several
// instances (tests, multiple monitors) never collide.
type PrometheusMetrics struct {
	registry        *prometheus.Registry
	cycles          *prometheus.CounterVec
	linesRead       prometheus.Counter
	recordsIngested prometheus.Counter
	parseFailures   prometheus.Counter
	droppedRecords  prometheus.Counter
	storeErrors     *prometheus.CounterVec
	classifications *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	monitorState    *prometheus.GaugeVec

	server *http.Server
	mu     sync.Mutex
}

var _ ports.CycleObserver = (*PrometheusMetrics)(nil)

type MetricsConfig struct {
	Port string
	Path string
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Port: ":9090",
		Path: "/metrics",
	}
}

func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "ddosradar"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &PrometheusMetrics{registry: reg}

	m.cycles = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Processing cycles by result",
	}, []string{"result"})

	m.linesRead = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lines_read_total",
		Help:      "Log lines read by the tailer",
	})

	m.recordsIngested = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_ingested_total",
		Help:      "Records committed to the store",
	})

	m.parseFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parse_failures_total",
		Help:      "Malformed log lines dropped",
	})

	m.droppedRecords = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_records_total",
		Help:      "Parsed records discarded unstored when the retry buffer overflowed",
	})

	m.storeErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Failed store operations by operation",
	}, []string{"op"})

	m.classifications = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classifications_total",
		Help:      "Per-source classifications by predicted label",
	}, []string{"prediction"})

	m.batchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Time spent in PROCESSING_BATCH",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	m.monitorState = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "monitor_state",
		Help:      "1 for the current monitor state, 0 otherwise",
	}, []string{"state"})
	for _, s := range domain.AllStates {
		m.monitorState.WithLabelValues(s.String()).Set(0)
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_bytes",
		Help:      "Current heap allocation in bytes",
	}, func() float64 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.Alloc)
	})

	return m
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) OnStateChange(state domain.MonitorState) {
	for _, s := range domain.AllStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.monitorState.WithLabelValues(s.String()).Set(v)
	}
}

func (m *PrometheusMetrics) OnBatch(stats ports.BatchStats) {
	result := "ok"
	if stats.Err != nil {
		result = "error"
	}
	m.cycles.WithLabelValues(result).Inc()
	m.linesRead.Add(float64(stats.LinesRead))
	m.parseFailures.Add(float64(stats.ParseFailures))
	m.recordsIngested.Add(float64(stats.Appended))
	m.droppedRecords.Add(float64(stats.Dropped))
	m.batchDuration.Observe(stats.Duration.Seconds())
}

func (m *PrometheusMetrics) OnClassification(c *domain.Classification) {
	m.classifications.WithLabelValues(c.Annotation.Prediction.String()).Inc()
}

func (m *PrometheusMetrics) OnStoreError(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

// StartServer serves the registry on config.Path and, when ready is
// non-nil, the readiness probe on /ready.
func (m *PrometheusMetrics) StartServer(config MetricsConfig, ready http.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if config.Path == "" {
		config.Path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(config.Path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	if ready != nil {
		mux.Handle("/ready", ready)
	}

	m.server = &http.Server{
		Addr:              config.Port,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := m.server
	go func() {
		log.Info().Str("addr", config.Port).Str("path", config.Path).Msg("Starting Prometheus metrics server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

func (m *PrometheusMetrics) StopServer(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server == nil {
		return nil
	}
	err := m.server.Shutdown(ctx)
	m.server = nil
	return err
}
