// Package output provides the monitor's outbound adapters.
//
// This package implements CycleObserver destinations:
//   - PrometheusMetrics: counters, histogram and state gauge on /metrics
//   - HealthChecker: readiness probe on /ready
//   - EventWriter: classification events as JSON lines to a file or stdout
//
// Thread Safety: all observers are safe for concurrent use, although the
// monitor calls them from a single goroutine.
package output

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/ports"
)

// EventWriter writes one JSON object per classification.
//
// Writes are buffered (64KB) and flushed every second, on Flush, and on
// Close. File output is synced on flush.
type EventWriter struct {
	bufWriter  *bufio.Writer
	file       *os.File
	encoder    *json.Encoder
	burstsOnly bool
	written    int64
	mu         sync.Mutex
	stopFlush  chan struct{}
	closeOnce  sync.Once
}

var _ ports.CycleObserver = (*EventWriter)(nil)

type EventWriterConfig struct {
	// Path is the output file; "-" writes to stdout.
	Path       string
	BurstsOnly bool
	// FlushInterval defaults to one second.
	FlushInterval time.Duration
}

// NewEventWriter opens the destination in append mode with 0600 permissions.
func NewEventWriter(config EventWriterConfig) (*EventWriter, error) {
	var writer io.Writer
	var file *os.File

	switch config.Path {
	case "-":
		writer = os.Stdout
	case "":
		writer = io.Discard
	default:
		if err := os.MkdirAll(filepath.Dir(config.Path), 0750); err != nil {
			return nil, err
		}
		var err error
		file, err = os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}

	bufWriter := bufio.NewWriterSize(writer, 64*1024)
	w := &EventWriter{
		bufWriter:  bufWriter,
		file:       file,
		encoder:    json.NewEncoder(bufWriter),
		burstsOnly: config.BurstsOnly,
		stopFlush:  make(chan struct{}),
	}

	go w.periodicFlush(config.FlushInterval)
	return w, nil
}

func (w *EventWriter) periodicFlush(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				log.Warn().Err(err).Msg("Failed to flush classification events")
			}
		case <-w.stopFlush:
			return
		}
	}
}

func (w *EventWriter) OnClassification(c *domain.Classification) {
	if w.burstsOnly && !c.Burst() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.encoder.Encode(c); err != nil {
		log.Warn().Err(err).Str("source", c.SourceID).Msg("Failed to write classification event")
		return
	}
	w.written++
}

func (w *EventWriter) OnStateChange(domain.MonitorState) {}
func (w *EventWriter) OnBatch(ports.BatchStats)          {}
func (w *EventWriter) OnStoreError(string)               {}

func (w *EventWriter) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *EventWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.bufWriter.Flush(); err != nil {
		return err
	}
	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

func (w *EventWriter) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopFlush)

		w.mu.Lock()
		defer w.mu.Unlock()

		if err = w.bufWriter.Flush(); err != nil {
			return
		}
		if w.file != nil {
			if err = w.file.Sync(); err != nil {
				return
			}
			err = w.file.Close()
		}
	})
	return err
}
