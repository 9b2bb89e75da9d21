package output

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/app"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

// MonitorStatus is the part of the monitor the health checker reads.
type MonitorStatus interface {
	Metrics() domain.MetricsSnapshot
	Tunables() app.Tunables
}

type HealthStatus struct {
	Healthy             bool    `json:"healthy"`
	Status              string  `json:"status"`
	State               string  `json:"state"`
	PendingRecords      int     `json:"pending_records"`
	PendingSources      int     `json:"pending_sources"`
	ConsecutiveFailures int64   `json:"consecutive_failures"`
	LastBatchAgeSeconds float64 `json:"last_batch_age_seconds,omitempty"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
	Reason              string  `json:"reason,omitempty"`
}

type HealthChecker struct {
	monitor    MonitorStatus
	maxBackoff int
	clock      clockwork.Clock

	lastCheck     HealthStatus
	lastCheckTime time.Time
	lastCheckMu   sync.RWMutex
	checkInterval time.Duration
}

type HealthCheckerConfig struct {
	// MaxBackoff is how many backoff delays of consecutive failures are
	// tolerated before the monitor is reported unhealthy.
	MaxBackoff    int
	CheckInterval time.Duration
	Clock         clockwork.Clock
}

func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		MaxBackoff:    3,
		CheckInterval: time.Second,
	}
}

func NewHealthChecker(monitor MonitorStatus, config HealthCheckerConfig) *HealthChecker {
	if config.MaxBackoff < 1 {
		config.MaxBackoff = 1
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &HealthChecker{
		monitor:       monitor,
		maxBackoff:    config.MaxBackoff,
		clock:         config.Clock,
		checkInterval: config.CheckInterval,
	}
}

func (h *HealthChecker) Check() HealthStatus {
	now := h.clock.Now()

	h.lastCheckMu.RLock()
	if !h.lastCheckTime.IsZero() && now.Sub(h.lastCheckTime) < h.checkInterval {
		cached := h.lastCheck
		h.lastCheckMu.RUnlock()
		return cached
	}
	h.lastCheckMu.RUnlock()

	status := h.performCheck(now)

	h.lastCheckMu.Lock()
	h.lastCheck = status
	h.lastCheckTime = now
	h.lastCheckMu.Unlock()

	return status
}

func (h *HealthChecker) performCheck(now time.Time) HealthStatus {
	snap := h.monitor.Metrics()
	status := HealthStatus{
		State:               snap.State.String(),
		PendingRecords:      snap.PendingRecords,
		PendingSources:      snap.PendingSources,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		UptimeSeconds:       snap.Uptime.Seconds(),
	}
	if !snap.LastBatch.IsZero() {
		status.LastBatchAgeSeconds = now.Sub(snap.LastBatch).Seconds()
	}

	switch snap.State {
	case domain.StateStartup:
		status.Status = "STARTING"
		status.Reason = "monitor has not reached POLLING yet"
		return status
	case domain.StateStopped:
		status.Status = "OFFLINE"
		status.Reason = "monitor stopped"
		return status
	}

	if snap.ConsecutiveFailures > 0 {
		limit := time.Duration(h.maxBackoff) * h.monitor.Tunables().BackoffDelay
		failing := now.Sub(snap.FailingSince)
		if failing > limit {
			status.Status = "FAILING"
			status.Reason = fmt.Sprintf("%d consecutive failed cycles over %v", snap.ConsecutiveFailures, failing.Round(time.Second))
			return status
		}
		status.Healthy = true
		status.Status = "DEGRADED"
		status.Reason = fmt.Sprintf("%d consecutive failed cycles", snap.ConsecutiveFailures)
		return status
	}

	status.Healthy = true
	status.Status = "HEALTHY"
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
