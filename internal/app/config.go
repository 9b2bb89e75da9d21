package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AnnotateMode string

const (
	// AnnotateExact writes annotations to exactly the records the features
	// were computed from.
	AnnotateExact AnnotateMode = "exact"
	// AnnotateWindow writes annotations to every record of the source at or
	// after the window start, including records appended after the query.
	AnnotateWindow AnnotateMode = "window"
)

// Tunables are the monitor parameters that may change while running.
type Tunables struct {
	Window       time.Duration
	IdleDelay    time.Duration
	BackoffDelay time.Duration
	Annotate     AnnotateMode
}

func DefaultTunables() Tunables {
	return Tunables{
		Window:       30 * time.Second,
		IdleDelay:    time.Second,
		BackoffDelay: 5 * time.Second,
		Annotate:     AnnotateExact,
	}
}

func (t Tunables) Validate() error {
	if t.Window <= 0 {
		return &ConfigValidationError{Field: "monitor.window_seconds", Value: t.Window.Seconds(), Reason: "must be positive"}
	}
	if t.IdleDelay <= 0 || t.IdleDelay > time.Minute {
		return &ConfigValidationError{Field: "monitor.idle_delay", Value: t.IdleDelay, Reason: "must be between 0 and 1m"}
	}
	if t.BackoffDelay <= 0 || t.BackoffDelay > 10*time.Minute {
		return &ConfigValidationError{Field: "monitor.backoff_delay", Value: t.BackoffDelay, Reason: "must be between 0 and 10m"}
	}
	switch t.Annotate {
	case AnnotateExact, AnnotateWindow:
	default:
		return &ConfigValidationError{Field: "monitor.annotate", Value: t.Annotate, Reason: "must be exact or window"}
	}
	return nil
}

type LogSettings struct {
	Path          string
	Mode          string
	Watch         bool
	Timezone      string
	MaxBatchLines int
}

type StoreSettings struct {
	Driver  string
	Path    string
	DSN     string
	Timeout time.Duration
	// MaxPending caps the records held for retry while the store is failing.
	MaxPending int
}

type DashboardSettings struct {
	Limit      int
	TableLimit int
	Refresh    time.Duration
}

type MetricsSettings struct {
	Enabled bool
	Port    string
	// MaxBackoff is how many backoff delays the monitor may spend in
	// ERROR_BACKOFF before /ready reports it unhealthy.
	MaxBackoff int
}

type EventSettings struct {
	Path       string
	BurstsOnly bool
}

type LoggingSettings struct {
	Level  string
	Format string
}

type Settings struct {
	Log       LogSettings
	Store     StoreSettings
	Artifact  string
	Monitor   Tunables
	Dashboard DashboardSettings
	Metrics   MetricsSettings
	Events    EventSettings
	Logging   LoggingSettings
}

func SetDefaults(v *viper.Viper) {
	d := DefaultTunables()
	v.SetDefault("log.path", "./logs/access.log")
	v.SetDefault("log.mode", "cursor")
	v.SetDefault("log.watch", false)
	v.SetDefault("log.timezone", "Local")
	v.SetDefault("log.max_batch_lines", 10000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./logs/requests.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.timeout", "10s")
	v.SetDefault("store.max_pending", DefaultMaxPending)
	v.SetDefault("classifier.artifact", "./models")
	v.SetDefault("monitor.window_seconds", int(d.Window.Seconds()))
	v.SetDefault("monitor.idle_delay", d.IdleDelay.String())
	v.SetDefault("monitor.backoff_delay", d.BackoffDelay.String())
	v.SetDefault("monitor.annotate", string(d.Annotate))
	v.SetDefault("dashboard.limit", 1000)
	v.SetDefault("dashboard.table_limit", 50)
	v.SetDefault("dashboard.refresh", "5s")
	v.SetDefault("output.metrics.enabled", true)
	v.SetDefault("output.metrics.port", ":9090")
	v.SetDefault("output.health.max_backoff", 3)
	v.SetDefault("output.events.path", "")
	v.SetDefault("output.events.bursts_only", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

func LoadTunables(v *viper.Viper) (Tunables, error) {
	t := Tunables{
		Window:       time.Duration(v.GetFloat64("monitor.window_seconds") * float64(time.Second)),
		IdleDelay:    v.GetDuration("monitor.idle_delay"),
		BackoffDelay: v.GetDuration("monitor.backoff_delay"),
		Annotate:     AnnotateMode(v.GetString("monitor.annotate")),
	}
	return t, t.Validate()
}

func LoadSettings(v *viper.Viper) (Settings, error) {
	tunables, err := LoadTunables(v)
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Log: LogSettings{
			Path:          v.GetString("log.path"),
			Mode:          v.GetString("log.mode"),
			Watch:         v.GetBool("log.watch"),
			Timezone:      v.GetString("log.timezone"),
			MaxBatchLines: v.GetInt("log.max_batch_lines"),
		},
		Store: StoreSettings{
			Driver:     v.GetString("store.driver"),
			Path:       v.GetString("store.path"),
			DSN:        v.GetString("store.dsn"),
			Timeout:    v.GetDuration("store.timeout"),
			MaxPending: v.GetInt("store.max_pending"),
		},
		Artifact: v.GetString("classifier.artifact"),
		Monitor:  tunables,
		Dashboard: DashboardSettings{
			Limit:      v.GetInt("dashboard.limit"),
			TableLimit: v.GetInt("dashboard.table_limit"),
			Refresh:    v.GetDuration("dashboard.refresh"),
		},
		Metrics: MetricsSettings{
			Enabled:    v.GetBool("output.metrics.enabled"),
			Port:       v.GetString("output.metrics.port"),
			MaxBackoff: v.GetInt("output.health.max_backoff"),
		},
		Events: EventSettings{
			Path:       v.GetString("output.events.path"),
			BurstsOnly: v.GetBool("output.events.bursts_only"),
		},
		Logging: LoggingSettings{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}
	return s, s.validate()
}

func (s Settings) validate() error {
	if s.Log.Path == "" {
		return &ConfigValidationError{Field: "log.path", Value: s.Log.Path, Reason: "must not be empty"}
	}
	if s.Log.Mode != "cursor" && s.Log.Mode != "follow" {
		return &ConfigValidationError{Field: "log.mode", Value: s.Log.Mode, Reason: "must be cursor or follow"}
	}
	if _, err := s.Log.Location(); err != nil {
		return &ConfigValidationError{Field: "log.timezone", Value: s.Log.Timezone, Reason: err.Error()}
	}
	if s.Log.MaxBatchLines < 1 || s.Log.MaxBatchLines > 10000000 {
		return &ConfigValidationError{Field: "log.max_batch_lines", Value: s.Log.MaxBatchLines, Reason: "must be between 1 and 10M"}
	}
	switch s.Store.Driver {
	case "sqlite":
		if s.Store.Path == "" {
			return &ConfigValidationError{Field: "store.path", Value: s.Store.Path, Reason: "required for sqlite"}
		}
	case "postgres":
		if s.Store.DSN == "" {
			return &ConfigValidationError{Field: "store.dsn", Value: "", Reason: "required for postgres"}
		}
	default:
		return &ConfigValidationError{Field: "store.driver", Value: s.Store.Driver, Reason: "must be sqlite or postgres"}
	}
	if s.Store.Timeout <= 0 {
		return &ConfigValidationError{Field: "store.timeout", Value: s.Store.Timeout, Reason: "must be positive"}
	}
	if s.Store.MaxPending < 1 || s.Store.MaxPending > 10000000 {
		return &ConfigValidationError{Field: "store.max_pending", Value: s.Store.MaxPending, Reason: "must be between 1 and 10M"}
	}
	if s.Dashboard.Limit < 1 || s.Dashboard.TableLimit < 1 {
		return &ConfigValidationError{Field: "dashboard.limit", Value: s.Dashboard.Limit, Reason: "limits must be positive"}
	}
	if s.Metrics.MaxBackoff < 1 {
		return &ConfigValidationError{Field: "output.health.max_backoff", Value: s.Metrics.MaxBackoff, Reason: "must be at least 1"}
	}
	return nil
}

func (l LogSettings) Location() (*time.Location, error) {
	if l.Timezone == "" || l.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(l.Timezone)
}

// TunableSink receives reloaded tunables.
type TunableSink interface {
	SetTunables(t Tunables)
}

// ConfigWatcher re-applies monitor tunables when the config file changes.
// Invalid files are rejected and the running values stay in place.
type ConfigWatcher struct {
	v        *viper.Viper
	sink     TunableSink
	mu       sync.Mutex
	stopped  bool
	reloaded int
}

func NewConfigWatcher(v *viper.Viper, sink TunableSink) *ConfigWatcher {
	return &ConfigWatcher{v: v, sink: sink}
}

func (w *ConfigWatcher) StartWatching() {
	w.v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().
			Str("file", e.Name).
			Str("op", e.Op.String()).
			Msg("Config file changed, reloading...")

		w.reload()
	})

	w.v.WatchConfig()
	log.Info().Str("config", w.v.ConfigFileUsed()).Msg("Hot-reload config watching started")
}

func (w *ConfigWatcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if err := w.v.ReadInConfig(); err != nil {
		log.Error().Err(err).Msg("Failed to re-read config, keeping current configuration")
		return
	}
	t, err := LoadTunables(w.v)
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration, rejecting reload")
		return
	}

	w.sink.SetTunables(t)
	w.reloaded++
	log.Info().
		Dur("window", t.Window).
		Dur("idle_delay", t.IdleDelay).
		Dur("backoff_delay", t.BackoffDelay).
		Str("annotate", string(t.Annotate)).
		Msg("Configuration hot-reloaded successfully")
}

// Stop makes later change events no-ops. viper offers no way to remove the
// underlying watch.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		log.Info().Msg("Hot-reload config watcher stopped")
	}
}

func (w *ConfigWatcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloaded
}

type ConfigValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s = %v - %s", e.Field, e.Value, e.Reason)
}
