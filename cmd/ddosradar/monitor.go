package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/classifier"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/input"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/output"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/storage"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/app"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/ports"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run burst detection on the request log",
	Long: `Tail the request log, append every parsed request to the record store
and classify each source seen in a batch over the trailing window.

Only lines appended after startup are processed. Stop with Ctrl+C or
SIGTERM; the batch in flight is finished first.

Examples:
  ddosradar monitor --log ./logs/access.log --artifact ./models
  ddosradar monitor --config /etc/ddosradar/config.yaml
  ddosradar monitor --follow --watch`,
	RunE: runMonitor,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Read-only terminal view over the record store",
	RunE:  runDashboard,
}

func init() {
	monitorCmd.Flags().Bool("follow", false, "follow the log across rename rotation")
	monitorCmd.Flags().Bool("watch", false, "wake on file change events instead of waiting out the idle delay")
	monitorCmd.Flags().Bool("no-metrics", false, "disable the metrics server")
	monitorCmd.Flags().String("events", "", "write classification events as JSON lines (- for stdout)")

	viper.BindPFlag("log.watch", monitorCmd.Flags().Lookup("watch"))
	viper.BindPFlag("output.events.path", monitorCmd.Flags().Lookup("events"))

	dashboardCmd.Flags().Duration("refresh", 0, "refresh interval")
	dashboardCmd.Flags().Int("limit", 0, "records read per refresh")
	viper.BindPFlag("dashboard.refresh", dashboardCmd.Flags().Lookup("refresh"))
	viper.BindPFlag("dashboard.limit", dashboardCmd.Flags().Lookup("limit"))
}

func runMonitor(cmd *cobra.Command, args []string) error {
	setupLogging()

	if follow, _ := cmd.Flags().GetBool("follow"); follow {
		viper.Set("log.mode", "follow")
	}
	if off, _ := cmd.Flags().GetBool("no-metrics"); off {
		viper.Set("output.metrics.enabled", false)
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	loc, err := settings.Log.Location()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	clf, err := classifier.Load(settings.Artifact)
	if err != nil {
		var missing *domain.MissingArtifactError
		if errors.As(err, &missing) {
			log.Error().
				Str("component", missing.Component).
				Str("path", missing.Path).
				Msg("Classifier artifact missing, train and export a model first")
		}
		return fmt.Errorf("failed to load classifier: %w", err)
	}
	defer clf.Close()

	store, err := openStore(ctx, settings.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	source := newLineSource(settings.Log)
	defer source.Close()

	opts := app.MonitorOptions{
		Tunables:   settings.Monitor,
		MaxPending: settings.Store.MaxPending,
	}

	if settings.Log.Watch {
		notifier, err := input.NewFileNotifier(settings.Log.Path)
		if err != nil {
			log.Warn().Err(err).Msg("File watch unavailable, polling only")
		} else {
			defer notifier.Close()
			opts.Notifier = notifier
		}
	}

	var promMetrics *output.PrometheusMetrics
	if settings.Metrics.Enabled {
		promMetrics = output.NewPrometheusMetrics("ddosradar")
		opts.Observers = append(opts.Observers, promMetrics)
	}

	if settings.Events.Path != "" {
		events, err := output.NewEventWriter(output.EventWriterConfig{
			Path:       settings.Events.Path,
			BurstsOnly: settings.Events.BurstsOnly,
		})
		if err != nil {
			return fmt.Errorf("failed to create event writer: %w", err)
		}
		defer events.Close()
		opts.Observers = append(opts.Observers, events)
	}

	monitor := app.NewMonitor(source, input.NewWireParser(loc), store, clf, opts)

	if promMetrics != nil {
		health := output.NewHealthChecker(monitor, output.HealthCheckerConfig{
			MaxBackoff:    settings.Metrics.MaxBackoff,
			CheckInterval: time.Second,
		})
		metricsConfig := output.MetricsConfig{
			Port: settings.Metrics.Port,
			Path: "/metrics",
		}
		if err := promMetrics.StartServer(metricsConfig, health); err != nil {
			log.Warn().Err(err).Msg("Failed to start metrics server")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := promMetrics.StopServer(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Metrics server shutdown timeout")
				}
			}()
		}
	}

	if viper.ConfigFileUsed() != "" {
		watcher := app.NewConfigWatcher(viper.GetViper(), monitor)
		watcher.StartWatching()
		defer watcher.Stop()
	}

	log.Info().
		Str("source", settings.Log.Path).
		Str("mode", settings.Log.Mode).
		Str("store", storeName(settings.Store)).
		Str("classifier", clf.Name()).
		Int("known_sources", clf.Size()).
		Dur("window", settings.Monitor.Window).
		Msg("ddosradar monitor started")

	return monitor.RunUntilSignal(ctx)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	setupLogging()
	// Anything below error level would draw over the alternate screen.
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := openStore(ctx, settings.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	tuiApp := tui.NewApp(tui.Config{
		Reader:     store,
		Limit:      settings.Dashboard.Limit,
		TableLimit: settings.Dashboard.TableLimit,
		Refresh:    settings.Dashboard.Refresh,
		StoreName:  storeName(settings.Store),
		Timeout:    settings.Store.Timeout,
	})

	var tuiErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("TUI panic recovered")
				tuiErr = fmt.Errorf("TUI panic: %v", r)
			}
		}()
		tuiErr = tuiApp.Run()
	}()
	return tuiErr
}

func openStore(ctx context.Context, s app.StoreSettings) (ports.RecordStore, error) {
	store, err := storage.Open(ctx, storage.Config{
		Driver:  s.Driver,
		Path:    s.Path,
		DSN:     s.DSN,
		Timeout: s.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return store, nil
}

func newLineSource(s app.LogSettings) ports.LineSource {
	if s.Mode == "follow" {
		return input.NewFollowTailer(s.Path, s.MaxBatchLines)
	}
	return input.NewCursorTailer(s.Path, s.MaxBatchLines)
}

// storeName is a display name that never includes DSN credentials.
func storeName(s app.StoreSettings) string {
	if s.Driver == storage.DriverPostgres {
		return "postgres"
	}
	return filepath.Base(s.Path)
}
