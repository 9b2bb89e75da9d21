package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/classifier"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/detection"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/adapters/input"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/pkg/sanitize"
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Print the most recent records, newest first",
	RunE:  runRecent,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Append synthetic benign and flood traffic to the request log",
	Long: `Append wire-format request lines to the log: steady background traffic
from a pool of benign sources plus floods of random query URLs.

Examples:
  ddosradar simulate --log ./logs/access.log --duration 2m
  ddosradar simulate --rate 50 --flood-rate 200 --flood-sources 3`,
	RunE: runSimulate,
}

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Build a labelled training CSV from a request log",
	Long: `Read every line of the log and emit one CSV row per request with the
features of its source over the trailing window and a burst label derived
from the request-rate threshold.

Example:
  ddosradar dataset --log ./logs/access.log --out training_data.csv`,
	RunE: runDataset,
}

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Inspect or convert a classifier artifact",
}

var artifactInspectCmd = &cobra.Command{
	Use:   "inspect [path]",
	Short: "Load an artifact and print its manifest",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArtifactInspect,
}

var artifactBoltCmd = &cobra.Command{
	Use:   "bolt-encoding <encoder.json> <encoder.bolt>",
	Short: "Convert a JSON source vocabulary into a bolt database",
	Args:  cobra.ExactArgs(2),
	RunE:  runArtifactBolt,
}

func init() {
	recentCmd.Flags().Int("limit", 20, "number of records")
	recentCmd.Flags().Bool("json", false, "print records as JSON lines")

	simulateCmd.Flags().Int("rate", 20, "benign lines per second")
	simulateCmd.Flags().Int("flood-rate", 50, "lines per second from each flood source")
	simulateCmd.Flags().Int("flood-sources", 1, "number of flooding sources")
	simulateCmd.Flags().Duration("duration", time.Minute, "run time, 0 runs until interrupted")
	simulateCmd.Flags().Int64("seed", 0, "random seed, 0 picks one")

	datasetCmd.Flags().Duration("window", detection.DefaultWindow, "feature window")
	datasetCmd.Flags().Float64("threshold", detection.DefaultBurstThreshold, "request rate above which a sample is a burst")
	datasetCmd.Flags().StringP("out", "o", "-", "output CSV, - for stdout")

	artifactCmd.AddCommand(artifactInspectCmd)
	artifactCmd.AddCommand(artifactBoltCmd)
}

func runRecent(cmd *cobra.Command, args []string) error {
	setupLogging()
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, cancel := context.WithTimeout(context.Background(), settings.Store.Timeout+5*time.Second)
	defer cancel()

	store, err := openStore(ctx, settings.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.RecentRecords(ctx, limit)
	if err != nil {
		return err
	}
	return printRecords(os.Stdout, records, asJSON)
}

func printRecords(w io.Writer, records []*domain.Record, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No records.")
		return nil
	}

	fmt.Fprintf(w, "%-8s %-26s %-18s %-9s %-7s %-10s %s\n",
		"ID", "TIMESTAMP", "SOURCE", "RATE", "URLS", "PREDICTION", "URL")
	for _, r := range records {
		fmt.Fprintf(w, "%-8d %-26s %s %-9.3f %-7.0f %-10s %s\n",
			r.ID,
			r.Timestamp.Local().Format("2006-01-02 15:04:05.000"),
			sanitize.Field(sanitize.Terminal(r.SourceID), 18),
			r.RequestRate,
			r.UniqueURLProxy,
			r.Prediction,
			sanitize.String(sanitize.Terminal(r.URL), 80),
		)
	}
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	setupLogging()
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	config := input.DefaultSimulatorConfig()
	config.Rate, _ = cmd.Flags().GetInt("rate")
	config.FloodRate, _ = cmd.Flags().GetInt("flood-rate")
	config.FloodSources, _ = cmd.Flags().GetInt("flood-sources")
	config.Duration, _ = cmd.Flags().GetDuration("duration")
	config.Seed, _ = cmd.Flags().GetInt64("seed")

	path := settings.Log.Path
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := input.NewTrafficSimulator(config)
	log.Info().
		Str("log", path).
		Strs("flood_sources", sim.FloodSources()).
		Dur("duration", config.Duration).
		Msg("Simulating traffic")
	return sim.Run(ctx, f)
}

func runDataset(cmd *cobra.Command, args []string) error {
	setupLogging()
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	loc, err := settings.Log.Location()
	if err != nil {
		return err
	}

	window, _ := cmd.Flags().GetDuration("window")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	out, _ := cmd.Flags().GetString("out")

	lines, err := readLines(settings.Log.Path)
	if err != nil {
		return err
	}
	records, failed := input.ParseBatch(input.NewWireParser(loc), lines)
	samples := detection.BuildDataset(records, detection.DatasetConfig{Window: window, Threshold: threshold})

	var w io.Writer = os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}
	if err := detection.WriteDatasetCSV(w, samples); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}

	bursts := 0
	for _, s := range samples {
		if s.Label == domain.LabelBurst {
			bursts++
		}
	}
	log.Info().
		Int("lines", len(lines)).
		Int("malformed", failed).
		Int("samples", len(samples)).
		Int("bursts", bursts).
		Str("out", out).
		Msg("Dataset written")
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), domain.MaxLineLength+1)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return lines, nil
}

func runArtifactInspect(cmd *cobra.Command, args []string) error {
	setupLogging()
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	path := settings.Artifact
	if len(args) == 1 {
		path = args[0]
	}

	a, err := classifier.Load(path)
	if err != nil {
		return err
	}
	defer a.Close()

	m := a.Manifest()
	fmt.Printf("Kind:          %s\n", m.Kind)
	fmt.Printf("Model:         %s\n", m.ModelPath())
	fmt.Printf("Encoding:      %s\n", m.EncodingPath())
	fmt.Printf("Known sources: %d\n", a.Size())
	fmt.Printf("Features:      %s\n", strings.Join(classifier.FeatureOrder, ", "))
	if m.TrainedAt != "" {
		fmt.Printf("Trained at:    %s\n", m.TrainedAt)
	}
	if m.Kind == classifier.KindONNX {
		fmt.Printf("Runtime:       %s\n", m.RuntimePath())
	}
	return nil
}

func runArtifactBolt(cmd *cobra.Command, args []string) error {
	setupLogging()
	n, err := classifier.ConvertEncoding(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d sources to %s\n", n, args[1])
	return nil
}
