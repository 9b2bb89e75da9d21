package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ProducerTimeLayout matches the zone-less ISO-8601 timestamps written by the
// HTTP front end that feeds the access log.
const ProducerTimeLayout = "2006-01-02T15:04:05.000000"

const (
	simTick      = 100 * time.Millisecond
	queryCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type SimulatorConfig struct {
	// Rate is benign lines per second spread across the background pool.
	Rate int
	// FloodRate is lines per second from each flooding source.
	FloodRate    int
	FloodSources int
	Duration     time.Duration
	Seed         int64
	Clock        clockwork.Clock
}

func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Rate:         20,
		FloodRate:    50,
		FloodSources: 1,
		Duration:     time.Minute,
	}
}

// TrafficSimulator appends wire-format request lines to a log: steady
// background traffic from a pool of benign sources, plus floods of random
// query URLs from a few sources.
type TrafficSimulator struct {
	config    SimulatorConfig
	rng       *rand.Rand
	clock     clockwork.Clock
	generated atomic.Uint64

	benignSources []string
	floodSources  []string
	benignPaths   []string
}

func NewTrafficSimulator(config SimulatorConfig) *TrafficSimulator {
	if config.Rate < 0 {
		config.Rate = 0
	}
	if config.FloodRate < 0 {
		config.FloodRate = 0
	}
	if config.FloodSources < 0 {
		config.FloodSources = 0
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &TrafficSimulator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
		clock:  config.Clock,
		benignSources: generateSourcePool(200, []string{
			"192.168.", "10.0.", "172.16.", "203.0.113.", "198.51.100.",
		}),
		floodSources: generateSourcePool(max(config.FloodSources, 1), []string{
			"45.33.", "185.220.", "91.121.",
		})[:config.FloodSources],
		benignPaths: []string{
			"/?", "/index.html?", "/about?", "/contact?", "/products?",
			"/api/users?", "/api/orders?", "/login?", "/search?q=shoes",
			"/cart?", "/checkout?", "/blog?",
		},
	}
}

// FloodSources returns the sources the simulator floods from.
func (s *TrafficSimulator) FloodSources() []string {
	return append([]string(nil), s.floodSources...)
}

func (s *TrafficSimulator) Generated() uint64 {
	return s.generated.Load()
}

// Run writes traffic to w until ctx is done or the configured duration
// elapses. w is flushed after every tick so the monitor sees whole lines.
func (s *TrafficSimulator) Run(ctx context.Context, w io.Writer) error {
	bw := bufio.NewWriter(w)
	ticker := s.clock.NewTicker(simTick)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if s.config.Duration > 0 {
		deadline = s.clock.After(s.config.Duration)
	}

	ticksPerSecond := int(time.Second / simTick)
	var tick int

	log.Info().
		Int("rate", s.config.Rate).
		Int("flood_rate", s.config.FloodRate).
		Strs("flood_sources", s.floodSources).
		Msg("Traffic simulator started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("total_generated", s.generated.Load()).Msg("Traffic simulator stopped (context cancelled)")
			return bw.Flush()
		case <-deadline:
			log.Info().Uint64("total_generated", s.generated.Load()).Msg("Traffic simulator finished")
			return bw.Flush()
		case now := <-ticker.Chan():
			benign := spread(s.config.Rate, ticksPerSecond, tick)
			flood := spread(s.config.FloodRate, ticksPerSecond, tick)
			tick++
			if err := s.WriteTick(bw, now, benign, flood); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("flush: %w", err)
			}
		}
	}
}

// WriteTick writes benign lines and flood lines per flood source, all
// stamped with now.
func (s *TrafficSimulator) WriteTick(w io.Writer, now time.Time, benign, floodPerSource int) error {
	ts := now.Format(ProducerTimeLayout)
	for i := 0; i < benign; i++ {
		source := s.benignSources[s.rng.Intn(len(s.benignSources))]
		path := s.benignPaths[s.rng.Intn(len(s.benignPaths))]
		if err := s.writeLine(w, source, path, ts); err != nil {
			return err
		}
	}
	for _, source := range s.floodSources {
		for i := 0; i < floodPerSource; i++ {
			if err := s.writeLine(w, source, "/?"+s.randomString(10), ts); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *TrafficSimulator) writeLine(w io.Writer, source, url, ts string) error {
	if _, err := io.WriteString(w, FormatWireLine(source, url, ts)+"\n"); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	s.generated.Add(1)
	return nil
}

func (s *TrafficSimulator) randomString(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(queryCharset[s.rng.Intn(len(queryCharset))])
	}
	return b.String()
}

func FormatWireLine(source, url, ts string) string {
	var b strings.Builder
	b.Grow(len(source) + len(url) + len(ts) + 20)
	b.WriteString(sourceMarker)
	b.WriteString(source)
	b.WriteString(", ")
	b.WriteString(urlMarker)
	b.WriteString(url)
	b.WriteString(", ")
	b.WriteString(timeMarker)
	b.WriteString(ts)
	return b.String()
}

// spread distributes perSecond events over ticks so that every full second
// carries exactly perSecond events.
func spread(perSecond, ticks, tick int) int {
	i := tick % ticks
	return perSecond*(i+1)/ticks - perSecond*i/ticks
}

func generateSourcePool(count int, prefixes []string) []string {
	sources := make([]string, 0, count)
	perPrefix := count / len(prefixes)
	remainder := count % len(prefixes)

	for i, prefix := range prefixes {
		n := perPrefix
		if i < remainder {
			n++
		}
		for j := 0; j < n; j++ {
			third := (j / 254) % 256
			fourth := j%254 + 1
			sources = append(sources, fmt.Sprintf("%s%d.%d", prefix, third, fourth))
		}
	}
	return sources
}
