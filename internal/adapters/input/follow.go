package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/nxadm/tail"
	"github.com/rs/zerolog/log"
)

// FollowTailer follows the log with nxadm/tail, reopening it after rename
// rotation. The follower goroutine blocks until Poll drains it, so no line is
// dropped between polls.
type FollowTailer struct {
	path     string
	maxLines int

	mu   sync.Mutex
	tail *tail.Tail
}

func NewFollowTailer(path string, maxLines int) *FollowTailer {
	if maxLines <= 0 {
		maxLines = DefaultMaxBatchLines
	}
	return &FollowTailer{path: path, maxLines: maxLines}
}

func (t *FollowTailer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tail != nil {
		return nil
	}

	// A file that does not exist yet is read from its first byte once created.
	var location *tail.SeekInfo
	if _, err := os.Stat(t.path); err == nil {
		location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", t.path, err)
	}

	tl, err := tail.TailFile(t.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      false,
		Location:  location,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		log.Error().Err(err).Str("file", t.path).Msg("Failed to tail file")
		return fmt.Errorf("tail %s: %w", t.path, err)
	}
	t.tail = tl

	log.Info().Str("file", t.path).Bool("at_end", location != nil).Msg("Started following log file")
	return nil
}

func (t *FollowTailer) Poll(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tail == nil {
		return nil, errors.New("tailer not started")
	}

	var lines []string
	for len(lines) < t.maxLines {
		select {
		case <-ctx.Done():
			return lines, nil
		case line, ok := <-t.tail.Lines:
			if !ok {
				if err := t.tail.Err(); err != nil {
					return lines, fmt.Errorf("tail %s: %w", t.path, err)
				}
				return lines, nil
			}
			if line.Err != nil {
				log.Warn().Err(line.Err).Msg("Error reading line")
				continue
			}
			text := strings.TrimRight(line.Text, "\r")
			if strings.TrimSpace(text) == "" {
				continue
			}
			lines = append(lines, text)
		default:
			return lines, nil
		}
	}
	return lines, nil
}

func (t *FollowTailer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tail == nil {
		return nil
	}
	err := t.tail.Stop()
	t.tail.Cleanup()
	t.tail = nil
	return err
}
