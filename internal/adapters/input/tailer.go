package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const DefaultMaxBatchLines = 10000

// CursorTailer polls a growing file through a byte cursor. Only complete,
// newline-terminated lines are consumed; a partial trailing line is left for
// a later poll.
type CursorTailer struct {
	path     string
	maxLines int

	mu      sync.Mutex
	cursor  int64
	started bool
}

func NewCursorTailer(path string, maxLines int) *CursorTailer {
	if maxLines <= 0 {
		maxLines = DefaultMaxBatchLines
	}
	return &CursorTailer{
		path:     path,
		maxLines: maxLines,
	}
}

// Start moves the cursor to the current end of file, or to 0 when the file
// does not exist yet.
func (t *CursorTailer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, err := os.Stat(t.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		t.cursor = 0
		log.Warn().Str("file", t.path).Msg("Log file does not exist yet, will read from its beginning once created")
	case err != nil:
		return fmt.Errorf("stat %s: %w", t.path, err)
	default:
		t.cursor = info.Size()
		log.Info().Str("file", t.path).Int64("offset", t.cursor).Msg("Started tailing log file")
	}
	t.started = true
	return nil
}

func (t *CursorTailer) Poll(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return nil, errors.New("tailer not started")
	}

	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", t.path, err)
	}
	size := info.Size()
	if size < t.cursor {
		log.Warn().
			Str("file", t.path).
			Int64("cursor", t.cursor).
			Int64("size", size).
			Msg("Log file shrank, assuming truncation or rotation and reading from the start")
		t.cursor = 0
	}
	if size == t.cursor {
		return nil, nil
	}

	if _, err := f.Seek(t.cursor, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", t.path, err)
	}

	reader := bufio.NewReader(io.LimitReader(f, size-t.cursor))
	lines := make([]string, 0, 64)
	for len(lines) < t.maxLines {
		if err := ctx.Err(); err != nil {
			break
		}
		raw, err := reader.ReadString('\n')
		if err != nil {
			// EOF before a newline: the writer has not finished this line.
			if errors.Is(err, io.EOF) {
				break
			}
			return lines, fmt.Errorf("read %s: %w", t.path, err)
		}
		t.cursor += int64(len(raw))

		line := strings.TrimRight(raw, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (t *CursorTailer) Cursor() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

func (t *CursorTailer) Close() error {
	return nil
}
