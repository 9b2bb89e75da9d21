package input

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// FileNotifier watches the log's directory and signals writes to the log.
// Watching the directory keeps working across file creation and rotation.
type FileNotifier struct {
	watcher *fsnotify.Watcher
	target  string
	changes chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewFileNotifier(path string) (*FileNotifier, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	n := &FileNotifier{
		watcher: w,
		target:  abs,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go n.run()
	return n, nil
}

func (n *FileNotifier) run() {
	for {
		select {
		case <-n.done:
			return
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != n.target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			// Coalesce: one pending signal is enough to wake the monitor.
			select {
			case n.changes <- struct{}{}:
			default:
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Log watcher error")
		}
	}
}

func (n *FileNotifier) Changes() <-chan struct{} {
	return n.changes
}

func (n *FileNotifier) Close() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		err = n.watcher.Close()
	})
	return err
}
