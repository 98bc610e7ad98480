// Package watcher monitors a drop directory for new message exports and
// triggers a journal run when one lands.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces the burst of events a single export copy
// produces into one trigger.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches an inbox directory for finished JSON exports. Writers
// that copy in several chunks are handled by debouncing per path: the
// callback fires once the file has been quiet for the debounce window.
type Watcher struct {
	dir      string
	onExport func(path string)
	debounce time.Duration

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mu      sync.Mutex
	running bool
	pending map[string]*time.Timer
}

// New creates a Watcher over dir, creating the directory if needed.
// onExport is called with the path of each settled export file.
func New(dir string, onExport func(path string)) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		onExport: onExport,
		debounce: DefaultDebounce,
		watcher:  fsw,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Exports already sitting in the inbox are picked up
// by an initial scan so a restart never misses files.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	w.scanExisting()
	go w.watchLoop(ctx)

	log.Info().Str("dir", w.dir).Msg("Watching inbox for message exports")
	return nil
}

// Stop stops the watcher and cancels pending triggers.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	return w.watcher.Close()
}

// scanExisting schedules any export already present.
func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", w.dir).Msg("Initial inbox scan failed")
		return
	}
	for _, e := range entries {
		if !e.IsDir() && isExport(e.Name()) {
			w.schedule(filepath.Join(w.dir, e.Name()))
		}
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isExport(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Inbox watcher error")
		}
	}
}

// schedule arms (or re-arms) the debounce timer for one export path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		running := w.running
		w.mu.Unlock()
		if !running {
			return
		}
		log.Info().Str("path", path).Msg("Export settled, triggering run")
		w.onExport(path)
	})
}

func isExport(path string) bool {
	return strings.HasSuffix(strings.ToLower(filepath.Base(path)), ".json")
}
