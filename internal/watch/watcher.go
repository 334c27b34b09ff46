// Package watch turns filesystem write events into save signals. It is the
// standalone replacement for the editor integration that originally fed the
// engine: any watched file settling after a write becomes one save signal.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vigil/internal/logging"
	"vigil/internal/signal"
)

// Sink receives the debounced save signals. engine.HandleEvent satisfies it.
type Sink func(signal.Signal)

// Stats tracks watcher activity for debugging.
type Stats struct {
	EventsSeen    int
	SignalsSent   int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher monitors a workspace directory tree and debounces rapid writes to
// the same file into single save signals.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	sink        Sink
	extensions  map[string]bool
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// defaultExtensions are the file types that count as workspace activity.
var defaultExtensions = []string{".go", ".py", ".ts", ".js", ".rs", ".java", ".md", ".yaml", ".yml"}

// NewWatcher creates a watcher rooted at dir. Extensions defaults to common
// source file types when nil.
func NewWatcher(dir string, extensions []string, sink Sink) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if extensions == nil {
		extensions = defaultExtensions
	}
	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet[strings.ToLower(e)] = true
	}

	w := &Watcher{
		watcher:     fw,
		sink:        sink,
		extensions:  extSet,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // rapid editor saves collapse
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	logging.Watch("watching %s", dir)
	return w, nil
}

// AddDir watches an additional directory.
func (w *Watcher) AddDir(dir string) error {
	return w.watcher.Add(dir)
}

// Start begins processing events. Non-blocking; the event loop runs in its
// own goroutine until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("close: %v", err)
	}
	logging.Watch("stopped")
}

// GetStats returns a snapshot of watcher activity.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	flush := time.NewTicker(100 * time.Millisecond)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watch error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-flush.C:
			w.flushSettled()
		}
	}
}

// handleEvent records write and create events for debounced emission.
// Deletes, renames, and chmods carry no save semantics and are ignored.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !w.extensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	logging.WatchDebug("write event for %s", event.Name)
	w.mu.Lock()
	w.stats.EventsSeen++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = time.Now()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// flushSettled emits one save signal per file whose last write has settled
// past the debounce window.
func (w *Watcher) flushSettled() {
	now := time.Now()

	w.mu.Lock()
	var settled []string
	for path, last := range w.debounceMap {
		if now.Sub(last) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.stats.SignalsSent += len(settled)
	w.mu.Unlock()

	for _, path := range settled {
		w.sink(signal.New(signal.KindSave, map[string]any{"path": path}, signal.SeverityLow))
	}
}
