package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vigil/internal/signal"
)

type collector struct {
	mu   sync.Mutex
	sigs []signal.Signal
}

func (c *collector) sink(s signal.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sigs = append(c.sigs, s)
}

func (c *collector) snapshot() []signal.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]signal.Signal, len(c.sigs))
	copy(out, c.sigs)
	return out
}

func startWatcher(t *testing.T, dir string, col *collector) *Watcher {
	t.Helper()
	w, err := NewWatcher(dir, nil, col.sink)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	return w
}

func waitForSignals(t *testing.T, col *collector, n int) []signal.Signal {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		sigs := col.snapshot()
		if len(sigs) >= n {
			return sigs
		}
		select {
		case <-deadline:
			t.Fatalf("got %d signal(s), want %d", len(sigs), n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWriteBecomesSaveSignal(t *testing.T) {
	dir := t.TempDir()
	col := &collector{}
	startWatcher(t, dir, col)

	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sigs := waitForSignals(t, col, 1)
	if sigs[0].Kind != signal.KindSave {
		t.Errorf("kind = %s, want save", sigs[0].Kind)
	}
	if got, _ := sigs[0].Payload["path"].(string); got != path {
		t.Errorf("payload path = %q, want %q", got, path)
	}
}

func TestRapidWritesDebounceToOne(t *testing.T) {
	dir := t.TempDir()
	col := &collector{}
	w := startWatcher(t, dir, col)

	path := filepath.Join(dir, "busy.go")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("package busy\n"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	waitForSignals(t, col, 1)
	// Allow a full debounce window to elapse; no second signal may appear.
	time.Sleep(700 * time.Millisecond)
	if got := len(col.snapshot()); got != 1 {
		t.Errorf("signals = %d, want 1 after debounce", got)
	}
	if stats := w.GetStats(); stats.EventsSeen < 2 {
		t.Errorf("events seen = %d, want the raw burst", stats.EventsSeen)
	}
}

func TestUnwatchedExtensionIgnored(t *testing.T) {
	dir := t.TempDir()
	col := &collector{}
	startWatcher(t, dir, col)

	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	time.Sleep(700 * time.Millisecond)
	if got := len(col.snapshot()); got != 0 {
		t.Errorf("signals for ignored extension = %d, want 0", got)
	}
}

func TestCustomExtensions(t *testing.T) {
	dir := t.TempDir()
	col := &collector{}
	w, err := NewWatcher(dir, []string{".txt"}, col.sink)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Start(context.Background())
	t.Cleanup(w.Stop)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	waitForSignals(t, col, 1)
}

func TestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, nil, func(signal.Signal) {})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}
