package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignored_v4l2_nodes.json")
	if err := os.WriteFile(path, []byte(`["/dev/video9"]`), 0o644); err != nil {
		t.Fatalf("writing overlay: %v", err)
	}

	w := NewConfigWatcher(path, LoadIgnoredNodes, discardLogger(),
		WithDebounce[[]string](10*time.Millisecond))

	var got atomic.Value
	w.OnReload(func(nodes []string) { got.Store(nodes) })

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`["/dev/video9", "/dev/video10"]`), 0o644); err != nil {
		t.Fatalf("rewriting overlay: %v", err)
	}

	waitFor(t, func() bool {
		nodes, _ := got.Load().([]string)
		return len(nodes) == 2
	}, "reload with two nodes")
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignored_v4l2_nodes.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatalf("writing overlay: %v", err)
	}

	w := NewConfigWatcher(path, LoadIgnoredNodes, discardLogger(),
		WithDebounce[[]string](10*time.Millisecond))

	var kept, removed atomic.Int32
	w.OnReload(func([]string) { kept.Add(1) })
	unsubscribe := w.OnReload(func([]string) { removed.Add(1) })
	unsubscribe()

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`["/dev/video1"]`), 0o644); err != nil {
		t.Fatalf("rewriting overlay: %v", err)
	}

	waitFor(t, func() bool { return kept.Load() >= 1 }, "kept handler")
	if removed.Load() != 0 {
		t.Errorf("unsubscribed handler ran %d times", removed.Load())
	}
}

func TestWatcherReportsLoadErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignored_v4l2_nodes.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatalf("writing overlay: %v", err)
	}

	loader := func(string) ([]string, error) {
		return nil, errors.New("boom")
	}

	var failures atomic.Int32
	var handled atomic.Int32
	w := NewConfigWatcher(path, loader, discardLogger(),
		WithDebounce[[]string](10*time.Millisecond),
		WithErrorHandler[[]string](func(error) { failures.Add(1) }))
	w.OnReload(func([]string) { handled.Add(1) })

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`["/dev/video1"]`), 0o644); err != nil {
		t.Fatalf("rewriting overlay: %v", err)
	}

	waitFor(t, func() bool { return failures.Load() >= 1 }, "error handler")
	if handled.Load() != 0 {
		t.Errorf("reload handler ran %d times despite load failure", handled.Load())
	}
}

func TestWatcherStartMissingFile(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "missing.json"),
		LoadIgnoredNodes, discardLogger())
	if err := w.Start(); err == nil {
		w.Stop()
		t.Fatal("Start succeeded on a missing file")
	}
}
