package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[testConfig]) *Watcher[testConfig] {
	t.Helper()
	opts = append([]WatcherOption[testConfig]{WithDebounce[testConfig](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), opts...)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	// Let the watcher settle before changing files.
	time.Sleep(100 * time.Millisecond)
	return w
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "outputs.toml", "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 4)
	w := startWatcher(t, path)
	w.OnReload(func(cfg testConfig) { received <- cfg })

	if err := os.WriteFile(path, []byte("name = \"updated\"\nvalue = 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestWatcherFollowsRename(t *testing.T) {
	path := writeFile(t, "outputs.toml", "name = \"a\"\n")

	received := make(chan testConfig, 4)
	w := startWatcher(t, path)
	w.OnReload(func(cfg testConfig) { received <- cfg })

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("name = \"renamed\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Name != "renamed" {
			t.Errorf("got %+v", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	path := writeFile(t, "outputs.toml", "name = \"a\"\n")

	var calls atomic.Int32
	w := startWatcher(t, path)
	w.OnReload(func(testConfig) { calls.Add(1) })

	sibling := filepath.Join(filepath.Dir(path), "other.toml")
	if err := os.WriteFile(sibling, []byte("name = \"b\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times for unrelated file", n)
	}
}

func TestWatcherDebounce(t *testing.T) {
	path := writeFile(t, "outputs.toml", "value = 0\n")

	var calls atomic.Int32
	last := make(chan testConfig, 8)
	w := startWatcher(t, path, WithDebounce[testConfig](200*time.Millisecond))
	w.OnReload(func(cfg testConfig) {
		calls.Add(1)
		last <- cfg
	})

	for i := 1; i <= 5; i++ {
		data, _ := toml.Marshal(testConfig{Value: i})
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case cfg := <-last:
		if cfg.Value != 5 {
			t.Errorf("Value = %d, want 5", cfg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for debounced reload")
	}

	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := writeFile(t, "outputs.toml", "value = 1\n")
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger())

	var first, second atomic.Int32
	unsubscribe := w.OnReload(func(testConfig) { first.Add(1) })
	w.OnReload(func(testConfig) { second.Add(1) })

	if err := w.Reload(); err != nil {
		t.Fatal(err)
	}
	unsubscribe()
	unsubscribe()
	if err := w.Reload(); err != nil {
		t.Fatal(err)
	}

	if first.Load() != 1 || second.Load() != 2 {
		t.Errorf("first=%d second=%d, want 1 and 2", first.Load(), second.Load())
	}
}

func TestWatcherHandlerOrder(t *testing.T) {
	path := writeFile(t, "outputs.toml", "value = 1\n")
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger())

	var order []int
	for i := 0; i < 5; i++ {
		w.OnReload(func(testConfig) { order = append(order, i) })
	}
	if err := w.Reload(); err != nil {
		t.Fatal(err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("handlers ran out of registration order: %v", order)
		}
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	path := writeFile(t, "outputs.toml", "value = [broken\n")

	var gotErr error
	var calls atomic.Int32
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(),
		WithErrorHandler[testConfig](func(err error) { gotErr = err }))
	w.OnReload(func(testConfig) { calls.Add(1) })

	err := w.Reload()
	if err == nil || !errors.Is(gotErr, err) {
		t.Errorf("Reload err = %v, handler err = %v", err, gotErr)
	}
	if calls.Load() != 0 {
		t.Error("handlers must not run after a failed load")
	}
}

func TestWatcherStopWithoutStart(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "x.toml"), loadTestConfig, newTestLogger())
	if err := w.Stop(); err != nil {
		t.Errorf("Stop before Start = %v", err)
	}
}

func TestWatcherStartMissingDirectory(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "nope", "x.toml"), loadTestConfig, newTestLogger())
	if err := w.Start(); err == nil {
		_ = w.Stop()
		t.Error("expected error watching a missing directory")
	}
}
