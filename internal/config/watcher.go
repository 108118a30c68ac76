package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and notifies a callback when its contents
// change, so long-running watch mode can pick up threshold or optimizer
// tuning without a restart. Polling keeps the dependency surface small;
// reload latency on the order of the poll interval is fine for this use.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu   sync.Mutex
	snap snapshot

	done     chan struct{}
	stopOnce sync.Once
}

// snapshot bundles a parsed config with the file state it was read from.
// Change detection compares mtime first, then the content digest, so a
// bare touch never triggers a reload.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts polling it in the
// background. The callback, if non-nil, receives the previous and the
// freshly loaded config whenever the file content changes and still
// parses as a valid config.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.snap = snap

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap.cfg
}

// Stop terminates the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) run() {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-tick.C:
			if old, cur, changed := w.refresh(); changed && w.onChange != nil {
				// Outside the lock: the callback may call Current().
				w.onChange(old, cur)
			}
		}
	}
}

// refresh re-reads the file if its mtime moved and swaps in the new config
// when the content digest differs. An unreadable or invalid file leaves the
// current config in place.
func (w *Watcher) refresh() (old, cur *Config, changed bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	last := w.snap.mtime
	w.mu.Unlock()

	if info.ModTime().Equal(last) {
		return nil, nil, false
	}

	snap, err := w.read()
	if err != nil {
		slog.Warn("config watcher: reload failed, keeping current config", "path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if snap.sum == w.snap.sum {
		// Touched but identical; remember the new mtime so we skip
		// re-hashing on the next poll.
		w.snap.mtime = snap.mtime
		return nil, nil, false
	}

	old = w.snap.cfg
	w.snap = snap
	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"threshold_hi", snap.cfg.Engine.ThresholdHi,
		"threshold_lo", snap.cfg.Engine.ThresholdLo,
	)
	return old, snap.cfg, true
}

// read loads and validates the config file, capturing the digest and
// mtime used for subsequent change detection.
func (w *Watcher) read() (snapshot, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
