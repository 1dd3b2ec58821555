// Package watch regenerates README-derived tests while the README is edited.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pycicd/internal/logging"
	"pycicd/internal/readme"
)

// GenerateFunc regenerates the tests for a README.
type GenerateFunc func(readmePath, testsDir string) (string, bool, error)

// ReadmeWatcher watches the README's directory and regenerates tests after
// the README settles past the debounce window.
type ReadmeWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	readmePath  string
	testsDir    string
	generate    GenerateFunc
	onGenerated func(path string)
	pending     time.Time // zero when no change is waiting
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	closed      bool

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Regenerations int
	Unchanged     int
	Errors        int
	LastEventTime time.Time
	LastOutput    string
}

// Option configures a ReadmeWatcher.
type Option func(*ReadmeWatcher)

// WithDebounce sets how long the README must stay quiet before regenerating.
func WithDebounce(d time.Duration) Option {
	return func(w *ReadmeWatcher) { w.debounceDur = d }
}

// WithGenerator replaces readme.AddReadmeTests.
func WithGenerator(fn GenerateFunc) Option {
	return func(w *ReadmeWatcher) { w.generate = fn }
}

// OnGenerated is called with the output path after every regeneration.
func OnGenerated(fn func(path string)) Option {
	return func(w *ReadmeWatcher) { w.onGenerated = fn }
}

// NewReadmeWatcher creates a watcher for readmePath writing into testsDir.
func NewReadmeWatcher(readmePath, testsDir string, opts ...Option) (*ReadmeWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &ReadmeWatcher{
		watcher:     watcher,
		readmePath:  filepath.Clean(readmePath),
		testsDir:    testsDir,
		generate:    readme.AddReadmeTests,
		debounceDur: 500 * time.Millisecond, // editors save in bursts
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the README directory. It is non-blocking; the event loop
// runs until ctx is done or Stop is called.
func (w *ReadmeWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Editors often replace the file, so the directory is watched.
	dir := filepath.Dir(w.readmePath)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Watch("Watching %s", w.readmePath)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *ReadmeWatcher) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	running := w.running
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	if running {
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		logging.WatchWarn("Error closing watcher: %v", err)
	}
	logging.Watch("Watcher stopped")
}

// Stats returns a snapshot of the counters.
func (w *ReadmeWatcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *ReadmeWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(debounceTick(w.debounceDur))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("Context cancelled")
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
			logging.WatchWarn("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processPending()
		}
	}
}

func debounceTick(d time.Duration) time.Duration {
	tick := d / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	return tick
}

func (w *ReadmeWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.readmePath {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	logging.WatchDebug("%s on %s", event.Op, event.Name)
	w.mu.Lock()
	now := time.Now()
	w.stats.Events++
	w.stats.LastEventTime = now
	w.pending = now
	w.mu.Unlock()
}

func (w *ReadmeWatcher) processPending() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	path, regenerated, err := w.generate(w.readmePath, w.testsDir)

	w.mu.Lock()
	switch {
	case err != nil:
		w.stats.Errors++
	case regenerated:
		w.stats.Regenerations++
		w.stats.LastOutput = path
	default:
		w.stats.Unchanged++
	}
	w.mu.Unlock()

	if err != nil {
		logging.WatchWarn("README tests not regenerated: %v", err)
		return
	}
	if regenerated {
		logging.Watch("Regenerated %s", filepath.Base(path))
		if w.onGenerated != nil {
			w.onGenerated(path)
		}
	}
}
