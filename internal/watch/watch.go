// Package watch provides a "file changed on disk, debounce, reload" loop
// for live proofreading of a document that an editor keeps saving. Editors
// write a single save as several filesystem events, often through a rename
// of a temporary file, so the watcher observes the parent directory and
// coalesces bursts before firing.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options tunes the watcher behaviour.
type Options struct {
	// Debounce is the quiet period after a change before the action fires.
	// More events during the window reset the timer. Default: 250ms.
	Debounce time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Debounce <= 0 {
		o.Debounce = 250 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher reloads a document when its file changes. It is safe for
// concurrent use.
type Watcher struct {
	path string
	opts Options

	// reloads counts completed reloads; it only advances when the action
	// succeeds, so WaitForReload doubles as a success barrier.
	reloads  atomic.Int64
	reloadMu sync.Mutex
	reloadCv *sync.Cond

	events   atomic.Int64
	errors   atomic.Int64
	reloadNs atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Events        int64         `json:"events"`
	Reloads       int64         `json:"reloads"`
	Errors        int64         `json:"errors"`
	AvgReloadTime time.Duration `json:"avg_reload_time"`
}

// New creates a Watcher for path. Call OnChange to start the loop.
func New(path string, opts Options) *Watcher {
	opts.defaults()
	w := &Watcher{path: path, opts: opts}
	w.reloadCv = sync.NewCond(&w.reloadMu)
	return w
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	s := Stats{
		Events:  w.events.Load(),
		Reloads: w.reloads.Load(),
		Errors:  w.errors.Load(),
	}
	if s.Reloads > 0 {
		s.AvgReloadTime = time.Duration(w.reloadNs.Load() / s.Reloads)
	}
	return s
}

// Reloads returns the number of completed reloads.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

// OnChange blocks until ctx is cancelled, firing action after each settled
// burst of writes to the file. A failed action does not advance the reload
// counter; the next save retries.
//
// The watch is on the parent directory: atomic-save editors replace the
// file by renaming a temporary over it, which a watch on the file itself
// would lose.
func (w *Watcher) OnChange(ctx context.Context, action func() error) error {
	log := w.opts.Logger

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(w.path)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pending := false

	log.Info("watch: started", "path", w.path, "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped", "path", w.path)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				// Remove/Rename precede the Create of an atomic save;
				// Chmod is noise.
				continue
			}
			w.events.Add(1)
			pending = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.opts.Debounce)
			debounceCh = debounceTimer.C
			log.Debug("watch: change detected, debouncing", "op", ev.Op.String())

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.errors.Add(1)
			log.Warn("watch: filesystem error", "error", err)

		case <-debounceCh:
			debounceCh = nil
			if pending {
				pending = false
				w.fire(log, action)
			}
		}
	}
}

// WaitForReload blocks until at least target reloads have completed
// successfully, or ctx expires.
func (w *Watcher) WaitForReload(ctx context.Context, target int64) error {
	if w.reloads.Load() >= target {
		return nil
	}

	done := ctx.Done()
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	for w.reloads.Load() < target {
		ch := make(chan struct{})
		go func() {
			select {
			case <-done:
				w.reloadCv.Broadcast()
			case <-ch:
			}
		}()

		w.reloadCv.Wait()
		close(ch)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (w *Watcher) fire(log *slog.Logger, action func() error) {
	start := time.Now()
	if err := action(); err != nil {
		w.errors.Add(1)
		log.Error("watch: reload failed", "path", w.path, "error", err)
		return
	}
	elapsed := time.Since(start)
	w.reloadNs.Add(int64(elapsed))
	w.reloads.Add(1)
	w.reloadCv.Broadcast()
	log.Info("watch: reload complete", "path", w.path, "duration", elapsed)
}
