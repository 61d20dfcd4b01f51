// Package debounce provides restartable fire-once timers: a single Timer for
// one stream of events and a Group keyed by numeric identity for many
// independent streams. Re-triggering before the window expires supersedes
// the pending callback, so a burst of events produces exactly one fire with
// the last callback's state.
package debounce

import (
	"sync"
	"time"
)

// Timer debounces one stream of triggers. The zero value is not usable; use
// NewTimer.
type Timer struct {
	mu      sync.Mutex
	d       time.Duration
	timer   *time.Timer
	seq     uint64
	pending bool
}

func NewTimer(d time.Duration) *Timer {
	return &Timer{d: d}
}

// Trigger schedules fn to run once the window passes without another
// trigger. A pending callback is superseded, not queued.
func (t *Timer) Trigger(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.seq++
	t.pending = true
	seq := t.seq
	t.timer = time.AfterFunc(t.d, func() {
		t.mu.Lock()
		if seq != t.seq || !t.pending {
			t.mu.Unlock()
			return
		}
		t.pending = false
		t.mu.Unlock()
		fn()
	})
}

// Stop cancels the pending callback, reporting whether one was pending.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.pending
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
	}
	return was
}

// Pending reports whether a callback is scheduled and not yet fired.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

type groupEntry struct {
	timer *time.Timer
	seq   uint64
}

// Group debounces many streams independently, keyed by numeric identity.
// Each key gets its own window; distinct keys never supersede each other.
type Group struct {
	mu      sync.Mutex
	d       time.Duration
	seq     uint64
	entries map[uint64]*groupEntry
}

func NewGroup(d time.Duration) *Group {
	return &Group{d: d, entries: make(map[uint64]*groupEntry)}
}

// Trigger schedules fn for key, superseding any pending callback for the
// same key.
func (g *Group) Trigger(key uint64, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[key]; ok {
		e.timer.Stop()
	}
	g.seq++
	seq := g.seq
	e := &groupEntry{seq: seq}
	e.timer = time.AfterFunc(g.d, func() {
		g.mu.Lock()
		cur, ok := g.entries[key]
		if !ok || cur.seq != seq {
			g.mu.Unlock()
			return
		}
		delete(g.entries, key)
		g.mu.Unlock()
		fn()
	})
	g.entries[key] = e
}

// Stop cancels every pending callback.
func (g *Group) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, e := range g.entries {
		e.timer.Stop()
		delete(g.entries, k)
	}
}

// Pending returns how many keys have a scheduled callback.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
