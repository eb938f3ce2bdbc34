// Package debounce collapses bursts of edit events into a single render
// request once the input stream quiesces.
package debounce

import (
	"sync"
	"time"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/core"
)

const (
	// DefaultBase is the default quiescence window.
	DefaultBase = 300 * time.Millisecond

	// DefaultMax caps the adaptive quiescence window.
	DefaultMax = 800 * time.Millisecond

	// sizeFloor is the document size below which the base delay applies
	// unscaled.
	sizeFloor = 64 * 1024

	// sizeStep adds one millisecond of delay per step of document size
	// above the floor.
	sizeStep = 4 * 1024
)

// Debouncer emits the latest snapshot after a quiet period with no new
// changes. The quiescence window scales with document size so large
// documents are not re-rendered mid-typing.
//
// Thread-safety: all methods are safe for concurrent use. The emit
// callback is never invoked concurrently with itself from the debouncer.
type Debouncer struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	timer   *time.Timer
	pending bool
	latest  core.Snapshot
	seq     uint64 // invalidates stale timer callbacks
	emit    func(core.Snapshot)
}

// New creates a debouncer that calls emit with the latest snapshot once
// the stream of OnChange calls quiesces. Non-positive durations fall
// back to the defaults.
func New(base, max time.Duration, emit func(core.Snapshot)) *Debouncer {
	if base <= 0 {
		base = DefaultBase
	}
	if max < base {
		max = DefaultMax
	}
	if max < base {
		max = base
	}
	return &Debouncer{
		base: base,
		max:  max,
		emit: emit,
	}
}

// OnChange records a new snapshot and restarts the quiescence timer.
// The previous pending timer is always stopped first, so rapid resets
// never leak timers.
func (d *Debouncer) OnChange(snap core.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.latest = snap
	d.pending = true
	d.seq++
	currentSeq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delayFor(snap.Size()), func() {
		d.mu.Lock()
		if d.pending && d.seq == currentSeq && d.emit != nil {
			d.pending = false
			snap := d.latest
			d.mu.Unlock()
			d.emit(snap)
		} else {
			d.mu.Unlock()
		}
	})
}

// Flush emits the pending snapshot immediately, cancelling the timer.
// No-op when nothing is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++

	if d.pending && d.emit != nil {
		d.pending = false
		snap := d.latest
		d.mu.Unlock()
		d.emit(snap)
	} else {
		d.mu.Unlock()
	}
}

// Cancel drops any pending snapshot without emitting.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}

// Pending reports whether a snapshot is waiting to be emitted.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// delayFor scales the base delay linearly with document size, clamped
// to the configured ceiling.
func (d *Debouncer) delayFor(size int) time.Duration {
	if size <= sizeFloor {
		return d.base
	}
	extra := time.Duration((size-sizeFloor)/sizeStep) * time.Millisecond
	delay := d.base + extra
	if delay > d.max {
		return d.max
	}
	return delay
}
