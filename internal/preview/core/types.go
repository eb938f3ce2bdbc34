// Package core defines the shared types passed between the preview
// pipeline stages: document snapshots, cancellation flags, and the
// cancellation sentinel.
package core

import (
	"errors"
	"sync/atomic"
)

// ErrCancelled is returned by pipeline stages that abort because their
// cancellation flag was set. A cancelled attempt produces no result.
var ErrCancelled = errors.New("render cancelled")

// Snapshot is an immutable view of the document at a point in time.
//
// Versions are strictly increasing and never reused; the producer
// (the editing surface) is responsible for stamping them.
type Snapshot struct {
	// Content is the full document text.
	Content string

	// Version is the monotonic document version this snapshot captures.
	Version uint64
}

// Size returns the document size in bytes.
func (s Snapshot) Size() int {
	return len(s.Content)
}

// CancelFlag is a cooperative cancellation flag.
//
// A running render polls the flag at block boundaries and aborts when it
// is set. Setting the flag never interrupts anything by force.
type CancelFlag struct {
	set atomic.Bool
}

// Cancel sets the flag. Safe to call multiple times.
func (f *CancelFlag) Cancel() {
	f.set.Store(true)
}

// Cancelled reports whether the flag has been set.
func (f *CancelFlag) Cancelled() bool {
	return f.set.Load()
}
