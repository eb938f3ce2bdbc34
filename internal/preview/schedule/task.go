// Package schedule provides a priority task scheduler with coalescing
// keys, cooperative cancellation, and a bounded worker pool.
//
// At most one task per coalescing key is ever Queued or Running: a new
// submission under an existing key cancels its predecessor, outright if
// it is still queued, cooperatively (via its cancellation flag) if it is
// already running.
package schedule

import (
	"context"
	"time"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/core"
)

// Priority orders tasks in the queue. Higher runs first; ties are
// broken by arrival order.
type Priority int

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the tier name.
func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "idle"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// State is a task's lifecycle state.
type State int

const (
	StateQueued State = iota
	StateRunning
	StateCancelled
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// RunFunc is the unit of work a task executes. It must poll flag at its
// checkpoints and return core.ErrCancelled when aborting; the scheduler
// suppresses the outcome of an aborted run.
type RunFunc func(ctx context.Context, flag *core.CancelFlag) (string, error)

// Task is a schedulable unit of work.
type Task struct {
	// Key groups tasks for coalescing. Empty means no coalescing.
	Key string

	// Priority selects the queue tier.
	Priority Priority

	// Version is the document version the task renders.
	Version uint64

	// Run performs the work.
	Run RunFunc

	id    string
	flag  core.CancelFlag
	state State
	seq   uint64
	index int // heap index, maintained by taskQueue
}

// ID returns the identifier assigned at submission.
func (t *Task) ID() string {
	return t.id
}

// Outcome is a completed task's result, success or error, routed to the
// scheduler's result channel. Cancelled tasks produce no Outcome.
type Outcome struct {
	TaskID   string
	Key      string
	Version  uint64
	Output   string
	Err      error
	Duration time.Duration
}

// taskQueue is a max-heap ordered by (priority desc, arrival asc).
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*Task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
