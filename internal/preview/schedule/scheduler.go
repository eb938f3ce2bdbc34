package schedule

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/core"
)

// DefaultResultBuffer is the default result channel capacity.
const DefaultResultBuffer = 16

// DefaultWorkerCount returns the default pool size: a small share of
// available hardware concurrency, never fewer than two workers.
func DefaultWorkerCount() int {
	n := runtime.GOMAXPROCS(0) / 2
	if n < 2 {
		n = 2
	}
	return n
}

// Scheduler owns the priority queue and the worker pool.
//
// The queue lock is independent of any lock the executing tasks take
// (such as the fragment cache's), so deciding what to run never
// contends with running it.
type Scheduler struct {
	workerCount  int
	resultBuffer int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   taskQueue
	byKey   map[string]*Task
	byID    map[string]*Task
	seq     uint64
	running bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	results chan Outcome

	submitted atomic.Uint64
	coalesced atomic.Uint64
	cancelled atomic.Uint64
	skipped   atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Scheduler) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithResultBuffer sets the result channel capacity.
func WithResultBuffer(size int) Option {
	return func(s *Scheduler) {
		if size > 0 {
			s.resultBuffer = size
		}
	}
}

// New creates a scheduler. Call Start before submitting.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		workerCount:  DefaultWorkerCount(),
		resultBuffer: DefaultResultBuffer,
		byKey:        make(map[string]*Task),
		byID:         make(map[string]*Task),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Results returns the outcome channel. It is closed by Stop after the
// workers drain.
func (s *Scheduler) Results() <-chan Outcome {
	return s.results
}

// Start launches the worker pool.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.results = make(chan Outcome, s.resultBuffer)

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return nil
}

// Stop shuts the pool down. Queued tasks that never ran are marked
// cancelled; running tasks get their flags set and are waited for until
// ctx expires. The result channel is closed once the workers exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false

	for _, t := range s.byID {
		t.flag.Cancel()
		if t.state == StateQueued {
			t.state = StateCancelled
			s.cancelled.Add(1)
		}
	}
	s.queue = nil
	s.byKey = make(map[string]*Task)
	s.byID = make(map[string]*Task)
	s.cancel()
	s.cond.Broadcast()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(s.results)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues a task and returns its ID.
//
// If another task shares the coalescing key, the older one is cancelled
// before the new one is inserted: removed from the queue outright when
// still queued, flagged for cooperative abort when running.
func (s *Scheduler) Submit(t *Task) (string, error) {
	if t == nil || t.Run == nil {
		return "", fmt.Errorf("submit: task has no work")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return "", ErrNotRunning
	}

	if t.Key != "" {
		if prev, ok := s.byKey[t.Key]; ok {
			s.supersedeLocked(prev)
		}
	}

	t.id = uuid.New().String()
	t.state = StateQueued
	s.seq++
	t.seq = s.seq

	heap.Push(&s.queue, t)
	s.byID[t.id] = t
	if t.Key != "" {
		s.byKey[t.Key] = t
	}
	s.submitted.Add(1)
	s.cond.Signal()
	return t.id, nil
}

// Cancel cancels the task with the given ID.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrUnknownTask
	}
	s.cancelLocked(t)
	return nil
}

// CancelByKey cancels the active task under the given coalescing key.
func (s *Scheduler) CancelByKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byKey[key]
	if !ok {
		return ErrUnknownTask
	}
	s.cancelLocked(t)
	return nil
}

// supersedeLocked cancels prev in favor of a newer submission.
func (s *Scheduler) supersedeLocked(prev *Task) {
	s.coalesced.Add(1)
	s.cancelLocked(prev)
}

// cancelLocked transitions a task out of the active set. A queued task
// is removed from the queue and never runs; a running task is flagged
// and aborts at its next checkpoint.
func (s *Scheduler) cancelLocked(t *Task) {
	switch t.state {
	case StateQueued:
		t.state = StateCancelled
		if t.index >= 0 {
			heap.Remove(&s.queue, t.index)
		}
		s.removeLocked(t)
		s.cancelled.Add(1)
	case StateRunning:
		t.flag.Cancel()
	default:
	}
}

// removeLocked drops a task from the lookup maps.
func (s *Scheduler) removeLocked(t *Task) {
	delete(s.byID, t.id)
	if t.Key != "" && s.byKey[t.Key] == t {
		delete(s.byKey, t.Key)
	}
}

// worker dequeues and executes tasks until the scheduler stops.
func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for s.running && s.queue.Len() == 0 {
			s.cond.Wait()
		}
		if !s.running {
			s.mu.Unlock()
			return
		}

		t := heap.Pop(&s.queue).(*Task)
		if t.state != StateQueued {
			// Cancelled while queued; skip without emitting.
			s.skipped.Add(1)
			s.mu.Unlock()
			continue
		}
		t.state = StateRunning
		ctx := s.baseCtx
		s.mu.Unlock()

		s.execute(ctx, t)
	}
}

// execute runs one task and routes its outcome. Panics become error
// outcomes; the worker survives.
func (s *Scheduler) execute(ctx context.Context, t *Task) {
	start := time.Now()

	output, err := s.runRecovered(ctx, t)
	duration := time.Since(start)

	aborted := errors.Is(err, core.ErrCancelled) || t.flag.Cancelled()

	s.mu.Lock()
	if aborted {
		t.state = StateCancelled
	} else {
		t.state = StateDone
	}
	s.removeLocked(t)
	s.mu.Unlock()

	if aborted {
		s.cancelled.Add(1)
		return
	}
	if err != nil {
		s.failed.Add(1)
	} else {
		s.succeeded.Add(1)
	}

	s.emit(Outcome{
		TaskID:   t.id,
		Key:      t.Key,
		Version:  t.Version,
		Output:   output,
		Err:      err,
		Duration: duration,
	})
}

// runRecovered invokes the task body with panic recovery.
func (s *Scheduler) runRecovered(ctx context.Context, t *Task) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.panicked.Add(1)
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return t.Run(ctx, &t.flag)
}

// emit delivers an outcome without ever blocking a worker. When the
// buffer is full the oldest undelivered outcome is dropped; a newer
// result always supersedes an older one anyway.
func (s *Scheduler) emit(o Outcome) {
	select {
	case s.results <- o:
		return
	default:
	}

	select {
	case <-s.results:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.results <- o:
	default:
		s.dropped.Add(1)
	}
}

// Stats returns a point-in-time snapshot of scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	queued := s.queue.Len()
	workers := s.workerCount
	s.mu.Unlock()

	return Stats{
		Workers:   workers,
		Queued:    queued,
		Submitted: s.submitted.Load(),
		Coalesced: s.coalesced.Load(),
		Cancelled: s.cancelled.Load(),
		Skipped:   s.skipped.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Panicked:  s.panicked.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// Stats holds scheduler statistics.
type Stats struct {
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	Submitted uint64 `json:"submitted"`
	Coalesced uint64 `json:"coalesced"`
	Cancelled uint64 `json:"cancelled"`
	Skipped   uint64 `json:"skipped"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Panicked  uint64 `json:"panicked"`
	Dropped   uint64 `json:"dropped"`
}
