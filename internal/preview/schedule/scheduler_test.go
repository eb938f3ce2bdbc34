package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/core"
)

func startScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s := New(opts...)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func waitOutcome(t *testing.T, s *Scheduler) Outcome {
	t.Helper()
	select {
	case o := <-s.Results():
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestScheduler_ExecutesTask(t *testing.T) {
	s := startScheduler(t, WithWorkerCount(2))

	id, err := s.Submit(&Task{
		Key:      "preview",
		Priority: PriorityNormal,
		Version:  1,
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			return "out", nil
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Error("Submit returned empty ID")
	}

	o := waitOutcome(t, s)
	if o.Output != "out" || o.Err != nil {
		t.Errorf("outcome = %q/%v, want %q/nil", o.Output, o.Err, "out")
	}
	if o.Version != 1 {
		t.Errorf("Version = %d, want 1", o.Version)
	}
	if o.TaskID != id {
		t.Errorf("TaskID = %q, want %q", o.TaskID, id)
	}
}

func TestScheduler_SubmitBeforeStart(t *testing.T) {
	s := New()
	_, err := s.Submit(&Task{Run: func(context.Context, *core.CancelFlag) (string, error) { return "", nil }})
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v, want ErrNotRunning", err)
	}
}

func TestScheduler_CoalescingCancelsQueued(t *testing.T) {
	// One worker, blocked, so later submissions stay queued.
	s := startScheduler(t, WithWorkerCount(1))

	release := make(chan struct{})
	_, err := s.Submit(&Task{
		Key: "blocker", Priority: PriorityCritical,
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			<-release
			return "blocker", nil
		},
	})
	if err != nil {
		t.Fatalf("Submit blocker: %v", err)
	}

	var firstRuns, secondRuns atomic.Int32
	if _, err := s.Submit(&Task{
		Key: "preview", Version: 1,
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			firstRuns.Add(1)
			return "v1", nil
		},
	}); err != nil {
		t.Fatalf("Submit v1: %v", err)
	}
	if _, err := s.Submit(&Task{
		Key: "preview", Version: 2,
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			secondRuns.Add(1)
			return "v2", nil
		},
	}); err != nil {
		t.Fatalf("Submit v2: %v", err)
	}

	close(release)

	o := waitOutcome(t, s) // blocker
	if o.Output != "blocker" {
		t.Fatalf("first outcome = %q, want blocker", o.Output)
	}
	o = waitOutcome(t, s)
	if o.Output != "v2" {
		t.Errorf("outcome = %q, want v2 (v1 superseded)", o.Output)
	}

	if got := firstRuns.Load(); got != 0 {
		t.Errorf("superseded task ran %d times, want 0", got)
	}
	if got := secondRuns.Load(); got != 1 {
		t.Errorf("replacement ran %d times, want 1", got)
	}
	if got := s.Stats().Coalesced; got != 1 {
		t.Errorf("Coalesced = %d, want 1", got)
	}
}

func TestScheduler_CoalescingFlagsRunning(t *testing.T) {
	s := startScheduler(t, WithWorkerCount(1))

	started := make(chan struct{})
	release := make(chan struct{})
	if _, err := s.Submit(&Task{
		Key: "preview", Version: 1,
		Run: func(_ context.Context, flag *core.CancelFlag) (string, error) {
			close(started)
			<-release
			if flag.Cancelled() {
				return "", core.ErrCancelled
			}
			return "v1", nil
		},
	}); err != nil {
		t.Fatalf("Submit v1: %v", err)
	}

	<-started
	if _, err := s.Submit(&Task{
		Key: "preview", Version: 2,
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			return "v2", nil
		},
	}); err != nil {
		t.Fatalf("Submit v2: %v", err)
	}
	close(release)

	// Only v2 produces an outcome; v1 aborts silently.
	o := waitOutcome(t, s)
	if o.Output != "v2" {
		t.Errorf("outcome = %q, want v2", o.Output)
	}
	select {
	case extra := <-s.Results():
		t.Errorf("unexpected extra outcome: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduler_PriorityOrdering(t *testing.T) {
	s := startScheduler(t, WithWorkerCount(1))

	started := make(chan struct{})
	release := make(chan struct{})
	if _, err := s.Submit(&Task{
		Key: "blocker",
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			close(started)
			<-release
			return "blocker", nil
		},
	}); err != nil {
		t.Fatalf("Submit blocker: %v", err)
	}
	<-started // ensure the sole worker holds the blocker before queueing

	// Queue across tiers, lowest first; distinct keys so nothing coalesces.
	submit := func(name string, p Priority) {
		t.Helper()
		if _, err := s.Submit(&Task{
			Key: name, Priority: p,
			Run: func(context.Context, *core.CancelFlag) (string, error) {
				return name, nil
			},
		}); err != nil {
			t.Fatalf("Submit %s: %v", name, err)
		}
	}
	submit("idle", PriorityIdle)
	submit("low", PriorityLow)
	submit("normal-a", PriorityNormal)
	submit("normal-b", PriorityNormal)
	submit("high", PriorityHigh)
	submit("critical", PriorityCritical)

	close(release)
	waitOutcome(t, s) // blocker

	want := []string{"critical", "high", "normal-a", "normal-b", "low", "idle"}
	for _, w := range want {
		o := waitOutcome(t, s)
		if o.Output != w {
			t.Fatalf("outcome order: got %q, want %q", o.Output, w)
		}
	}
}

func TestScheduler_CancelQueuedByID(t *testing.T) {
	s := startScheduler(t, WithWorkerCount(1))

	release := make(chan struct{})
	if _, err := s.Submit(&Task{
		Key: "blocker",
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			<-release
			return "blocker", nil
		},
	}); err != nil {
		t.Fatalf("Submit blocker: %v", err)
	}

	var runs atomic.Int32
	id, err := s.Submit(&Task{
		Key: "victim",
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			runs.Add(1)
			return "victim", nil
		},
	})
	if err != nil {
		t.Fatalf("Submit victim: %v", err)
	}

	if err := s.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)
	waitOutcome(t, s) // blocker

	select {
	case o := <-s.Results():
		t.Errorf("cancelled task produced outcome: %+v", o)
	case <-time.After(50 * time.Millisecond):
	}
	if got := runs.Load(); got != 0 {
		t.Errorf("cancelled task ran %d times, want 0", got)
	}
	if err := s.Cancel(id); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("second Cancel = %v, want ErrUnknownTask", err)
	}
}

func TestScheduler_ErrorRoutedToResults(t *testing.T) {
	s := startScheduler(t, WithWorkerCount(1))

	boom := errors.New("boom")
	if _, err := s.Submit(&Task{
		Key: "preview", Version: 7,
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			return "", boom
		},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	o := waitOutcome(t, s)
	if !errors.Is(o.Err, boom) {
		t.Errorf("Err = %v, want boom", o.Err)
	}
	if o.Version != 7 {
		t.Errorf("Version = %d, want 7 (errors are tagged like successes)", o.Version)
	}
}

func TestScheduler_PanicBecomesErrorOutcome(t *testing.T) {
	s := startScheduler(t, WithWorkerCount(1))

	if _, err := s.Submit(&Task{
		Key: "preview",
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			panic("render exploded")
		},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	o := waitOutcome(t, s)
	if o.Err == nil {
		t.Fatal("panicking task produced nil error")
	}

	// The worker must survive the panic.
	if _, err := s.Submit(&Task{
		Key: "preview",
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			return "alive", nil
		},
	}); err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	if o := waitOutcome(t, s); o.Output != "alive" {
		t.Errorf("outcome after panic = %q, want alive", o.Output)
	}
	if got := s.Stats().Panicked; got != 1 {
		t.Errorf("Panicked = %d, want 1", got)
	}
}

func TestScheduler_StopCancelsQueued(t *testing.T) {
	s := New(WithWorkerCount(1))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	release := make(chan struct{})
	if _, err := s.Submit(&Task{
		Key: "blocker",
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			<-release
			return "", nil
		},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	var runs atomic.Int32
	if _, err := s.Submit(&Task{
		Key: "queued",
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			runs.Add(1)
			return "", nil
		},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Stop while the blocker is still running so the queued task can
	// never be dequeued, then let the blocker finish.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stopDone := make(chan error, 1)
	go func() { stopDone <- s.Stop(ctx) }()
	time.Sleep(50 * time.Millisecond)
	close(release)
	if err := <-stopDone; err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := runs.Load(); got != 0 {
		t.Errorf("queued task ran %d times after Stop, want 0", got)
	}
	if _, err := s.Submit(&Task{Run: func(context.Context, *core.CancelFlag) (string, error) { return "", nil }}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Submit after Stop = %v, want ErrNotRunning", err)
	}
}

func TestScheduler_CancelByKey(t *testing.T) {
	s := startScheduler(t, WithWorkerCount(1))

	release := make(chan struct{})
	if _, err := s.Submit(&Task{
		Key: "blocker",
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			<-release
			return "blocker", nil
		},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	var runs atomic.Int32
	if _, err := s.Submit(&Task{
		Key: "preview",
		Run: func(context.Context, *core.CancelFlag) (string, error) {
			runs.Add(1)
			return "", nil
		},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := s.CancelByKey("preview"); err != nil {
		t.Fatalf("CancelByKey: %v", err)
	}
	close(release)
	waitOutcome(t, s) // blocker

	if got := runs.Load(); got != 0 {
		t.Errorf("cancelled task ran %d times, want 0", got)
	}
	if err := s.CancelByKey("preview"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("CancelByKey on empty key = %v, want ErrUnknownTask", err)
	}
}
