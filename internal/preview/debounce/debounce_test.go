package debounce

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/core"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var emits atomic.Int32
	var mu sync.Mutex
	var last core.Snapshot

	d := New(50*time.Millisecond, 100*time.Millisecond, func(s core.Snapshot) {
		emits.Add(1)
		mu.Lock()
		last = s
		mu.Unlock()
	})

	for i := 1; i <= 10; i++ {
		d.OnChange(core.Snapshot{Content: "doc", Version: uint64(i)})
	}

	time.Sleep(150 * time.Millisecond)

	if got := emits.Load(); got != 1 {
		t.Errorf("emits = %d, want 1", got)
	}
	mu.Lock()
	if last.Version != 10 {
		t.Errorf("emitted version = %d, want 10 (latest snapshot)", last.Version)
	}
	mu.Unlock()
}

func TestDebouncer_SpacedChangesEachFire(t *testing.T) {
	var emits atomic.Int32
	d := New(30*time.Millisecond, 60*time.Millisecond, func(core.Snapshot) {
		emits.Add(1)
	})

	d.OnChange(core.Snapshot{Version: 1})
	time.Sleep(80 * time.Millisecond)
	d.OnChange(core.Snapshot{Version: 2})
	time.Sleep(80 * time.Millisecond)

	if got := emits.Load(); got != 2 {
		t.Errorf("emits = %d, want 2", got)
	}
}

func TestDebouncer_EventuallyFires(t *testing.T) {
	var emits atomic.Int32
	d := New(30*time.Millisecond, 60*time.Millisecond, func(core.Snapshot) {
		emits.Add(1)
	})

	d.OnChange(core.Snapshot{Version: 1})
	// No further changes: the pending request must not be dropped.
	time.Sleep(100 * time.Millisecond)

	if got := emits.Load(); got != 1 {
		t.Errorf("emits = %d, want 1 (request silently dropped)", got)
	}
	if d.Pending() {
		t.Error("Pending() = true after fire")
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	var emits atomic.Int32
	d := New(30*time.Millisecond, 60*time.Millisecond, func(core.Snapshot) {
		emits.Add(1)
	})

	d.OnChange(core.Snapshot{Version: 1})
	d.Cancel()
	time.Sleep(80 * time.Millisecond)

	if got := emits.Load(); got != 0 {
		t.Errorf("emits = %d, want 0 after Cancel", got)
	}
}

func TestDebouncer_Flush(t *testing.T) {
	var emits atomic.Int32
	d := New(time.Second, 2*time.Second, func(core.Snapshot) {
		emits.Add(1)
	})

	d.OnChange(core.Snapshot{Version: 1})
	d.Flush()

	if got := emits.Load(); got != 1 {
		t.Errorf("emits = %d, want 1 immediately after Flush", got)
	}

	// The stopped timer must not fire a second emission.
	time.Sleep(50 * time.Millisecond)
	if got := emits.Load(); got != 1 {
		t.Errorf("emits = %d, want still 1", got)
	}

	// Flush with nothing pending is a no-op.
	d.Flush()
	if got := emits.Load(); got != 1 {
		t.Errorf("emits = %d after idle Flush, want 1", got)
	}
}

func TestDebouncer_AdaptiveDelay(t *testing.T) {
	d := New(100*time.Millisecond, 300*time.Millisecond, nil)

	small := d.delayFor(1024)
	if small != 100*time.Millisecond {
		t.Errorf("delayFor(small) = %v, want base 100ms", small)
	}

	mid := d.delayFor(64*1024 + 40*4*1024)
	if mid != 140*time.Millisecond {
		t.Errorf("delayFor(mid) = %v, want 140ms", mid)
	}

	huge := d.delayFor(16 * 1024 * 1024)
	if huge != 300*time.Millisecond {
		t.Errorf("delayFor(huge) = %v, want clamped to 300ms", huge)
	}
}

func TestDebouncer_LargeDocumentUsesLongerWindow(t *testing.T) {
	var emits atomic.Int32
	d := New(40*time.Millisecond, 400*time.Millisecond, func(core.Snapshot) {
		emits.Add(1)
	})

	big := strings.Repeat("x", 2*1024*1024)
	d.OnChange(core.Snapshot{Content: big, Version: 1})

	// Past the base window but inside the scaled one: nothing yet.
	time.Sleep(100 * time.Millisecond)
	if got := emits.Load(); got != 0 {
		t.Fatalf("emits = %d before scaled window elapsed, want 0", got)
	}

	time.Sleep(400 * time.Millisecond)
	if got := emits.Load(); got != 1 {
		t.Errorf("emits = %d, want 1", got)
	}
}
