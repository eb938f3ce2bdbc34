package render

import (
	"context"
	"strings"
	"time"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/block"
	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/core"
)

// DefaultTimeout bounds a single converter invocation.
const DefaultTimeout = 5 * time.Second

// Result is the outcome of one render attempt for one document version.
type Result struct {
	// Version is the document version this result corresponds to.
	Version uint64

	// HTML is the assembled output. Empty when Err is set.
	HTML string

	// Err reports a failed render (conversion error or timeout).
	Err error
}

// Worker renders snapshots against a shared fragment cache.
//
// The worker holds no per-render state; one Worker serves any number of
// concurrent Execute calls.
type Worker struct {
	conv    Converter
	cache   *block.Cache
	timeout time.Duration
}

// NewWorker creates a render worker using conv for cache misses.
// A non-positive timeout falls back to DefaultTimeout.
func NewWorker(conv Converter, cache *block.Cache, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Worker{
		conv:    conv,
		cache:   cache,
		timeout: timeout,
	}
}

// Execute renders snap. The cancellation flag is polled between blocks;
// an aborted render returns core.ErrCancelled and no result should be
// delivered for it. Conversion failures and timeouts come back inside
// the Result rather than as partial output.
func (w *Worker) Execute(ctx context.Context, snap core.Snapshot, flag *core.CancelFlag) Result {
	blocks := block.Segment(snap.Content)

	var sb strings.Builder
	for i, b := range blocks {
		if flag != nil && flag.Cancelled() {
			return Result{Version: snap.Version, Err: core.ErrCancelled}
		}
		if err := ctx.Err(); err != nil {
			return Result{Version: snap.Version, Err: core.ErrCancelled}
		}

		key := block.KeyFor(b)
		if fragment, ok := w.cache.Lookup(key); ok {
			sb.WriteString(fragment)
			continue
		}

		fragment, err := w.convertBlock(ctx, b.Content(snap.Content))
		if err != nil {
			return Result{
				Version: snap.Version,
				Err:     &ConvertError{Block: i, Offset: b.Start, Err: err},
			}
		}
		w.cache.Insert(key, fragment)
		sb.WriteString(fragment)
	}

	return Result{Version: snap.Version, HTML: sb.String()}
}

type convOutcome struct {
	fragment string
	err      error
}

// convertBlock invokes the converter under the configured deadline.
// The call runs in its own goroutine so a converter that ignores its
// context cannot pin the worker past the deadline.
func (w *Worker) convertBlock(ctx context.Context, src string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	done := make(chan convOutcome, 1)
	go func() {
		fragment, err := w.conv.Convert(ctx, src)
		done <- convOutcome{fragment: fragment, err: err}
	}()

	select {
	case out := <-done:
		return out.fragment, out.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	}
}
