package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/block"
	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/core"
	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/debounce"
	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/render"
	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/schedule"
)

// CoalescingKey groups all preview render tasks: only the newest
// submission under it survives to execution.
const CoalescingKey = "preview"

// Config holds the pipeline tuning knobs.
type Config struct {
	// DebounceBase is the quiescence window for small documents.
	DebounceBase time.Duration

	// DebounceMax caps the size-scaled quiescence window.
	DebounceMax time.Duration

	// CacheCapacity bounds the fragment cache (entries).
	CacheCapacity int

	// WorkerCount sizes the scheduler pool. Zero derives it from
	// hardware concurrency.
	WorkerCount int

	// ConverterTimeout bounds a single converter invocation.
	ConverterTimeout time.Duration

	// ResultBuffer sizes the result channel.
	ResultBuffer int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		DebounceBase:     debounce.DefaultBase,
		DebounceMax:      debounce.DefaultMax,
		CacheCapacity:    block.DefaultCapacity,
		WorkerCount:      schedule.DefaultWorkerCount(),
		ConverterTimeout: render.DefaultTimeout,
		ResultBuffer:     schedule.DefaultResultBuffer,
	}
}

// Pipeline is the live-preview façade.
//
// The editing surface calls OnChange on every edit and reads rendered
// results from Results; it never blocks on render completion. Results
// arrive in non-decreasing version order; a superseded version simply
// never produces one.
type Pipeline struct {
	cfg    Config
	log    *slog.Logger
	cache  *block.Cache
	sched  *schedule.Scheduler
	deb    *debounce.Debouncer
	worker *render.Worker

	results chan render.Result

	mu        sync.Mutex
	delivered uint64 // highest version handed to the caller
	hasResult bool
	closed    bool

	routeDone chan struct{}
}

// New builds and starts a pipeline around the given converter.
func New(conv render.Converter, cfg Config, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DebounceBase <= 0 {
		cfg.DebounceBase = debounce.DefaultBase
	}
	if cfg.DebounceMax < cfg.DebounceBase {
		cfg.DebounceMax = cfg.DebounceBase
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = block.DefaultCapacity
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = schedule.DefaultWorkerCount()
	}
	if cfg.ConverterTimeout <= 0 {
		cfg.ConverterTimeout = render.DefaultTimeout
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = schedule.DefaultResultBuffer
	}

	p := &Pipeline{
		cfg:       cfg,
		log:       log,
		cache:     block.NewCache(cfg.CacheCapacity),
		results:   make(chan render.Result, cfg.ResultBuffer),
		routeDone: make(chan struct{}),
	}
	p.worker = render.NewWorker(conv, p.cache, cfg.ConverterTimeout)
	p.sched = schedule.New(
		schedule.WithWorkerCount(cfg.WorkerCount),
		schedule.WithResultBuffer(cfg.ResultBuffer),
	)
	if err := p.sched.Start(); err != nil {
		return nil, err
	}
	p.deb = debounce.New(cfg.DebounceBase, cfg.DebounceMax, p.submit)

	go p.route()
	return p, nil
}

// OnChange feeds an edit event into the pipeline. Versions must be
// strictly increasing; the call never blocks on rendering.
func (p *Pipeline) OnChange(snap core.Snapshot) {
	p.deb.OnChange(snap)
}

// Flush forces the pending snapshot, if any, to render immediately
// instead of waiting out the quiescence window.
func (p *Pipeline) Flush() {
	p.deb.Flush()
}

// Results returns the channel of render results, success or error,
// tagged by document version. Closed by Close.
func (p *Pipeline) Results() <-chan render.Result {
	return p.results
}

// Close shuts the pipeline down: pending debounced work is dropped,
// in-flight renders are flagged, and the result channel is closed.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.deb.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.sched.Stop(ctx); err != nil {
		// Workers did not drain; leave the result channel open rather
		// than racing a send against close.
		return err
	}

	<-p.routeDone
	close(p.results)
	return nil
}

// submit is the debouncer's emit target: one render task per quiescent
// snapshot, coalesced under the preview key.
func (p *Pipeline) submit(snap core.Snapshot) {
	_, err := p.sched.Submit(&schedule.Task{
		Key:      CoalescingKey,
		Priority: schedule.PriorityHigh,
		Version:  snap.Version,
		Run: func(ctx context.Context, flag *core.CancelFlag) (string, error) {
			res := p.worker.Execute(ctx, snap, flag)
			return res.HTML, res.Err
		},
	})
	if err != nil {
		p.log.Debug("render submit rejected", "version", snap.Version, "error", err)
	}
}

// route forwards scheduler outcomes to the caller, applying the
// staleness guard: a result at or below the highest delivered version
// is discarded.
func (p *Pipeline) route() {
	defer close(p.routeDone)

	for o := range p.sched.Results() {
		p.mu.Lock()
		stale := p.hasResult && o.Version <= p.delivered
		delivered := p.delivered
		if !stale {
			p.delivered = o.Version
			p.hasResult = true
		}
		p.mu.Unlock()

		if stale {
			p.log.Debug("stale result discarded",
				"version", o.Version, "delivered", delivered)
			continue
		}

		if o.Err != nil {
			p.log.Warn("render failed",
				"version", o.Version, "duration", o.Duration, "error", o.Err)
		} else {
			p.log.Debug("render complete",
				"version", o.Version, "duration", o.Duration, "bytes", len(o.Output))
		}

		p.deliver(render.Result{Version: o.Version, HTML: o.Output, Err: o.Err})
	}
}

// deliver hands a result to the caller without blocking a pipeline
// goroutine: when the subscriber stalls, the oldest undelivered result
// is dropped in favor of the new one.
func (p *Pipeline) deliver(res render.Result) {
	select {
	case p.results <- res:
		return
	default:
	}

	select {
	case <-p.results:
	default:
	}
	select {
	case p.results <- res:
	default:
	}
}

// Stats returns a combined snapshot of cache and scheduler counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Cache:     p.cache.Stats(),
		Scheduler: p.sched.Stats(),
	}
}

// Stats aggregates pipeline statistics.
type Stats struct {
	Cache     block.CacheStats `json:"cache"`
	Scheduler schedule.Stats   `json:"scheduler"`
}
