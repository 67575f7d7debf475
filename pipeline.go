package flowz

import (
	"context"
	"fmt"
	"sync"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"

	"github.com/zoobzio/flowz/internal/panicsafe"
)

// Name identifies a pipeline component instance in logs, metrics, and
// traces. It carries no other meaning.
type Name = string

// Default configuration values, matching spec.md §6.
const (
	DefaultProcesses = 1
	DefaultThreads   = 1024
	DefaultQueue     = 1024
	DefaultRate      = 10
)

// Config configures a WorkPipeline.
type Config struct {
	// Processes is the number of work workers P.
	Processes int
	// Threads is the thread-pool size W per work worker.
	Threads int
	// Queue is the capacity Q of the cross-boundary queue.
	Queue int
	// Rate is the target global calls per second R; each work worker gets
	// Rate/Processes as its local rate.
	Rate float64
}

// resolved reports whether any field was ever set away from the zero
// value, used to reject a Config that was never threaded through
// NewWorkPipeline.
func (c Config) resolved() bool {
	return c.Processes != 0 || c.Threads != 0 || c.Queue != 0 || c.Rate != 0
}

// withDefaults fills any zero field with its documented default.
func (c Config) withDefaults() Config {
	if c.Processes == 0 {
		c.Processes = DefaultProcesses
	}
	if c.Threads == 0 {
		c.Threads = DefaultThreads
	}
	if c.Queue == 0 {
		c.Queue = DefaultQueue
	}
	if c.Rate == 0 {
		c.Rate = DefaultRate
	}
	return c
}

// DistributeFunc is passed to Handlers.AcquireWork; the acquire hook calls
// it once per produced item. It returns a breaker-tripping error if the
// breaker was already tripped when called, which the hook must not
// swallow.
type DistributeFunc[T any] func(ctx context.Context, item T) error

// Handlers is the user extension surface for a WorkPipeline, a struct of
// functions rather than an interface a caller must implement: AcquireWork
// and OnWork are required, the four setup/complete hooks are optional and
// nil-safe.
type Handlers[T any] struct {
	// AcquireWork produces items, calling distribute for each one.
	AcquireWork func(ctx context.Context, distribute DistributeFunc[T]) error
	// OnWork consumes one item.
	OnWork func(ctx context.Context, item T) error

	// OnAcquireSetup runs once before AcquireWork, if non-nil.
	OnAcquireSetup func(ctx context.Context) error
	// OnAcquireComplete always runs after AcquireWork exits, if non-nil.
	// Its errors are logged and swallowed.
	OnAcquireComplete func(ctx context.Context) error
	// OnWorkSetup runs once before a work worker's dequeue loop starts, if
	// non-nil.
	OnWorkSetup func(ctx context.Context) error
	// OnWorkComplete always runs after a work worker's executor drains, if
	// non-nil. Its errors are logged and swallowed.
	OnWorkComplete func(ctx context.Context) error
}

// WorkPipeline is the orchestration core: it owns the lifecycle of one
// acquire worker and Config.Processes work workers, their shared queue,
// done-flag, and breaker, and the propagation of completion vs. abort.
type WorkPipeline[T any] struct {
	config     Config
	configured bool
	handlers   Handlers[T]
	clock      clockz.Clock
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
}

// NewWorkPipeline constructs a WorkPipeline with the given configuration
// and handlers. Zero fields in cfg take their documented defaults.
func NewWorkPipeline[T any](cfg Config, handlers Handlers[T]) *WorkPipeline[T] {
	metrics := metricz.New()
	metrics.Counter(MetricPipelineProcessed)
	metrics.Gauge(MetricPipelineQueueDepth)

	return &WorkPipeline[T]{
		config:     cfg.withDefaults(),
		configured: true,
		handlers:   handlers,
		clock:      clockz.RealClock,
		metrics:    metrics,
		tracer:     tracez.New(),
	}
}

// WithClock installs a custom clock across the breaker and every per-worker
// rate limiter, primarily for deterministic tests.
func (p *WorkPipeline[T]) WithClock(clock clockz.Clock) *WorkPipeline[T] {
	p.clock = clock
	return p
}

// Run constructs the shared queue, done-flag, and breaker; spawns one
// acquire goroutine and Config.Processes work goroutines; waits for all of
// them to exit; and, if the breaker was tripped, returns *BreakerTripped.
// It returns ErrUnconfigured if cfg was never resolved via NewWorkPipeline.
func (p *WorkPipeline[T]) Run(ctx context.Context) error {
	if !p.configured || !p.config.resolved() {
		return ErrUnconfigured
	}

	ctx, span := p.tracer.StartSpan(ctx, SpanPipelineRun)
	defer span.Finish()

	queue := newBoundedQueue[T](p.config.Queue)
	done := NewDoneFlag()
	breaker := NewBreaker().WithClock(p.clock)

	var wg sync.WaitGroup
	wg.Add(1 + p.config.Processes)

	go p.acquireEntry(ctx, &wg, queue, done, breaker)
	for i := 0; i < p.config.Processes; i++ {
		go p.workEntry(ctx, &wg, i, queue, done, breaker)
	}

	wg.Wait()

	if reason, err := breaker.ConsumeReason(); err == nil {
		span.SetTag(TagSuccess, "false")
		capitan.Error(ctx, SignalPipelineAborted, FieldReason.Field(formatReason(reason)))
		return &BreakerTripped{Reason: reason}
	}

	span.SetTag(TagSuccess, "true")
	return nil
}

// runHookSafe invokes an optional, nil-safe hook, recovering any panic into
// an error.
func runHookSafe(ctx context.Context, label string, hook func(context.Context) error) (err error) {
	if hook == nil {
		return nil
	}
	defer panicsafe.Recover(&err, label)
	return hook(ctx)
}

// runCleanup invokes a cleanup hook (OnAcquireComplete/OnWorkComplete),
// always, logging and swallowing any error or panic it produces. Cleanup
// must never escalate.
func runCleanup(ctx context.Context, label string, hook func(context.Context) error) {
	if err := runHookSafe(ctx, label, hook); err != nil {
		capitan.Error(ctx, SignalCleanupFailed,
			FieldName.Field(label),
			FieldError.Field(err.Error()),
		)
	}
}

func (p *WorkPipeline[T]) acquireEntry(ctx context.Context, wg *sync.WaitGroup, queue *boundedQueue[T], done *DoneFlag, breaker *Breaker) {
	defer wg.Done()
	defer runCleanup(ctx, "acquire-complete", p.handlers.OnAcquireComplete)

	if err := runHookSafe(ctx, "acquire-setup", p.handlers.OnAcquireSetup); err != nil {
		breaker.Trip(ctx, fmt.Sprintf("acquire: tripping breaker due to %v", err))
		return
	}

	capitan.Info(ctx, SignalAcquireStart, FieldName.Field("acquire"))

	distribute := func(dctx context.Context, item T) error {
		for {
			if breaker.IsTripped(defaultGranularity) {
				return &breakerTripping{}
			}
			if queue.TryPut(dctx, item) {
				p.metrics.Gauge(MetricPipelineQueueDepth).Set(float64(queue.Len()))
				return nil
			}
			if dctx.Err() != nil {
				return dctx.Err()
			}
			// timed out with the queue full; loop to re-check the breaker.
		}
	}

	var err error
	func() {
		defer panicsafe.Recover(&err, "acquire-work")
		err = p.handlers.AcquireWork(ctx, distribute)
	}()

	switch {
	case err == nil:
		done.Set()
		capitan.Info(ctx, SignalAcquireDone, FieldName.Field("acquire"))
	case isBreakerTripping(err):
		// Another worker already tripped the breaker; quiet exit.
	default:
		breaker.Trip(ctx, fmt.Sprintf("acquire: tripping breaker due to %v", err))
		capitan.Error(ctx, SignalAcquireFailed,
			FieldName.Field("acquire"),
			FieldError.Field(err.Error()),
		)
	}
}

func (p *WorkPipeline[T]) workEntry(ctx context.Context, wg *sync.WaitGroup, workerID int, queue *boundedQueue[T], done *DoneFlag, breaker *Breaker) {
	defer wg.Done()
	name := Name(fmt.Sprintf("work-%d", workerID))
	ctx = withWorkerIndex(ctx, workerID)
	defer runCleanup(ctx, name+"-complete", p.handlers.OnWorkComplete)

	if err := runHookSafe(ctx, name+"-setup", p.handlers.OnWorkSetup); err != nil {
		breaker.Trip(ctx, fmt.Sprintf("%s: tripping breaker due to %v", name, err))
		return
	}

	capitan.Info(ctx, SignalWorkStart, FieldName.Field(name), FieldWorkerID.Field(workerID))

	perWorkerRate := p.config.Rate / float64(p.config.Processes)
	limiter := NewSmoothRateLimiter(name, perWorkerRate).WithClock(p.clock)
	executor := NewBoundedExecutor[T](name, p.config.Threads, p.config.Threads)

	body := p.workThreadBody(name, breaker, limiter)

	processed := 0

loop:
	for {
		if breaker.IsTripped(defaultGranularity) {
			break loop
		}

		item, ok := queue.TryGet(ctx)
		p.metrics.Gauge(MetricPipelineQueueDepth).Set(float64(queue.Len()))
		if !ok {
			if ctx.Err() != nil {
				break loop
			}
			if done.IsSet() {
				break loop
			}
			continue
		}

		processed++
		if err := executor.Submit(ctx, body, item); err != nil {
			if ctx.Err() != nil {
				break loop
			}
			breaker.Trip(ctx, fmt.Sprintf("%s: tripping breaker due to %v", name, err))
			capitan.Error(ctx, SignalWorkFailed, FieldName.Field(name), FieldError.Field(err.Error()))
			break loop
		}
	}

	executor.Shutdown(true)
	p.metrics.Counter(MetricPipelineProcessed).Add(float64(processed))
	capitan.Info(ctx, SignalWorkDone, FieldName.Field(name), FieldItemCount.Field(processed))
}

// workThreadBody is the per-item body submitted to a work worker's
// BoundedExecutor: re-check the breaker, pace via the local rate limiter,
// re-check the breaker again after the (potentially long) sleep, then
// invoke the user's OnWork hook. A hook failure trips the breaker but is
// never re-raised past this function: the executor worker that ran it goes
// on to its next task.
func (p *WorkPipeline[T]) workThreadBody(name Name, breaker *Breaker, limiter *SmoothRateLimiter) ExecutorFunc[T] {
	return func(ctx context.Context, item T) error {
		if breaker.IsTripped(defaultGranularity) {
			return nil
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		if breaker.IsTripped(defaultGranularity) {
			return nil
		}

		var err error
		func() {
			defer panicsafe.Recover(&err, "on-work")
			err = p.handlers.OnWork(ctx, item)
		}()

		if err != nil {
			breaker.Trip(ctx, fmt.Sprintf("%s: tripping breaker due to %v", name, err))
		}
		return nil
	}
}

type workerIndexKey struct{}

func withWorkerIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, workerIndexKey{}, index)
}

// WorkerIndex returns the 0-based index of the work worker whose goroutine
// is running ctx, and whether one was set. OnWorkSetup, OnWork, and
// OnWorkComplete for a given work worker all observe the same index, which
// makes it possible to build genuinely per-worker resources (e.g. one
// *sql.DB per worker) keyed by index instead of racing on a shared field.
func WorkerIndex(ctx context.Context) (int, bool) {
	index, ok := ctx.Value(workerIndexKey{}).(int)
	return index, ok
}

func isBreakerTripping(err error) bool {
	_, ok := err.(*breakerTripping)
	return ok
}
