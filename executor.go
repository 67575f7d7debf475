package flowz

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"

	"github.com/zoobzio/flowz/internal/panicsafe"
)

// ExecutorFunc is the unit of work submitted to a BoundedExecutor.
type ExecutorFunc[T any] func(ctx context.Context, item T) error

type executorTask[T any] struct {
	ctx  context.Context
	fn   ExecutorFunc[T]
	item T
}

// BoundedExecutor is a fixed-size goroutine pool whose Submit call blocks
// once the backlog threshold is reached, providing in-process
// backpressure. It owns W persistent worker goroutines draining a jobs
// channel and a counting semaphore of capacity W+B that bounds
// (in-flight + queued-but-not-started) tasks at all times.
type BoundedExecutor[T any] struct {
	sem     chan struct{}
	jobs    chan executorTask[T]
	wg      sync.WaitGroup
	name    Name
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[ExecutorEvent]

	closeOnce sync.Once
	closed    chan struct{}
}

// NewBoundedExecutor starts w persistent worker goroutines draining a
// buffered jobs channel of size b. The semaphore bounding Submit has
// capacity w+b, matching spec: in-flight plus queued-but-not-started never
// exceeds W+B.
func NewBoundedExecutor[T any](name Name, w, b int) *BoundedExecutor[T] {
	if w < 1 {
		w = 1
	}
	if b < 0 {
		b = 0
	}

	metrics := metricz.New()
	metrics.Gauge(MetricExecutorInFlight)
	metrics.Gauge(MetricExecutorBacklog)

	e := &BoundedExecutor[T]{
		name:    name,
		sem:     make(chan struct{}, w+b),
		jobs:    make(chan executorTask[T], b),
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[ExecutorEvent](),
		closed:  make(chan struct{}),
	}

	for i := 0; i < w; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	return e
}

// Hooks exposes the executor's hookz registry so callers can subscribe to
// backlog saturation without touching pipeline internals.
func (e *BoundedExecutor[T]) Hooks() *hookz.Hooks[ExecutorEvent] {
	return e.hooks
}

func (e *BoundedExecutor[T]) worker() {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.jobs:
			e.runTask(task)
		case <-e.closed:
			e.drain()
			return
		}
	}
}

// drain runs any tasks that were already queued before Shutdown closed
// e.closed. The jobs channel itself is never closed, so Submit can safely
// check e.closed without racing a send on a closed channel.
func (e *BoundedExecutor[T]) drain() {
	for {
		select {
		case task := <-e.jobs:
			e.runTask(task)
		default:
			return
		}
	}
}

func (e *BoundedExecutor[T]) runTask(task executorTask[T]) {
	defer func() { <-e.sem }()
	e.metrics.Gauge(MetricExecutorInFlight).Set(float64(len(e.sem)))

	ctx, span := e.tracer.StartSpan(task.ctx, SpanExecutorTask)
	span.SetTag(TagName, string(e.name))
	defer span.Finish()

	var err error
	func() {
		defer panicsafe.Recover(&err, string(e.name))
		err = task.fn(ctx, task.item)
	}()

	if err != nil {
		span.SetTag(TagSuccess, "false")
		span.SetTag(TagError, err.Error())
		capitan.Error(ctx, SignalExecutorPanic,
			FieldName.Field(string(e.name)),
			FieldError.Field(err.Error()),
		)
		return
	}
	span.SetTag(TagSuccess, "true")
}

// Submit acquires one permit from the W+B capacity semaphore (blocking on
// ctx as well, for clean cancellation), then hands the task to the worker
// pool. The permit is released exactly once, by the worker that runs the
// task, whether it succeeds, fails, or panics.
func (e *BoundedExecutor[T]) Submit(ctx context.Context, fn ExecutorFunc[T], item T) error {
	_, span := e.tracer.StartSpan(ctx, SpanExecutorSubmit)
	defer span.Finish()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closed:
		return errExecutorClosed
	}

	if len(e.sem) == cap(e.sem) {
		capitan.Warn(ctx, SignalExecutorSaturated,
			FieldName.Field(string(e.name)),
			FieldBacklogCapacity.Field(cap(e.sem)),
			FieldInFlight.Field(len(e.sem)),
		)
		_ = e.hooks.Emit(ctx, HookExecutorSaturated, ExecutorEvent{ //nolint:errcheck
			InFlight: len(e.sem),
			Capacity: cap(e.sem),
		})
	}
	e.metrics.Gauge(MetricExecutorBacklog).Set(float64(len(e.jobs)))

	select {
	case e.jobs <- executorTask[T]{ctx: ctx, fn: fn, item: item}:
		return nil
	case <-ctx.Done():
		<-e.sem // release the permit we just took; handoff never happened
		return ctx.Err()
	case <-e.closed:
		<-e.sem
		return errExecutorClosed
	}
}

// Shutdown refuses new submissions. If wait is true, it blocks until every
// in-flight and queued task has run to completion. Safe to call more than
// once.
func (e *BoundedExecutor[T]) Shutdown(wait bool) {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
	if wait {
		e.wg.Wait()
	}
}

var errExecutorClosed = &executorClosedError{}

type executorClosedError struct{}

func (*executorClosedError) Error() string { return "flowz: executor is shut down" }
