package flowz

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-microbatch"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
)

// Accumulator coalesces many small Add calls from many goroutines into
// batches of size threshold, handing each full batch to onProcess. Calling
// Flush at shutdown dispatches whatever is left in the buffer, even if it
// never reached threshold; every item Added eventually appears in exactly
// one batch provided Flush runs before teardown.
//
// Batching itself is delegated to a microbatch.Batcher[T], swapped out for a
// fresh one under a lock on every Flush: the lock no longer guards a slice,
// it guards which Batcher instance is live, but the "swap the buffer atomically
// and let the old one finish independently" shape is the same.
type Accumulator[T any] struct {
	mu        sync.RWMutex
	name      Name
	threshold int
	serial    bool
	onProcess func([]T)
	metrics   *metricz.Registry
	buffered  atomic.Int64
	batcher   *microbatch.Batcher[T]
}

// NewAccumulator creates an Accumulator with the given batch threshold. If
// serial is true, calls to onProcess are fully serialized, guaranteeing
// one-at-a-time execution at the cost of concurrency; if false, multiple
// onProcess calls may run concurrently.
func NewAccumulator[T any](name Name, threshold int, serial bool, onProcess func([]T)) *Accumulator[T] {
	if threshold < 1 {
		threshold = 1
	}

	metrics := metricz.New()
	metrics.Gauge(MetricAccumulatorBuffered)
	metrics.Counter(MetricAccumulatorBatches)

	a := &Accumulator[T]{
		name:      name,
		threshold: threshold,
		serial:    serial,
		onProcess: onProcess,
		metrics:   metrics,
	}
	a.batcher = a.newBatcher()
	return a
}

// newBatcher builds a Batcher sized to threshold with time-based flushing
// disabled: flowz only flushes on threshold or on an explicit Flush, never
// on a timer, so a partial batch never moves until Flush says so.
func (a *Accumulator[T]) newBatcher() *microbatch.Batcher[T] {
	concurrency := -1 // unlimited unless serial
	if a.serial {
		concurrency = 1
	}
	return microbatch.NewBatcher[T](&microbatch.BatcherConfig{
		MaxSize:        a.threshold,
		FlushInterval:  -1,
		MaxConcurrency: concurrency,
	}, a.runBatch)
}

func (a *Accumulator[T]) runBatch(ctx context.Context, batch []T) error {
	a.buffered.Add(-int64(len(batch)))
	a.metrics.Gauge(MetricAccumulatorBuffered).Set(float64(a.buffered.Load()))
	a.metrics.Counter(MetricAccumulatorBatches).Inc()
	capitan.Info(ctx, SignalAccumulatorFlushed,
		FieldName.Field(string(a.name)),
		FieldBatchSize.Field(len(batch)),
	)
	a.onProcess(batch)
	return nil
}

// Add hands x to the current Batcher. Once threshold items have
// accumulated, the full batch is handed to onProcess on a Batcher-owned
// goroutine; Add itself never blocks on onProcess.
func (a *Accumulator[T]) Add(ctx context.Context, x T) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, err := a.batcher.Submit(ctx, x); err != nil {
		return
	}
	a.buffered.Add(1)
	a.metrics.Gauge(MetricAccumulatorBuffered).Set(float64(a.buffered.Load()))
}

// Flush swaps in a fresh Batcher and shuts down the old one, which forces
// out whatever partial batch it was holding (ignoring threshold) and blocks
// until onProcess has returned for every batch that Batcher ever started,
// including ones triggered earlier by threshold. Must be called before
// teardown to avoid losing a partial batch. A no-op if nothing was ever
// added to the outgoing Batcher.
func (a *Accumulator[T]) Flush(ctx context.Context) {
	a.mu.Lock()
	old := a.batcher
	a.batcher = a.newBatcher()
	a.mu.Unlock()

	_ = old.Shutdown(ctx)
}

// Close permanently shuts down the Accumulator, flushing any remaining
// partial batch first. Named to match the Batcher.Close/Shutdown
// convention this component is built on; unlike Flush, the Accumulator
// must not be used again afterward.
func (a *Accumulator[T]) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.batcher.Close()
}

// Shutdown is Close with a deadline: it flushes any remaining partial
// batch, waiting up to ctx for onProcess to finish, and forces an
// immediate close if ctx expires first.
func (a *Accumulator[T]) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.batcher.Shutdown(ctx)
}
