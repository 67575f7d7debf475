// Package flowz provides a two-stage parallel work pipeline: a single
// acquisition producer feeding a bounded queue that fans out to a pool of
// work goroutines, each running its own bounded executor, all governed by
// a shared circuit breaker.
//
// # Overview
//
// flowz is built for long-running batch jobs where a large number of items
// must be processed in parallel while preserving fail-fast semantics and
// bounded memory: acquisition is split from the CPU/IO-heavy work stage so
// that a slow or bursty producer never needs to match the work stage's
// concurrency, and any unhandled failure anywhere in the pipeline trips a
// shared breaker that cooperatively drains every other goroutine.
//
// # Core Concepts
//
//   - WorkPipeline[T]: the supervisor. Owns the bounded queue, the done
//     flag, and the breaker; spawns the acquire goroutine and the work
//     goroutines and joins them.
//   - Handlers[T]: the user extension surface (AcquireWork, OnWork required;
//     four setup/complete hooks optional).
//   - Breaker: a one-shot, monotonic abort flag with a single-slot reason,
//     cheaply pollable from every worker goroutine via a cached read.
//   - SmoothRateLimiter: per-worker pacing that never bursts after an idle
//     period.
//   - BoundedExecutor[T]: a fixed-size worker pool with a bounded backlog,
//     providing in-process backpressure.
//   - Accumulator[T]: an optional batching primitive for bulk side effects.
//
// # Usage Example
//
//	handlers := flowz.Handlers[int]{
//	    AcquireWork: func(ctx context.Context, distribute flowz.DistributeFunc[int]) error {
//	        for i := 0; i < 100; i++ {
//	            if err := distribute(ctx, i); err != nil {
//	                return err
//	            }
//	        }
//	        return nil
//	    },
//	    OnWork: func(_ context.Context, item int) error {
//	        fmt.Println(item)
//	        return nil
//	    },
//	}
//
//	pipeline := flowz.NewWorkPipeline(flowz.Config{Processes: 2, Threads: 8, Queue: 64, Rate: 1000}, handlers)
//
//	if err := pipeline.Run(context.Background()); err != nil {
//	    var tripped *flowz.BreakerTripped
//	    if errors.As(err, &tripped) {
//	        log.Printf("pipeline aborted: %v", tripped.Reason)
//	    }
//	}
//
// # Process model
//
// A natural alternative design forks one OS process per acquire/work
// worker, relying on multiprocessing primitives to share the breaker,
// queue, and done flag across the process boundary. flowz instead runs the
// whole pipeline inside a single process using goroutines: the shared
// state becomes ordinary memory guarded by atomics and channels, and the
// breaker's cached poll (to dodge the cost of a cross-boundary check on
// every item) becomes a cached read of a local atomic, cheap regardless
// but retained because it's part of the pipeline's observable contract.
//
// # Observability
//
// Every core component emits structured signals via capitan and counters
// and gauges via metricz. The BoundedExecutor and WorkPipeline also record
// spans via tracez, and the Breaker, SmoothRateLimiter, and BoundedExecutor
// expose typed subscriber hooks via hookz. The Breaker and SmoothRateLimiter
// read time through an injectable clockz.Clock, so their tests run on a fake
// clock; the bounded queue and the file collectors time out on the wall
// clock.
package flowz
