package flowz

import (
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Signal constants for flowz pipeline events.
// Signals follow the pattern: <component>.<event>.
const (
	// Breaker signals.
	SignalBreakerTripped capitan.Signal = "breaker.tripped"

	// SmoothRateLimiter signals.
	SignalRateLimiterReport capitan.Signal = "ratelimiter.report"

	// BoundedExecutor signals.
	SignalExecutorSaturated capitan.Signal = "executor.saturated"
	SignalExecutorPanic     capitan.Signal = "executor.panic"

	// Accumulator signals.
	SignalAccumulatorFlushed capitan.Signal = "accumulator.flushed"

	// WorkPipeline signals.
	SignalAcquireStart    capitan.Signal = "pipeline.acquire.start"
	SignalAcquireDone     capitan.Signal = "pipeline.acquire.done"
	SignalAcquireFailed   capitan.Signal = "pipeline.acquire.failed"
	SignalWorkStart       capitan.Signal = "pipeline.work.start"
	SignalWorkDone        capitan.Signal = "pipeline.work.done"
	SignalWorkFailed      capitan.Signal = "pipeline.work.failed"
	SignalCleanupFailed   capitan.Signal = "pipeline.cleanup.failed"
	SignalPipelineAborted capitan.Signal = "pipeline.aborted"

	// FileCollector signals.
	SignalFileCollectorOpenFailed  capitan.Signal = "filecollector.open-failed"
	SignalFileCollectorWriteFailed capitan.Signal = "filecollector.write-failed"
)

// Common field keys using capitan primitive types.
// All keys use primitive types to avoid custom struct serialization.
var (
	// Common fields.
	FieldName      = capitan.NewStringKey("name")       // Component instance name
	FieldError     = capitan.NewStringKey("error")       // Error message
	FieldTimestamp = capitan.NewFloat64Key("timestamp") // Unix timestamp
	FieldReason    = capitan.NewStringKey("reason")      // Breaker trip reason, stringified
	FieldWorkerID  = capitan.NewIntKey("worker_id")      // Work worker index

	// RateLimiter fields.
	FieldRate       = capitan.NewFloat64Key("rate")          // Target calls per second
	FieldMeasured   = capitan.NewFloat64Key("measured_rate") // Measured calls per second
	FieldReportSize = capitan.NewIntKey("report_count")      // Calls since last report

	// Executor fields.
	FieldWorkerCount     = capitan.NewIntKey("worker_count")     // W
	FieldBacklogCapacity = capitan.NewIntKey("backlog_capacity") // W+B
	FieldInFlight        = capitan.NewIntKey("in_flight")        // current permits held

	// Accumulator fields.
	FieldBatchSize = capitan.NewIntKey("batch_size") // items in the dispatched batch

	// Pipeline fields.
	FieldItemCount = capitan.NewIntKey("item_count") // items observed by a worker
)

// Metric keys, one registry per long-lived component instance.
const (
	MetricBreakerTripsTotal      = metricz.Key("flowz.breaker.trips.total")
	MetricRateLimiterWaitSeconds = metricz.Key("flowz.ratelimiter.wait.seconds")
	MetricRateLimiterMeasured    = metricz.Key("flowz.ratelimiter.measured_rate")
	MetricExecutorInFlight       = metricz.Key("flowz.executor.inflight")
	MetricExecutorBacklog        = metricz.Key("flowz.executor.backlog")
	MetricAccumulatorBuffered    = metricz.Key("flowz.accumulator.buffered")
	MetricAccumulatorBatches     = metricz.Key("flowz.accumulator.batches.total")
	MetricPipelineProcessed      = metricz.Key("flowz.pipeline.processed.total")
	MetricPipelineQueueDepth     = metricz.Key("flowz.pipeline.queue.depth")
)

// Trace span keys.
const (
	SpanExecutorSubmit tracez.Key = "flowz.executor.submit"
	SpanExecutorTask   tracez.Key = "flowz.executor.task"
	SpanPipelineRun    tracez.Key = "flowz.pipeline.run"
)

// Trace tags.
const (
	TagName    tracez.Tag = "flowz.name"
	TagError   tracez.Tag = "flowz.error"
	TagSuccess tracez.Tag = "flowz.success"
)

// BreakerEvent is emitted via hookz when the breaker trips.
type BreakerEvent struct {
	Reason any
}

// RateLimiterEvent is emitted via hookz on each periodic rate report.
type RateLimiterEvent struct {
	MeasuredRate float64
	Samples      int
}

// ExecutorEvent is emitted via hookz when the backlog saturates.
type ExecutorEvent struct {
	InFlight int
	Capacity int
}

// Hook event keys.
const (
	HookBreakerTripped    = hookz.Key("breaker.tripped")
	HookRateLimiterReport = hookz.Key("ratelimiter.report")
	HookExecutorSaturated = hookz.Key("executor.saturated")
)
