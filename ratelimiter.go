package flowz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// defaultReportInterval is how often SmoothRateLimiter logs its measured
// instantaneous rate.
const defaultReportInterval = 5 * time.Second

// SmoothRateLimiter paces a call site to approximately rate calls per
// second without bursting after an idle period. Unlike a token bucket, it
// never lets unused capacity accumulate: each Wait call is spaced from the
// previous one by at least 1/rate, full stop.
//
// A SmoothRateLimiter is per-worker state; WorkPipeline constructs one per
// work worker at rate/P so the configured global rate R is approximated
// across all P workers combined.
type SmoothRateLimiter struct {
	mu                sync.Mutex
	clock             clockz.Clock
	name              Name
	lastRelease       time.Time
	delay             time.Duration
	reportInterval    time.Duration
	reportCount       int
	reportWindowStart time.Time
	metrics           *metricz.Registry
	hooks             *hookz.Hooks[RateLimiterEvent]
}

// NewSmoothRateLimiter creates a limiter targeting ratePerSecond calls per
// second. A non-positive rate disables pacing: Wait returns immediately.
func NewSmoothRateLimiter(name Name, ratePerSecond float64) *SmoothRateLimiter {
	clock := clockz.RealClock
	var delay time.Duration
	if ratePerSecond > 0 {
		delay = time.Duration(float64(time.Second) / ratePerSecond)
	}

	metrics := metricz.New()
	metrics.Gauge(MetricRateLimiterMeasured)

	return &SmoothRateLimiter{
		name:              name,
		clock:             clock,
		delay:             delay,
		reportInterval:    defaultReportInterval,
		reportWindowStart: clock.Now(),
		metrics:           metrics,
		hooks:             hookz.New[RateLimiterEvent](),
	}
}

// WithClock installs a custom clock, primarily for deterministic tests.
func (r *SmoothRateLimiter) WithClock(clock clockz.Clock) *SmoothRateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
	r.reportWindowStart = clock.Now()
	return r
}

// WithReportInterval overrides the default 5s reporting window.
func (r *SmoothRateLimiter) WithReportInterval(d time.Duration) *SmoothRateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reportInterval = d
	return r
}

// Hooks exposes the limiter's hookz registry for subscribing to periodic
// rate reports.
func (r *SmoothRateLimiter) Hooks() *hookz.Hooks[RateLimiterEvent] {
	return r.hooks
}

// Wait blocks the caller until it is this call's turn to proceed, spacing
// successive returns by at least the configured delay. It holds a mutex
// while it computes and pre-commits this call's release time, then releases
// the mutex before sleeping; because each release time is committed under
// the mutex, pacing is serialized across every concurrent caller sharing
// this limiter.
func (r *SmoothRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()

	if r.delay <= 0 {
		r.mu.Unlock()
		return nil
	}

	now := r.clock.Now()
	var remaining time.Duration
	if !r.lastRelease.IsZero() {
		remaining = r.delay - now.Sub(r.lastRelease)
	}
	if remaining < 0 {
		remaining = 0
	}

	// Pre-commit last_release before sleeping, to prevent drift from
	// accumulating due to scheduler overshoot on the sleep itself.
	r.lastRelease = now.Add(remaining)
	r.reportCount++
	r.maybeReport(ctx)

	if remaining == 0 {
		r.mu.Unlock()
		return nil
	}

	clock := r.clock
	r.mu.Unlock()

	select {
	case <-clock.After(remaining):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// maybeReport logs the measured instantaneous rate once reportInterval has
// elapsed, then resets the window. Must be called with mu held. Purely
// observational: it never affects pacing.
func (r *SmoothRateLimiter) maybeReport(ctx context.Context) {
	elapsed := r.clock.Now().Sub(r.reportWindowStart)
	if elapsed < r.reportInterval {
		return
	}

	measured := float64(r.reportCount) / elapsed.Seconds()
	r.metrics.Gauge(MetricRateLimiterMeasured).Set(measured)

	capitan.Info(ctx, SignalRateLimiterReport,
		FieldName.Field(string(r.name)),
		FieldMeasured.Field(measured),
		FieldReportSize.Field(r.reportCount),
		FieldTimestamp.Field(float64(r.clock.Now().Unix())),
	)
	_ = r.hooks.Emit(ctx, HookRateLimiterReport, RateLimiterEvent{ //nolint:errcheck
		MeasuredRate: measured,
		Samples:      r.reportCount,
	})

	r.reportCount = 0
	r.reportWindowStart = r.clock.Now()
}

// Name returns the limiter's instance name.
func (r *SmoothRateLimiter) Name() Name {
	return r.name
}
