package flowz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// defaultGranularity is the default staleness tolerated on a cached
// Breaker.IsTripped poll.
const defaultGranularity = 100 * time.Millisecond

// Breaker is a cross-goroutine, one-shot abort flag with a single-writer-
// wins reason. Any goroutine may call Trip; every goroutine is expected to
// poll IsTripped cheaply and often. Once tripped, it never un-trips.
//
// Breaker must be created once per pipeline run and shared by reference;
// copying a Breaker after use is not meaningful because its internal state
// (atomics, the reason channel) would no longer be observed by the copies.
type Breaker struct {
	reason chan any

	tripped      atomic.Bool
	cachedTrue   atomic.Bool
	lastRefresh  atomic.Int64 // unix nanoseconds, read via clock
	clock        clockz.Clock
	metrics      *metricz.Registry
	hooks        *hookz.Hooks[BreakerEvent]
	tripOnce     sync.Once
}

// NewBreaker constructs an untripped Breaker.
func NewBreaker() *Breaker {
	b := &Breaker{
		reason:  make(chan any, 1),
		clock:   clockz.RealClock,
		metrics: metricz.New(),
		hooks:   hookz.New[BreakerEvent](),
	}
	b.metrics.Counter(MetricBreakerTripsTotal)
	return b
}

// WithClock installs a custom clock, primarily for deterministic tests via
// clockz.NewFakeClock().
func (b *Breaker) WithClock(clock clockz.Clock) *Breaker {
	b.clock = clock
	return b
}

// Hooks exposes the breaker's hookz registry so callers can subscribe to
// trip events without touching pipeline internals.
func (b *Breaker) Hooks() *hookz.Hooks[BreakerEvent] {
	return b.hooks
}

// Trip attempts to publish reason into the single-slot reason channel; if
// the slot is already filled, the attempt is silently dropped. Regardless,
// the tripped flag is set. Trip never fails observably and is safe to call
// from any number of goroutines concurrently.
func (b *Breaker) Trip(ctx context.Context, reason any) {
	published := false
	select {
	case b.reason <- reason:
		published = true
	default:
	}

	b.tripped.Store(true)
	b.cachedTrue.Store(true)

	if !published {
		return
	}

	b.tripOnce.Do(func() {
		b.metrics.Counter(MetricBreakerTripsTotal).Inc()
		capitan.Error(ctx, SignalBreakerTripped,
			FieldReason.Field(formatReason(reason)),
			FieldTimestamp.Field(float64(b.clock.Now().Unix())),
		)
		_ = b.hooks.Emit(ctx, HookBreakerTripped, BreakerEvent{Reason: reason}) //nolint:errcheck
	})
}

// IsTripped reports whether the breaker has been tripped. While the breaker
// is untripped, it re-reads the tripped flag at most every granularity and
// otherwise answers from its cached value; granularity <= 0 forces a fresh
// read. Trip sets the cached value directly, so a trip is observed on the
// very next call. The cache is monotonic: once it observes true, it never
// reports false again, even mid-refresh.
func (b *Breaker) IsTripped(granularity time.Duration) bool {
	if b.cachedTrue.Load() {
		return true
	}

	if granularity <= 0 {
		return b.refresh()
	}

	last := b.lastRefresh.Load()
	now := b.clock.Now().UnixNano()
	if last != 0 && time.Duration(now-last) < granularity {
		return b.cachedTrue.Load()
	}

	return b.refresh()
}

func (b *Breaker) refresh() bool {
	b.lastRefresh.Store(b.clock.Now().UnixNano())
	tripped := b.tripped.Load()
	if tripped {
		b.cachedTrue.Store(true)
	}
	return tripped
}

// ConsumeReason removes and returns the single published reason. It fails
// with ErrNotTripped if no reason was ever published. Intended to be
// called exactly once by the supervisor, after every worker has joined.
func (b *Breaker) ConsumeReason() (any, error) {
	select {
	case reason := <-b.reason:
		return reason, nil
	default:
		return nil, ErrNotTripped
	}
}
