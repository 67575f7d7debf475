package flowz

import (
	"errors"
	"fmt"
)

// ErrNotTripped is returned by Breaker.ConsumeReason when no trip has ever
// occurred.
var ErrNotTripped = errors.New("flowz: breaker not tripped")

// ErrUnconfigured is returned by WorkPipeline.Run when the pipeline's
// Config was never resolved, i.e. NewWorkPipeline was never called on it.
var ErrUnconfigured = errors.New("flowz: pipeline unconfigured")

// breakerTripping is raised internally while a worker is already unwinding
// because the breaker was observed tripped. It is always caught by the
// owning goroutine and converted to a quiet exit; it must never reach the
// caller of Run.
type breakerTripping struct {
	cause error
}

func (e *breakerTripping) Error() string {
	if e.cause == nil {
		return "flowz: breaker tripping"
	}
	return "flowz: breaker tripping: " + e.cause.Error()
}

func (e *breakerTripping) Unwrap() error { return e.cause }

// BreakerTripped is the single terminal error surfaced from
// WorkPipeline.Run when any worker trips the breaker. Reason is whatever
// value the first failing site published to Breaker.Trip.
type BreakerTripped struct {
	Reason any
}

func (e *BreakerTripped) Error() string {
	return "flowz: breaker tripped: " + formatReason(e.Reason)
}

func formatReason(reason any) string {
	switch v := reason.(type) {
	case nil:
		return "<no reason>"
	case error:
		return v.Error()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
