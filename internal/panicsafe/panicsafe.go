// Package panicsafe recovers panics at goroutine boundaries and converts
// them into ordinary errors, so a single bad user hook cannot take down a
// worker goroutine without going through the breaker's normal trip path.
package panicsafe

import "fmt"

// Recover must be called via defer. If the deferred function's stack is
// unwinding from a panic, it stores a descriptive error into *errp (wrapping
// any existing *errp so a panic during error-path cleanup isn't lost) and
// stops the unwind. name identifies the owning component for the error
// message; it carries no other meaning here.
func Recover(errp *error, name string) {
	r := recover()
	if r == nil {
		return
	}
	if existing := *errp; existing != nil {
		*errp = fmt.Errorf("%s: panic: %v (after error: %w)", name, r, existing)
		return
	}
	*errp = fmt.Errorf("%s: panic: %v", name, r)
}
