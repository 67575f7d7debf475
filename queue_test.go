package flowz

import (
	"context"
	"testing"
	"time"
)

func TestBoundedQueue_PutGetRoundTrip(t *testing.T) {
	q := newBoundedQueue[int](4)
	ctx := context.Background()

	if !q.TryPut(ctx, 7) {
		t.Fatal("TryPut failed on empty queue")
	}
	item, ok := q.TryGet(ctx)
	if !ok {
		t.Fatal("TryGet failed on non-empty queue")
	}
	if item != 7 {
		t.Errorf("expected 7, got %d", item)
	}
}

func TestBoundedQueue_LenAndCap(t *testing.T) {
	q := newBoundedQueue[int](3)
	if q.Cap() != 3 {
		t.Errorf("expected cap 3, got %d", q.Cap())
	}
	if q.Len() != 0 {
		t.Errorf("expected len 0, got %d", q.Len())
	}

	if !q.TryPut(context.Background(), 1) {
		t.Fatal("TryPut failed")
	}
	if q.Len() != 1 {
		t.Errorf("expected len 1, got %d", q.Len())
	}
}

func TestBoundedQueue_TryGetTimesOutWhenEmpty(t *testing.T) {
	q := newBoundedQueue[int](1)

	start := time.Now()
	_, ok := q.TryGet(context.Background())
	elapsed := time.Since(start)

	if ok {
		t.Fatal("expected TryGet to time out on an empty queue")
	}
	if elapsed < enqueuePollInterval {
		t.Errorf("expected elapsed >= %s, got %s", enqueuePollInterval, elapsed)
	}
}

func TestBoundedQueue_TryPutTimesOutWhenFull(t *testing.T) {
	q := newBoundedQueue[int](1)
	ctx := context.Background()
	if !q.TryPut(ctx, 1) {
		t.Fatal("TryPut failed on empty queue")
	}

	start := time.Now()
	ok := q.TryPut(ctx, 2)
	elapsed := time.Since(start)

	if ok {
		t.Fatal("expected TryPut to time out on a full queue")
	}
	if elapsed < enqueuePollInterval {
		t.Errorf("expected elapsed >= %s, got %s", enqueuePollInterval, elapsed)
	}
}

func TestBoundedQueue_ContextCancelEndsWaitEarly(t *testing.T) {
	q := newBoundedQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, ok := q.TryGet(ctx)
	elapsed := time.Since(start)

	if ok {
		t.Fatal("expected TryGet to fail after ctx cancel")
	}
	if elapsed >= enqueuePollInterval {
		t.Errorf("expected ctx cancel to end the wait early, elapsed %s", elapsed)
	}
}

func TestBoundedQueue_MinimumCapacityOne(t *testing.T) {
	q := newBoundedQueue[int](0)
	if q.Cap() != 1 {
		t.Errorf("expected cap clamped to 1, got %d", q.Cap())
	}
}
