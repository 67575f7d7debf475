package flowz

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFileCollector_WritesCollectedLinesInFIFOOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	fc := NewFileCollector("test", path, 16, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)

	if err := fc.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fc.Collect("first\n")
	fc.Collect("second\n")
	fc.Collect("third\n")
	fc.Stop()
	fc.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := string(data), "first\nsecond\nthird\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFileCollector_ConcurrentCollectNeverCorruptsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	fc := NewFileCollector("test", path, 64, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err := fc.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			fc.Collect(strings.Repeat("x", 1) + "\n")
			_ = n
		}(i)
	}
	wg.Wait()
	fc.Stop()
	fc.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 50 {
		t.Errorf("expected 50 lines, got %d", len(lines))
	}
}

func TestFileCollector_OpenFailureIsReported(t *testing.T) {
	fc := NewFileCollector("test", filepath.Join(t.TempDir(), "missing-dir", "out.txt"), 4, os.O_CREATE|os.O_WRONLY)
	if err := fc.Start(context.Background()); err == nil {
		t.Fatal("expected an error opening a path under a missing directory")
	}
}

func TestRecordCollector_RoundTripsStructuredRecords(t *testing.T) {
	type record struct {
		ID   int
		Name string
	}

	path := filepath.Join(t.TempDir(), "records.bin")
	rc := NewRecordCollector[record]("test", path, 16, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err := rc.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []record{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}}
	for _, r := range want {
		rc.Collect(r)
	}
	rc.Stop()
	rc.Wait()

	got, err := ReadRecords[record](path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sort.Slice(got, func(i, j int) bool { return got[i].ID < got[j].ID })
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestFileCollector_StopStillFlushesItemsCollectedBeforeIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	fc := NewFileCollector("test", path, 4, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err := fc.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fc.Collect("queued\n")
	fc.Stop()
	fc.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "queued\n" {
		t.Errorf("expected %q, got %q", "queued\n", string(data))
	}
}

func TestFileCollector_WaitReturnsWithinReasonableTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	fc := NewFileCollector("test", path, 4, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err := fc.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fc.Stop()

	done := make(chan struct{})
	go func() {
		fc.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Wait did not return after Stop with an empty queue")
	}
}
