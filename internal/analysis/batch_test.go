package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBatchRunnerRunsAllItems(t *testing.T) {
	runner := NewBatchRunner(BatchOptions{MaxParallel: 2})
	items := []BatchItem{
		{Key: "a", Data: seriesOf(10, 10, 10, 10, 10, 10, 10, 10, 10, 1000)},
		{Key: "b", Data: seriesOf(1, 2)},
		{Key: "c", Data: seriesOf(5, 5, 5, 5, 5, 5)},
	}
	results, err := runner.Run(context.Background(), items, DefaultAnomalyOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results got %d", len(results))
	}
	if results[0].Key != "a" || len(results[0].Report.Anomalies) == 0 {
		t.Fatalf("expected anomalies for a: %+v", results[0])
	}
	if results[1].Err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData for b got %v", results[1].Err)
	}
	if results[2].Err != nil || len(results[2].Report.Anomalies) != 0 {
		t.Fatalf("expected clean result for c: %+v", results[2])
	}
}

func TestBatchRunnerRespectsParallelism(t *testing.T) {
	runner := NewBatchRunner(BatchOptions{MaxParallel: 2})
	var inFlight int32
	var peak int32
	var mu sync.Mutex
	items := make([]BatchItem, 8)
	for i := range items {
		items[i] = BatchItem{Key: "k", Data: seriesOf(1, 2, 3, 4, 5, 6)}
	}
	// wrap the semaphore by observing slot occupancy from a monitor goroutine
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			current := int32(runner.InFlight())
			atomic.StoreInt32(&inFlight, current)
			mu.Lock()
			if current > peak {
				peak = current
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
		}
	}()
	if _, err := runner.Run(context.Background(), items, DefaultAnomalyOptions()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(done)
	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("parallelism exceeded: %d", peak)
	}
}

func TestBatchRunnerMemoryBackpressure(t *testing.T) {
	runner := NewBatchRunner(BatchOptions{MaxParallel: 1, MemoryLimitBytes: 100, PollInterval: time.Millisecond})
	var calls int32
	runner.readMem = func() uint64 {
		if atomic.AddInt32(&calls, 1) < 3 {
			return 200 // above the limit, dispatch must wait
		}
		return 50
	}
	items := []BatchItem{{Key: "a", Data: seriesOf(1, 2, 3, 4, 5, 6)}}
	results, err := runner.Run(context.Background(), items, DefaultAnomalyOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results %+v", results)
	}
	if atomic.LoadInt32(&calls) < 3 {
		t.Fatalf("expected memory polling, got %d reads", calls)
	}
}

func TestBatchRunnerContextCancelled(t *testing.T) {
	runner := NewBatchRunner(BatchOptions{MaxParallel: 1, MemoryLimitBytes: 100, PollInterval: 10 * time.Millisecond})
	runner.readMem = func() uint64 { return 200 }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := []BatchItem{{Key: "a", Data: seriesOf(1, 2, 3, 4, 5, 6)}}
	if _, err := runner.Run(ctx, items, DefaultAnomalyOptions()); err == nil {
		t.Fatalf("expected context error")
	}
}
