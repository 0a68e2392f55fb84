package analysis

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// BatchRunner bounds parallel in-flight analyses with a counting semaphore
// and pauses dispatch while process heap usage sits above MemoryLimitBytes.
type BatchRunner struct {
	slots        chan struct{}
	memoryLimit  uint64
	pollInterval time.Duration
	readMem      func() uint64
}

type BatchOptions struct {
	MaxParallel      int
	MemoryLimitBytes uint64
	PollInterval     time.Duration
}

type BatchItem struct {
	Key  string
	Data []DataPoint
}

type BatchResult struct {
	Key    string
	Report AnomalyReport
	Err    error
}

func NewBatchRunner(opts BatchOptions) *BatchRunner {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &BatchRunner{
		slots:        make(chan struct{}, opts.MaxParallel),
		memoryLimit:  opts.MemoryLimitBytes,
		pollInterval: opts.PollInterval,
		readMem:      heapInUse,
	}
}

func heapInUse() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapInuse
}

// Run analyzes every item, at most MaxParallel at a time. Results arrive in
// item order. Dispatch stalls while the heap is above the limit.
func (b *BatchRunner) Run(ctx context.Context, items []BatchItem, opts AnomalyOptions) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		if err := b.waitForMemory(ctx); err != nil {
			return nil, err
		}
		select {
		case b.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		wg.Add(1)
		go func(i int, item BatchItem) {
			defer wg.Done()
			defer func() { <-b.slots }()
			report, err := DetectAnomalies(item.Data, opts)
			results[i] = BatchResult{Key: item.Key, Report: report, Err: err}
		}(i, item)
	}
	wg.Wait()
	return results, nil
}

func (b *BatchRunner) waitForMemory(ctx context.Context) error {
	if b.memoryLimit == 0 {
		return nil
	}
	for b.readMem() > b.memoryLimit {
		select {
		case <-time.After(b.pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// InFlight reports how many analyses currently hold a slot.
func (b *BatchRunner) InFlight() int {
	return len(b.slots)
}
