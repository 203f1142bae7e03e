package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// IndexedError ties a task failure back to its input position
type IndexedError struct {
	Index int
	Err   error
}

// batchRunner drives index-based tasks in fixed-size concurrent batches with
// a delay between batches to respect upstream rate limits. A task failure is
// collected, never fatal.
type batchRunner struct {
	pool      *ants.Pool
	batchSize int
	delay     time.Duration
	logger    *slog.Logger
}

// Run executes task for every index in [0, total). Within a batch all tasks
// run concurrently; batches run strictly in sequence. Returns the collected
// failures in no particular order.
func (b *batchRunner) Run(ctx context.Context, total int, task func(index int) error) []IndexedError {
	var (
		mu     sync.Mutex
		failed []IndexedError
	)

	record := func(index int, err error) {
		mu.Lock()
		failed = append(failed, IndexedError{Index: index, Err: err})
		mu.Unlock()
	}

	for start := 0; start < total; start += b.batchSize {
		if ctx.Err() != nil {
			b.logger.Warn("batch run cancelled", "completed", start, "total", total)
			return failed
		}

		end := start + b.batchSize
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for index := start; index < end; index++ {
			index := index
			wg.Add(1)
			run := func() {
				defer wg.Done()
				if err := task(index); err != nil {
					record(index, err)
				}
			}
			if err := b.pool.Submit(run); err != nil {
				// Pool exhaustion falls back to inline execution rather than
				// dropping the transaction.
				run()
			}
		}
		wg.Wait()

		if end < total && b.delay > 0 {
			time.Sleep(b.delay)
		}
	}

	return failed
}
