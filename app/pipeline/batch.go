package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// RunStats are the counters of one invocation. They are never persisted.
type RunStats struct {
	Processed  int `json:"processed"`
	Saved      int `json:"saved"`
	Errors     int `json:"errors"`
	Skipped    int `json:"skipped"`
	FeedErrors int `json:"feedErrors"`
}

func (s *RunStats) record(err error) {
	s.Processed++
	switch {
	case err == nil:
		s.Saved++
	case errors.Is(err, ErrAlreadyProcessed):
		s.Skipped++
	default:
		s.Errors++
	}
}

// RunBatches feeds items to fn in sequential batches of batchSize. Inside a
// batch at most maxConcurrency calls are in flight, and the whole batch is
// awaited before the next one starts. A failing or panicking call is
// counted and never stops the run.
func RunBatches[T any](ctx context.Context, items []T, batchSize, maxConcurrency int, fn func(context.Context, T) error) RunStats {
	batchSize = max(batchSize, 1)
	maxConcurrency = max(maxConcurrency, 1)

	var (
		stats RunStats
		mu    sync.Mutex
	)
	sem := semaphore.NewWeighted(int64(maxConcurrency))

	for start := 0; start < len(items); start += batchSize {
		batch := items[start:min(start+batchSize, len(items))]

		var wg sync.WaitGroup
		for _, item := range batch {
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				stats.record(err)
				mu.Unlock()
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)

				err := safeCall(ctx, item, fn)

				mu.Lock()
				stats.record(err)
				mu.Unlock()
			}()
		}
		wg.Wait()

		slog.Debug("Batch completed", "offset", start, "size", len(batch))
	}

	return stats
}

func safeCall[T any](ctx context.Context, item T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Item processing panicked", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
