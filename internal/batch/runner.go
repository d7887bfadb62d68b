package batch

import (
	"context"
	"sync"
	"time"

	"reelsmith/internal/services"
)

// Result carries one item's outcome, keyed by its original index.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Failed reports whether the item exhausted its attempts without success.
func (r Result[R]) Failed() bool { return r.Err != nil }

// Summary aggregates a finished batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    []int
	Elapsed   time.Duration
}

// Options tunes a batch run.
type Options struct {
	// Concurrency caps in-flight operations; at no instant does in-flight
	// work exceed it. Defaults to 1.
	Concurrency int
	// Timeout bounds each attempt of each item.
	Timeout time.Duration
	// MaxAttempts and BaseDelay configure the per-item retry policy.
	MaxAttempts int
	BaseDelay   time.Duration
	// RequireFullSuccess escalates any item failure to a batch error.
	// Unused by the default pipeline; composition validates completeness
	// separately.
	RequireFullSuccess bool
	// OnProgress is invoked after each item completes, with the number of
	// completed items so far and that item's result. Called from worker
	// goroutines under a lock, so completed counts arrive monotonically.
	OnProgress func(completed, total int, result any)
	// Sleep overrides backoff waits in tests.
	Sleep func(context.Context, time.Duration) error
}

// Run executes op for every item under the configured cap. Results are
// ordered by item index regardless of completion order. Per-item failures are
// recorded, never propagated, unless RequireFullSuccess is set. The returned
// error is non-nil only for caller cancellation or the full-success escalation.
func Run[T, R any](ctx context.Context, items []T, op func(ctx context.Context, index int, item T) (R, error), opts Options) ([]Result[R], Summary, error) {
	start := time.Now()
	total := len(items)
	results := make([]Result[R], total)
	summary := Summary{Total: total}
	if total == 0 {
		summary.Elapsed = time.Since(start)
		return results, summary, nil
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > total {
		concurrency = total
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	wg.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func() {
			defer wg.Done()
			for idx := range indexes {
				value, err := runItem(ctx, idx, items[idx], op, opts)
				results[idx] = Result[R]{Index: idx, Value: value, Err: err}

				mu.Lock()
				completed++
				if opts.OnProgress != nil {
					opts.OnProgress(completed, total, results[idx])
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for idx := 0; idx < total; idx++ {
		select {
		case <-ctx.Done():
			break feed
		case indexes <- idx:
		}
	}
	close(indexes)
	wg.Wait()

	for idx := range results {
		if results[idx].Err != nil {
			summary.Failed = append(summary.Failed, idx)
		} else {
			summary.Succeeded++
		}
	}
	summary.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return results, summary, err
	}
	if opts.RequireFullSuccess && len(summary.Failed) > 0 {
		return results, summary, services.Wrap(services.ErrUpstream, "", "batch", "one or more items failed", nil)
	}
	return results, summary, nil
}

func runItem[T, R any](ctx context.Context, idx int, item T, op func(ctx context.Context, index int, item T) (R, error), opts Options) (R, error) {
	var value R
	attempt := func(ctx context.Context) error {
		v, err := op(ctx, idx, item)
		if err != nil {
			return err
		}
		value = v
		return nil
	}
	wrapped := WithRetry(WithTimeout(attempt, opts.Timeout), opts.MaxAttempts, opts.BaseDelay, opts.Sleep)
	err := wrapped(ctx)
	return value, err
}
