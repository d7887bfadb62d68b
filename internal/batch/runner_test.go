package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/batch"
	"reelsmith/internal/services"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestRunPreservesOrderingByIndex(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	op := func(ctx context.Context, idx int, item int) (string, error) {
		// Later items finish first.
		time.Sleep(time.Duration(len(items)-idx) * time.Millisecond)
		return fmt.Sprintf("item-%d", item), nil
	}

	results, summary, err := batch.Run(context.Background(), items, op, batch.Options{Concurrency: 4, Sleep: noSleep})
	require.NoError(t, err)
	require.Equal(t, len(items), summary.Succeeded)
	for i, result := range results {
		require.Equal(t, i, result.Index)
		require.Equal(t, fmt.Sprintf("item-%d", i), result.Value)
	}
}

func TestRunNeverExceedsConcurrencyCap(t *testing.T) {
	const cap = 3
	var inFlight, peak int64

	op := func(ctx context.Context, idx int, item int) (struct{}, error) {
		now := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if now <= old || atomic.CompareAndSwapInt64(&peak, old, now) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return struct{}{}, nil
	}

	items := make([]int, 40)
	_, summary, err := batch.Run(context.Background(), items, op, batch.Options{Concurrency: cap, Sleep: noSleep})
	require.NoError(t, err)
	require.Equal(t, 40, summary.Succeeded)
	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(cap))
}

func TestRunRecordsPerItemFailureWithoutAbortingBatch(t *testing.T) {
	var attempts atomic.Int64
	op := func(ctx context.Context, idx int, item int) (string, error) {
		if idx == 1 {
			attempts.Add(1)
			return "", services.Wrap(services.ErrUpstream, "tts", "synthesize", "boom", nil)
		}
		return "ok", nil
	}

	results, summary, err := batch.Run(context.Background(), []int{0, 1, 2}, op, batch.Options{
		Concurrency: 2,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       noSleep,
	})
	require.NoError(t, err, "batch completes despite the failed item")
	require.Equal(t, int64(3), attempts.Load(), "failed item retried to exhaustion")
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, []int{1}, summary.Failed)
	require.True(t, results[1].Failed())
	require.False(t, results[0].Failed())
}

func TestRunRequireFullSuccessEscalates(t *testing.T) {
	op := func(ctx context.Context, idx int, item int) (struct{}, error) {
		if idx == 0 {
			return struct{}{}, services.Wrap(services.ErrUpstream, "", "", "bad", nil)
		}
		return struct{}{}, nil
	}
	_, _, err := batch.Run(context.Background(), []int{0, 1}, op, batch.Options{
		Concurrency:        2,
		MaxAttempts:        1,
		RequireFullSuccess: true,
		Sleep:              noSleep,
	})
	require.ErrorIs(t, err, services.ErrUpstream)
}

func TestRunEmitsMonotonicProgress(t *testing.T) {
	// The callback runs under the runner's lock, so counts must arrive in
	// strict order even with workers racing to completion.
	var seen []int
	op := func(ctx context.Context, idx int, item int) (struct{}, error) {
		return struct{}{}, nil
	}
	_, _, err := batch.Run(context.Background(), make([]int, 64), op, batch.Options{
		Concurrency: 8,
		Sleep:       noSleep,
		OnProgress: func(completed, total int, result any) {
			seen = append(seen, completed)
		},
	})
	require.NoError(t, err)
	require.Len(t, seen, 64)
	for i, completed := range seen {
		require.Equal(t, i+1, completed, "progress counts must arrive in order")
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) error {
		calls++
		return services.Wrap(services.ErrValidation, "script", "segment", "empty", nil)
	}
	err := batch.WithRetry(op, 5, time.Millisecond, noSleep)(context.Background())
	require.ErrorIs(t, err, services.ErrValidation)
	require.Equal(t, 1, calls)
}

func TestWithRetryBacksOffExponentially(t *testing.T) {
	var delays []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	calls := 0
	op := func(ctx context.Context) error {
		calls++
		return services.Wrap(services.ErrUpstream, "", "", "flaky", nil)
	}
	err := batch.WithRetry(op, 3, 10*time.Millisecond, sleep)(context.Background())
	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)
}

func TestWithTimeoutTagsExpiredAttempts(t *testing.T) {
	op := func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}
	err := batch.WithTimeout(op, 5*time.Millisecond)(context.Background())
	require.ErrorIs(t, err, services.ErrTimeout)
	require.True(t, services.Retryable(err))
}

func TestRunHonorsCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	op := func(ctx context.Context, idx int, item int) (struct{}, error) {
		if idx == 0 {
			cancel()
		}
		return struct{}{}, nil
	}
	_, _, err := batch.Run(ctx, make([]int, 100), op, batch.Options{Concurrency: 1, Sleep: noSleep})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunEmptyBatch(t *testing.T) {
	results, summary, err := batch.Run(context.Background(), nil, func(ctx context.Context, idx int, item int) (struct{}, error) {
		return struct{}{}, errors.New("never called")
	}, batch.Options{})
	require.NoError(t, err)
	require.Empty(t, results)
	require.Zero(t, summary.Total)
}
