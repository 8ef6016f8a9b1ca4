// Package batch fans one operation out across many items, typically the
// services of a project, with bounded concurrency and partial-failure
// aggregation.
//
// The executor is the only place in vaulter that introduces explicit
// concurrency. There is no mid-batch cancellation signal: StopOnError only
// prevents new dispatch, it never interrupts in-flight items.
package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forattini-dev/vaulter-sub005/internal/metrics"
)

// ErrSkipped marks items that were never dispatched because StopOnError
// halted scheduling after an earlier failure.
var ErrSkipped = errors.New("skipped: batch stopped on earlier error")

// Options controls one batch run.
type Options struct {
	// StopOnError stops scheduling new items once the first failure is
	// observed. Already-dispatched operations are allowed to finish.
	StopOnError bool
}

// ItemResult records the outcome of one item.
type ItemResult[T any] struct {
	Item     T
	Err      error
	Duration time.Duration
}

// Result aggregates a whole batch. It is always returned, never thrown away:
// per-item failures live in Operations.
type Result[T any] struct {
	Total      int
	Successful int
	Failed     int
	Skipped    int
	Operations []ItemResult[T]
}

// Run executes op for every item. With concurrency <= 1 execution is
// strictly sequential in input order. Otherwise a bounded worker pool keeps
// at most concurrency operations in flight; completion order is not
// guaranteed, but Operations preserves one entry per input item in input
// order regardless.
//
// Panics inside op are not recovered; op implementations are expected to
// return errors.
func Run[T any](ctx context.Context, items []T, concurrency int, op func(context.Context, T) error, opts Options) Result[T] {
	result := Result[T]{
		Total:      len(items),
		Operations: make([]ItemResult[T], len(items)),
	}

	if concurrency <= 1 {
		runSequential(ctx, items, op, opts, &result)
	} else {
		runBounded(ctx, items, concurrency, op, opts, &result)
	}

	for _, ir := range result.Operations {
		switch {
		case errors.Is(ir.Err, ErrSkipped):
			result.Skipped++
		case ir.Err != nil:
			result.Failed++
			metrics.RecordBatchItem("failed", ir.Duration)
		default:
			result.Successful++
			metrics.RecordBatchItem("success", ir.Duration)
		}
	}

	return result
}

func runSequential[T any](ctx context.Context, items []T, op func(context.Context, T) error, opts Options, result *Result[T]) {
	failed := false
	for i, item := range items {
		if failed && opts.StopOnError {
			result.Operations[i] = ItemResult[T]{Item: item, Err: ErrSkipped}
			continue
		}

		started := time.Now()
		err := op(ctx, item)
		result.Operations[i] = ItemResult[T]{Item: item, Err: err, Duration: time.Since(started)}
		if err != nil {
			failed = true
		}
	}
}

func runBounded[T any](ctx context.Context, items []T, concurrency int, op func(context.Context, T) error, opts Options, result *Result[T]) {
	var (
		wg        sync.WaitGroup
		failed    atomic.Bool
		semaphore = make(chan struct{}, concurrency)
	)

	for i, item := range items {
		// The semaphore bounds in-flight work; the flag check happens at
		// dispatch time, so a failure only suppresses not-yet-started items.
		if opts.StopOnError && failed.Load() {
			result.Operations[i] = ItemResult[T]{Item: item, Err: ErrSkipped}
			continue
		}

		semaphore <- struct{}{}
		wg.Add(1)
		go func(idx int, it T) {
			defer wg.Done()
			defer func() { <-semaphore }()

			started := time.Now()
			err := op(ctx, it)
			result.Operations[idx] = ItemResult[T]{Item: it, Err: err, Duration: time.Since(started)}
			if err != nil {
				failed.Store(true)
			}
		}(i, item)
	}

	wg.Wait()
}
