package bulk

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Operation represents a bulk operation configuration
type Operation struct {
	Jobs            int
	ContinueOnError bool
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Errors     []ItemError
}

// ItemError represents an error for a specific item
type ItemError struct {
	Index int
	Item  string
	Error error
}

// ItemFunc is the function to execute for the item at index i
type ItemFunc func(ctx context.Context, i int) error

// Execute runs fn for every item. items name each unit of work for error
// reporting; fn receives the item's index.
func (op *Operation) Execute(ctx context.Context, items []string, fn ItemFunc) *Result {
	if len(items) == 0 {
		return &Result{}
	}

	// Auto-detect CPU count if jobs == 0
	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	if jobs == 1 {
		return op.executeSequential(ctx, items, fn)
	}

	return op.executeParallel(ctx, items, fn, jobs)
}

func (op *Operation) executeSequential(ctx context.Context, items []string, fn ItemFunc) *Result {
	result := &Result{
		TotalItems: len(items),
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Index: i, Item: item, Error: err})
			return result
		}

		if err := fn(ctx, i); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Index: i, Item: item, Error: err})
			if !op.ContinueOnError {
				return result
			}
			continue
		}
		result.Succeeded++
	}

	return result
}

// executeParallel processes items with at most workers goroutines in flight.
// Errors are reported in item order regardless of completion order.
func (op *Operation) executeParallel(ctx context.Context, items []string, fn ItemFunc, workers int) *Result {
	result := &Result{
		TotalItems: len(items),
	}

	var (
		succeeded  int32
		stopSignal int32
		errorsMux  sync.Mutex
		itemErrs   = make([]error, len(items))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range items {
		if !op.ContinueOnError && atomic.LoadInt32(&stopSignal) == 1 {
			break
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if !op.ContinueOnError && atomic.LoadInt32(&stopSignal) == 1 {
				return nil
			}
			if err := fn(gctx, i); err != nil {
				errorsMux.Lock()
				itemErrs[i] = err
				errorsMux.Unlock()
				if !op.ContinueOnError {
					atomic.StoreInt32(&stopSignal, 1)
				}
				return nil
			}
			atomic.AddInt32(&succeeded, 1)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range itemErrs {
		if err != nil {
			result.Errors = append(result.Errors, ItemError{Index: i, Item: items[i], Error: err})
		}
	}
	result.Succeeded = int(succeeded)
	result.Failed = len(result.Errors)

	return result
}
