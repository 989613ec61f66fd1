// Package batch provides the generic chunked executor and the retry policy
// shared by the extraction and publish stages.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDelay is the inter-chunk pause used when a stage does not set its
// own. Sized for external APIs that meter by the minute.
const DefaultDelay = 90 * time.Second

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Failure pairs a failed input with the error that sank it.
type Failure[I any] struct {
	Input I
	Err   error
}

// Result partitions a batch run into successes and failures. Both lists keep
// insertion order within each chunk, chunks in input order.
type Result[I, O any] struct {
	Successes []O
	Failures  []Failure[I]
}

// Config controls a batch run.
type Config struct {
	// Size is the number of items processed concurrently per chunk.
	Size int
	// Delay is the pause inserted between chunks while more remain, to
	// respect external rate limits.
	Delay  time.Duration
	Logger *zap.Logger
	Sleep  SleepFunc
}

// Run splits items into consecutive chunks of cfg.Size, fans the worker out
// over each chunk, and waits for the whole chunk to settle before moving on.
// A worker error or panic becomes a failure entry carrying the original
// input; it never aborts the batch or subsequent chunks.
func Run[I, O any](ctx context.Context, cfg Config, items []I, worker func(context.Context, I) (O, error)) Result[I, O] {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var res Result[I, O]
	for start := 0; start < len(items); start += cfg.Size {
		end := start + cfg.Size
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		outs := make([]O, len(chunk))
		errs := make([]error, len(chunk))
		var wg sync.WaitGroup
		for i := range chunk {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						errs[i] = fmt.Errorf("batch worker panic: %v", r)
					}
				}()
				outs[i], errs[i] = worker(ctx, chunk[i])
			}(i)
		}
		wg.Wait()

		for i := range chunk {
			if errs[i] != nil {
				logger.Warn("batch item failed", zap.Int("index", start+i), zap.Error(errs[i]))
				res.Failures = append(res.Failures, Failure[I]{Input: chunk[i], Err: errs[i]})
				continue
			}
			res.Successes = append(res.Successes, outs[i])
		}

		if end < len(items) && cfg.Delay > 0 {
			logger.Info("batch pausing between chunks",
				zap.Duration("delay", cfg.Delay),
				zap.Int("remaining", len(items)-end),
			)
			if err := cfg.Sleep(ctx, cfg.Delay); err != nil {
				for _, item := range items[end:] {
					res.Failures = append(res.Failures, Failure[I]{Input: item, Err: err})
				}
				return res
			}
		}
	}
	return res
}
