package batch

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/catalog"
	"github.com/fieldstone/shopsync/internal/metrics"
)

// Class is the retry classification of an error.
type Class int

const (
	// ClassTransient errors are retried with exponential backoff.
	ClassTransient Class = iota
	// ClassRateLimited errors wait a long fixed delay before retrying.
	ClassRateLimited
	// ClassConflict errors (busy upstream resource) wait a short fixed delay.
	ClassConflict
	// ClassFatal errors are never retried.
	ClassFatal
)

// Rate-limit and conflict signatures matched against error text when the
// error carries no typed classification. The exact strings upstream APIs
// emit are an external contract, so matching is deliberately loose.
var (
	rateLimitSignatures = []string{
		"rate limit",
		"rate_limit",
		"too many requests",
		"429",
		"quota",
		"resource_exhausted",
	}
	conflictSignatures = []string{
		"already processing",
	}
)

// Classify determines how an error should be retried. Typed errors win over
// message sniffing.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	if catalog.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}
	// A page that holds no product will not grow one on retry.
	if errors.Is(err, catalog.ErrNoProduct) {
		return ClassFatal
	}
	var rl *catalog.RateLimitError
	if errors.As(err, &rl) {
		return ClassRateLimited
	}
	var cf *catalog.ConflictError
	if errors.As(err, &cf) {
		return ClassConflict
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if strings.Contains(msg, sig) {
			return ClassRateLimited
		}
	}
	for _, sig := range conflictSignatures {
		if strings.Contains(msg, sig) {
			return ClassConflict
		}
	}
	return ClassTransient
}

// Policy computes retry decisions. The same policy shape is shared by the
// extraction and publish stages; only the knobs differ per call site.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	RateLimitDelay time.Duration
	ConflictDelay  time.Duration
}

// DefaultPolicy mirrors the extraction stage defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      5 * time.Second,
		RateLimitDelay: 90 * time.Second,
		ConflictDelay:  30 * time.Second,
	}
}

// Decide reports whether a failed attempt (0-based) should be retried and how
// long to wait first. Once attempt reaches MaxAttempts the answer is no
// regardless of error kind.
func (p Policy) Decide(err error, attempt int) (bool, time.Duration) {
	class := Classify(err)
	if class == ClassFatal {
		return false, 0
	}
	if attempt >= p.MaxAttempts {
		return false, 0
	}
	switch class {
	case ClassRateLimited:
		return true, p.rateLimitDelay()
	case ClassConflict:
		return true, p.conflictDelay()
	default:
		return true, p.baseDelay() << attempt
	}
}

func (p Policy) rateLimitDelay() time.Duration {
	if p.RateLimitDelay > 0 {
		return p.RateLimitDelay
	}
	return 90 * time.Second
}

func (p Policy) conflictDelay() time.Duration {
	if p.ConflictDelay > 0 {
		return p.ConflictDelay
	}
	return 30 * time.Second
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay > 0 {
		return p.BaseDelay
	}
	return 5 * time.Second
}

// Retry runs op until it succeeds, the policy gives up, or the wait is
// interrupted. The last error is returned unwrapped so callers can file it.
func Retry[T any](
	ctx context.Context,
	p Policy,
	sleep SleepFunc,
	logger *zap.Logger,
	name string,
	op func(context.Context) (T, error),
) (T, error) {
	if sleep == nil {
		sleep = Sleep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var zero T
	for attempt := 0; ; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		retry, delay := p.Decide(err, attempt)
		if !retry {
			return zero, err
		}
		metrics.Retries.Inc()
		logger.Warn("retrying after failure",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}
