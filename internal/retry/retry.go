// Package retry wraps a single outbound operation with bounded retries and
// exponential backoff on transient failures.
//
// Classification follows the upstream HTTP status when one is available
// (via the StatusCoder interface):
//
//   - 429, 5xx, timeouts, network errors → transient, retried
//   - 4xx (bad request, bad credentials) → fatal, returned immediately
//   - unknown errors → transient (conservative default)
//
// Each Execute call gets fresh state; a Policy value carries no mutable
// state across calls and may be shared between goroutines.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// ErrExhausted marks a request that failed transiently on every allowed
// attempt. It is distinct from a fatal failure so callers can message the
// user differently ("service busy, try later" vs "check your API key").
var ErrExhausted = errors.New("retry: attempts exhausted")

// Default policy values, applied when the corresponding field is zero.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 30 * time.Second
)

// Policy governs how a single logical request is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. The wait before
	// attempt n+1 is BaseDelay * Multiplier^n, capped at MaxDelay.
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration

	// sleep is replaceable in tests so backoff can be observed without
	// real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// Execute runs op until it succeeds, fails fatally, the context is
// cancelled, or MaxAttempts transient failures have accumulated. The last
// transient error is returned wrapped in ErrExhausted; fatal errors are
// propagated as-is.
//
// Cancellation is observed both during the backoff wait and before every
// attempt, so a caller that loses interest stops the loop without another
// network call.
func (p Policy) Execute(ctx context.Context, op func(context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !Transient(err) {
			return err
		}
		lastErr = err

		if attempt == maxAttempts-1 {
			break
		}
		if err := p.wait(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempt(s): %w", ErrExhausted, maxAttempts, lastErr)
}

// Delay returns the backoff wait that follows the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = DefaultMultiplier
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	d := time.Duration(float64(base) * math.Pow(mult, float64(attempt)))
	if d > maxDelay || d <= 0 { // <= 0 guards float overflow
		return maxDelay
	}
	return d
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transient reports whether err is expected to resolve on retry.
func Transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		status := sc.HTTPStatus()
		return status == 429 || (status >= 500 && status < 600)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return true // unknown errors are treated as retryable
}

// Classify converts an error into a short category string used in log
// fields and metrics labels.
func Classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	if errors.Is(err, ErrExhausted) {
		return "exhausted"
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return fmt.Sprintf("http_%d", sc.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return "network"
	}

	return "unknown"
}
