// Package retry executes a call with bounded exponential backoff and
// full jitter. It borrows github.com/cenkalti/backoff/v5 only for its
// convention of marking an error as non-retryable via backoff.Permanent;
// the actual delay schedule is computed by hand since the desired
// schedule is a literal uniform(0, raw) jitter, not the library's
// randomization-factor model.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/coreroute/orchestrator/internal/domain"
)

// Config tunes the retry executor.
type Config struct {
	MaxAttempts int
	BaseMs      int64
	MaxMs       int64
	Jitter      JitterMode
}

type JitterMode int

const (
	JitterNone JitterMode = iota
	JitterFull
)

// DefaultConfig returns conservative defaults suitable for production use.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseMs:      1000,
		MaxMs:       10_000,
		Jitter:      JitterFull,
	}
}

// RetryObserver is notified before each retried attempt, mirroring the
// call.retry EventRecord.
type RetryObserver func(attempt int, delayMs int64, cause *domain.Error)

// Sleeper abstracts time.Sleep for deterministic tests.
type Sleeper func(ctx context.Context, d int64) error

// Do runs fn up to cfg.MaxAttempts times. fn should return a
// *domain.Error (or any error, classified via domain.AsError) so Do can
// decide whether another attempt is worth making. A provider-signaled
// RetryAfterMs on the error floors the computed delay.
//
// Cancellation during a backoff sleep returns a classified Canceled
// error, not the last attempt's underlying error, since the caller
// gave up waiting rather than the provider failing.
func Do[T any](ctx context.Context, cfg Config, sleep Sleeper, onRetry RetryObserver, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr *domain.Error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}

		ce := domain.AsError(err)
		lastErr = ce.WithAttempts(attempt)

		if attempt == cfg.MaxAttempts || isPermanent(err) || !ce.Kind.Retryable() {
			return zero, lastErr
		}

		delayMs := nextDelayMs(cfg, attempt)
		if ce.RetryAfterMs > delayMs {
			delayMs = ce.RetryAfterMs
		}

		if onRetry != nil {
			onRetry(attempt, delayMs, ce)
		}

		if err := sleep(ctx, delayMs); err != nil {
			return zero, domain.New(domain.KindCanceled, "canceled during retry backoff", ctx.Err()).WithAttempts(attempt)
		}
	}

	return zero, lastErr
}

// DefaultSleeper sleeps for d milliseconds or returns ctx.Err() if ctx
// is canceled first.
func DefaultSleeper(ctx context.Context, d int64) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(time.Duration(d) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NextDelayMs exposes the backoff schedule for callers that need to
// drive retry manually outside Do, such as the streaming call path
// where retry must stop as soon as the first delta has been yielded.
func NextDelayMs(cfg Config, attempt int) int64 {
	return nextDelayMs(cfg, attempt)
}

// nextDelayMs computes raw = min(maxMs, baseMs*2^(attempt-1)) and then
// applies full jitter: uniform(0, raw).
func nextDelayMs(cfg Config, attempt int) int64 {
	raw := float64(cfg.BaseMs) * math.Pow(2, float64(attempt-1))
	if raw > float64(cfg.MaxMs) {
		raw = float64(cfg.MaxMs)
	}
	if cfg.Jitter == JitterNone {
		return int64(raw)
	}
	return int64(rand.Float64() * raw)
}

func isPermanent(err error) bool {
	var perr *backoff.PermanentError
	return asPermanent(err, &perr)
}

func asPermanent(err error, out **backoff.PermanentError) bool {
	for err != nil {
		if pe, ok := err.(*backoff.PermanentError); ok {
			*out = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
