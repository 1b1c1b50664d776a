package retry

import (
	"context"
	"testing"

	"github.com/cenkalti/backoff/v5"

	"github.com/coreroute/orchestrator/internal/domain"
)

func noopSleeper(ctx context.Context, d int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func TestRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), DefaultConfig(), noopSleeper, nil,
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "ok", nil
		})
	if err != nil || result != "ok" {
		t.Fatalf("expected ok/nil, got %q/%v", result, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_RetriesRetryableKind(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseMs: 1, MaxMs: 5, Jitter: JitterNone}
	calls := 0
	var retries []int
	result, err := Do(context.Background(), cfg, noopSleeper, func(attempt int, delayMs int64, cause *domain.Error) {
		retries = append(retries, attempt)
	}, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", domain.New(domain.KindServerError, "boom", nil)
		}
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Fatalf("expected eventual success, got %q/%v", result, err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(retries) != 2 {
		t.Errorf("expected 2 retry notifications, got %d", len(retries))
	}
}

func TestRetry_StopsOnNonRetryableKind(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), DefaultConfig(), noopSleeper, nil,
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", domain.New(domain.KindClientError, "bad request", nil)
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a non-retryable kind, got %d", calls)
	}
	ce := domain.AsError(err)
	if ce.Kind != domain.KindClientError {
		t.Errorf("expected ClientError preserved, got %v", ce.Kind)
	}
}

func TestRetry_StopsOnPermanentMarker(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), DefaultConfig(), noopSleeper, nil,
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", backoff.Permanent(domain.New(domain.KindServerError, "fatal config issue", nil))
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a permanent error, got %d", calls)
	}
}

func TestRetry_ExhaustsAttemptsReturnsLastClassifiedError(t *testing.T) {
	cfg := Config{MaxAttempts: 2, BaseMs: 1, MaxMs: 2, Jitter: JitterNone}
	_, err := Do(context.Background(), cfg, noopSleeper, nil,
		func(ctx context.Context, attempt int) (string, error) {
			return "", domain.New(domain.KindNetworkError, "connection reset", nil)
		})
	ce := domain.AsError(err)
	if ce.Kind != domain.KindNetworkError {
		t.Errorf("expected NetworkError, got %v", ce.Kind)
	}
	if ce.Attempts != 2 {
		t.Errorf("expected Attempts=2, got %d", ce.Attempts)
	}
}

func TestRetry_CancellationDuringBackoffReturnsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, BaseMs: 100, MaxMs: 1000, Jitter: JitterNone}

	sleep := func(ctx context.Context, d int64) error {
		cancel()
		return ctx.Err()
	}

	_, err := Do(ctx, cfg, sleep, nil, func(ctx context.Context, attempt int) (string, error) {
		return "", domain.New(domain.KindServerError, "still failing", nil)
	})

	if !domain.Canceled(err) {
		t.Fatalf("expected classified Canceled error, got %v", err)
	}
}

func TestRetry_RetryAfterFloorsComputedDelay(t *testing.T) {
	cfg := Config{MaxAttempts: 2, BaseMs: 1, MaxMs: 2, Jitter: JitterNone}
	var observedDelay int64
	_, _ = Do(context.Background(), cfg, noopSleeper, func(attempt int, delayMs int64, cause *domain.Error) {
		observedDelay = delayMs
	}, func(ctx context.Context, attempt int) (string, error) {
		return "", domain.New(domain.KindRateLimited, "slow down", nil).WithRetryAfter(5000)
	})
	if observedDelay < 5000 {
		t.Errorf("expected retry-after floor of 5000ms, got %d", observedDelay)
	}
}
