package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/metrics"
)

// MapOptions configures Map's fan-out.
type MapOptions struct {
	// Concurrency caps the number of in-flight fn calls. Values <= 0
	// are treated as 1.
	Concurrency int

	// StopOnError cancels every in-flight call on the first error and
	// discards completed results, returning the error alone. When
	// false, every item runs to completion and its outcome is reported
	// individually in the returned slice.
	StopOnError bool
}

// MapResult is one item's outcome when StopOnError is false: exactly
// one of Value or Err is meaningful.
type MapResult[R any] struct {
	Value R
	Err   *domain.Error
}

// Map runs fn over items with at most opts.Concurrency in flight,
// preserving input-order indexing in the returned slice regardless of
// completion order. With StopOnError, the first error cancels every
// other in-flight call and is returned alone; otherwise every item's
// outcome — success or classified error — is reported in place.
func Map[T, R any](ctx context.Context, items []T, opts MapOptions, fn func(context.Context, T) (R, error)) ([]MapResult[R], error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]MapResult[R], len(items))

	if opts.StopOnError {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for i, item := range items {
			i, item := i, item
			g.Go(func() error {
				metrics.MapConcurrencyInFlight.Inc()
				defer metrics.MapConcurrencyInFlight.Dec()

				r, err := fn(gctx, item)
				if err != nil {
					return domain.AsError(err)
				}
				results[i] = MapResult[R]{Value: r}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			metrics.MapConcurrencyInFlight.Inc()
			defer metrics.MapConcurrencyInFlight.Dec()

			r, err := fn(ctx, item)
			if err != nil {
				results[i] = MapResult[R]{Err: domain.AsError(err)}
				return nil
			}
			results[i] = MapResult[R]{Value: r}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}
