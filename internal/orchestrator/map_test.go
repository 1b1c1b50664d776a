package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/coreroute/orchestrator/internal/domain"
)

func TestMap_PreservesInputOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}

	results, err := Map(context.Background(), items, MapOptions{Concurrency: 3}, func(ctx context.Context, n int) (int, error) {
		return n * n, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("item %d: unexpected error %v", i, r.Err)
		}
		if r.Value != i*i {
			t.Errorf("item %d: got %d, want %d", i, r.Value, i*i)
		}
	}
}

func TestMap_ContinueOnErrorReportsPerItem(t *testing.T) {
	items := []int{1, 2, 3}

	results, err := Map(context.Background(), items, MapOptions{Concurrency: 2}, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			return 0, domain.New(domain.KindClientError, "bad item", nil)
		}
		return n * 10, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Value != 10 || results[0].Err != nil {
		t.Errorf("item 0: got %+v", results[0])
	}
	if results[1].Err == nil || results[1].Err.Kind != domain.KindClientError {
		t.Errorf("item 1: expected ClientError, got %+v", results[1])
	}
	if results[2].Value != 30 || results[2].Err != nil {
		t.Errorf("item 2: got %+v", results[2])
	}
}

func TestMap_StopOnErrorCancelsInFlight(t *testing.T) {
	items := []int{1, 2, 3, 4}

	_, err := Map(context.Background(), items, MapOptions{Concurrency: 4, StopOnError: true}, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			return 0, errors.New("boom")
		}
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestMap_RespectsConcurrencyLimit(t *testing.T) {
	items := make([]int, 20)
	var maxInFlight, inFlight atomic.Int32

	_, err := Map(context.Background(), items, MapOptions{Concurrency: 3}, func(ctx context.Context, n int) (int, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if cur <= m || maxInFlight.CompareAndSwap(m, cur) {
				break
			}
		}
		return n, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if maxInFlight.Load() > 3 {
		t.Errorf("expected at most 3 in flight, saw %d", maxInFlight.Load())
	}
}
