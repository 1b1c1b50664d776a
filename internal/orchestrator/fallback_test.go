package orchestrator

import (
	"context"
	"testing"

	"github.com/coreroute/orchestrator/internal/classify"
	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/provider"
	"github.com/coreroute/orchestrator/internal/retry"
)

func TestFallback_AdvancesOnFailureReturnsSecondSuccess(t *testing.T) {
	primary := &mockProvider{key: "openai", chatFn: alwaysFail(&classify.HTTPError{StatusCode: 500})}
	secondary := &mockProvider{key: "anthropic", chatFn: alwaysSucceed("from secondary")}

	o := New(Config{
		Providers: map[string]provider.ChatProvider{"openai": primary, "anthropic": secondary},
		Retry:     retry.Config{MaxAttempts: 1, BaseMs: 1, MaxMs: 1, Jitter: retry.JitterNone},
	})

	resp, err := o.Fallback([]CallSpec{
		{Provider: "openai", Model: "m"},
		{Provider: "anthropic", Model: "m"},
	}).Chat(context.Background(), ChatArgs{ChatRequest: domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from secondary" {
		t.Errorf("got %q", resp.Content)
	}
	if primary.calls.Load() != 1 {
		t.Errorf("expected primary to be tried once, got %d", primary.calls.Load())
	}
}

func TestFallback_ReturnsLastErrorWhenAllFail(t *testing.T) {
	first := &mockProvider{key: "openai", chatFn: alwaysFail(&classify.HTTPError{StatusCode: 500, Body: "first"})}
	second := &mockProvider{key: "anthropic", chatFn: alwaysFail(&classify.HTTPError{StatusCode: 400, Body: "second"})}

	o := New(Config{
		Providers: map[string]provider.ChatProvider{"openai": first, "anthropic": second},
		Retry:     retry.Config{MaxAttempts: 1, BaseMs: 1, MaxMs: 1, Jitter: retry.JitterNone},
	})

	_, err := o.Fallback([]CallSpec{
		{Provider: "openai", Model: "m"},
		{Provider: "anthropic", Model: "m"},
	}).Chat(context.Background(), ChatArgs{ChatRequest: domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}}})
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.AsError(err).Kind != domain.KindClientError {
		t.Errorf("expected the last spec's error (ClientError), got %v", domain.AsError(err).Kind)
	}
}

func TestFallback_CancellationHaltsChain(t *testing.T) {
	first := &mockProvider{key: "openai", chatFn: func(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
		return domain.ChatResponse{}, domain.New(domain.KindCanceled, "canceled", context.Canceled)
	}}
	second := &mockProvider{key: "anthropic", chatFn: alwaysSucceed("should never run")}

	o := New(Config{
		Providers: map[string]provider.ChatProvider{"openai": first, "anthropic": second},
		Retry:     retry.Config{MaxAttempts: 1, BaseMs: 1, MaxMs: 1, Jitter: retry.JitterNone},
	})

	_, err := o.Fallback([]CallSpec{
		{Provider: "openai", Model: "m"},
		{Provider: "anthropic", Model: "m"},
	}).Chat(context.Background(), ChatArgs{ChatRequest: domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}}})
	if err == nil || domain.AsError(err).Kind != domain.KindCanceled {
		t.Fatalf("expected Canceled, got %v", err)
	}
	if second.calls.Load() != 0 {
		t.Errorf("expected the chain to halt before trying the second spec, got %d calls", second.calls.Load())
	}
}
