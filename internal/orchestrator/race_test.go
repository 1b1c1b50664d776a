package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/coreroute/orchestrator/internal/classify"
	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/provider"
	"github.com/coreroute/orchestrator/internal/retry"
)

func slowSucceed(delay time.Duration, content string) chatFunc {
	return func(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
		select {
		case <-time.After(delay):
			return domain.ChatResponse{Content: content}, nil
		case <-ctx.Done():
			return domain.ChatResponse{}, domain.New(domain.KindCanceled, "canceled", ctx.Err())
		}
	}
}

func TestRace_FirstSuccessWins(t *testing.T) {
	fast := &mockProvider{key: "openai", chatFn: slowSucceed(1*time.Millisecond, "fast")}
	slow := &mockProvider{key: "anthropic", chatFn: slowSucceed(50*time.Millisecond, "slow")}

	o := New(Config{Providers: map[string]provider.ChatProvider{"openai": fast, "anthropic": slow}})

	resp, err := o.Race([]CallSpec{
		{Provider: "openai", Model: "m"},
		{Provider: "anthropic", Model: "m"},
	}).Chat(context.Background(), ChatArgs{ChatRequest: domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "fast" {
		t.Errorf("expected the faster candidate to win, got %q", resp.Content)
	}
}

func TestRace_AllFailedAggregatesErrors(t *testing.T) {
	a := &mockProvider{key: "openai", chatFn: alwaysFail(&classify.HTTPError{StatusCode: 500})}
	b := &mockProvider{key: "anthropic", chatFn: alwaysFail(&classify.HTTPError{StatusCode: 400})}

	o := New(Config{
		Providers: map[string]provider.ChatProvider{"openai": a, "anthropic": b},
		Retry:     retry.Config{MaxAttempts: 1, BaseMs: 1, MaxMs: 1, Jitter: retry.JitterNone},
	})

	_, err := o.Race([]CallSpec{
		{Provider: "openai", Model: "m"},
		{Provider: "anthropic", Model: "m"},
	}).Chat(context.Background(), ChatArgs{ChatRequest: domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}}})
	if err == nil {
		t.Fatal("expected error")
	}
	ce := domain.AsError(err)
	if ce.Kind != domain.KindAllFailed {
		t.Fatalf("expected AllFailed, got %v", ce.Kind)
	}
	if len(ce.Causes) != 2 {
		t.Errorf("expected 2 causes, got %d", len(ce.Causes))
	}
}

func TestRace_LoserIsCanceledAfterWinnerCompletes(t *testing.T) {
	winner := &mockProvider{key: "openai", chatFn: alwaysSucceed("winner")}
	loser := &mockProvider{key: "anthropic", chatFn: slowSucceed(200*time.Millisecond, "loser")}

	o := New(Config{Providers: map[string]provider.ChatProvider{"openai": winner, "anthropic": loser}})

	start := time.Now()
	resp, err := o.Race([]CallSpec{
		{Provider: "openai", Model: "m"},
		{Provider: "anthropic", Model: "m"},
	}).Chat(context.Background(), ChatArgs{ChatRequest: domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}}})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "winner" {
		t.Errorf("got %q", resp.Content)
	}
	if elapsed >= 200*time.Millisecond {
		t.Errorf("expected Race to return as soon as the winner completed, took %v", elapsed)
	}
}
