package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/coreroute/orchestrator/internal/domain"
)

func TestChain_RunsInOnionOrder(t *testing.T) {
	var order []string

	record := func(name string) Hook {
		return func(ctx context.Context, mctx *Context, next Next) error {
			order = append(order, name+":down")
			err := next(ctx, mctx)
			order = append(order, name+":up")
			return err
		}
	}

	terminal := func(ctx context.Context, mctx *Context) error {
		order = append(order, "terminal")
		return nil
	}

	chain := New(terminal, record("outer"), record("inner"))
	if err := chain.Run(context.Background(), &Context{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"outer:down", "inner:down", "terminal", "inner:up", "outer:up"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestChain_ShortCircuitSkipsTerminal(t *testing.T) {
	terminalCalled := false
	terminal := func(ctx context.Context, mctx *Context) error {
		terminalCalled = true
		return nil
	}

	shortCircuit := func(ctx context.Context, mctx *Context, next Next) error {
		resp := domain.ChatResponse{Content: "cached"}
		mctx.Response = &resp
		return nil
	}

	chain := New(terminal, shortCircuit)
	mctx := &Context{}
	if err := chain.Run(context.Background(), mctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if terminalCalled {
		t.Error("expected terminal step to be skipped by short-circuiting hook")
	}
	if mctx.Response == nil || mctx.Response.Content != "cached" {
		t.Errorf("expected short-circuit response to be set, got %+v", mctx.Response)
	}
}

func TestChain_HookErrorAbortsChain(t *testing.T) {
	terminalCalled := false
	terminal := func(ctx context.Context, mctx *Context) error {
		terminalCalled = true
		return nil
	}

	failing := func(ctx context.Context, mctx *Context, next Next) error {
		return errors.New("boom")
	}

	chain := New(terminal, failing)
	err := chain.Run(context.Background(), &Context{})
	if err == nil {
		t.Fatal("expected error")
	}
	if terminalCalled {
		t.Error("expected terminal step to not run after a hook error")
	}
}
