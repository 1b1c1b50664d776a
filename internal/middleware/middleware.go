// Package middleware implements the orchestrator's onion-model hook
// chain: an ordered list of hooks sharing one mutable
// Context, each free to inspect/modify the request, short-circuit with
// a response, or delegate to the rest of the chain via Next.
package middleware

import (
	"context"
	"time"

	"github.com/coreroute/orchestrator/internal/domain"
)

// Context is the shared mutable state every hook in a chain sees.
// A hook that sets Response (without calling the terminal step through
// Next) short-circuits the remaining chain.
type Context struct {
	Binding   string
	Request   domain.ChatRequest
	Response  *domain.ChatResponse
	Err       error
	StartTs   time.Time
	EndTs     time.Time
	RequestID string
}

// Next invokes the remainder of the chain. The terminal step (the
// reliability stack) is itself wired in as the innermost Next.
type Next func(ctx context.Context, mctx *Context) error

// Hook is one link in the chain. It must call next exactly once, or
// set mctx.Response/mctx.Err itself and return without calling next.
type Hook func(ctx context.Context, mctx *Context, next Next) error

// Chain composes hooks in registration order on the way down and
// reverse order on the way up, terminating in terminal.
type Chain struct {
	hooks    []Hook
	terminal Next
}

// New builds a Chain that ends in terminal once every hook has run.
func New(terminal Next, hooks ...Hook) *Chain {
	return &Chain{hooks: hooks, terminal: terminal}
}

// Run executes the chain against mctx, returning the first error raised
// by a hook or the terminal step, classified through domain.AsError.
func (c *Chain) Run(ctx context.Context, mctx *Context) error {
	if err := c.build(0)(ctx, mctx); err != nil {
		return domain.AsError(err)
	}
	return nil
}

func (c *Chain) build(i int) Next {
	if i >= len(c.hooks) {
		return c.terminal
	}
	hook := c.hooks[i]
	rest := c.build(i + 1)
	return func(ctx context.Context, mctx *Context) error {
		return hook(ctx, mctx, rest)
	}
}
