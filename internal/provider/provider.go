// Package provider defines the capability surface every concrete model
// backend implements: a unary Chat call, an optional streaming Chat
// call, and a price table the orchestrator uses for cost accounting.
// See provider.go for the capability contract.
package provider

import (
	"context"

	"github.com/coreroute/orchestrator/internal/domain"
)

// ChatProvider is the minimal capability every backend must implement.
// Implementations report a non-2xx response as a *classify.HTTPError and
// pass transport failures through classify.Transport; other failures
// (building the request, decoding the response) are returned raw. The
// orchestrator's reliability stack classifies whatever comes back at the
// call boundary.
type ChatProvider interface {
	// Key identifies this provider within a ProviderRegistry, e.g. "openai".
	Key() string

	// Chat performs one non-streaming completion.
	Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error)

	// Price returns the per-1K-token price table for model, or
	// (PriceTable{}, false) if this provider has no pricing data for it.
	Price(model string) (domain.PriceTable, bool)
}

// StreamingChatProvider is an optional capability: a ChatProvider may
// additionally implement token-by-token streaming. Callers type-assert
// for it rather than requiring it on the base interface, since not
// every backend supports streaming (an optional capability, not every backend supports it).
type StreamingChatProvider interface {
	ChatProvider

	// ChatStream performs a streaming completion. The delta channel is
	// closed when the stream ends (the final delta has Done=true); the
	// error channel carries at most one error and is always closed.
	ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.ChatDelta, <-chan error)
}

// HealthChecker is an optional capability for backends that expose a
// dedicated health endpoint. Neither the registry's selector nor the
// orchestrator consults it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
