package orchestrator

import (
	"context"
	"sync/atomic"

	"github.com/coreroute/orchestrator/internal/domain"
)

type chatFunc func(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error)

type mockProvider struct {
	key    string
	chatFn chatFunc
	prices map[string]domain.PriceTable
	calls  atomic.Int32
}

func (m *mockProvider) Key() string { return m.key }

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	m.calls.Add(1)
	return m.chatFn(ctx, req)
}

func (m *mockProvider) Price(model string) (domain.PriceTable, bool) {
	pt, ok := m.prices[model]
	return pt, ok
}

// failNTimesThenSucceed returns a chatFunc that fails with err for the
// first n calls, then succeeds with content.
func failNTimesThenSucceed(n int, err error, content string) chatFunc {
	var calls atomic.Int32
	return func(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
		if int(calls.Add(1)) <= n {
			return domain.ChatResponse{}, err
		}
		return domain.ChatResponse{Content: content}, nil
	}
}

func alwaysFail(err error) chatFunc {
	return func(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
		return domain.ChatResponse{}, err
	}
}

func alwaysSucceed(content string) chatFunc {
	return func(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
		return domain.ChatResponse{Content: content}, nil
	}
}

type mockStreamingProvider struct {
	mockProvider
	streamFn func(ctx context.Context, req domain.ChatRequest) (<-chan domain.ChatDelta, <-chan error)
}

func (m *mockStreamingProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.ChatDelta, <-chan error) {
	return m.streamFn(ctx, req)
}
