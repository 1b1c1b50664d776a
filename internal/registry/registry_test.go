package registry

import (
	"context"
	"testing"

	"github.com/coreroute/orchestrator/internal/domain"
)

type mockProvider struct {
	key    string
	prices map[string]domain.PriceTable
}

func (m *mockProvider) Key() string { return m.key }
func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	return domain.ChatResponse{}, nil
}
func (m *mockProvider) Price(model string) (domain.PriceTable, bool) {
	pt, ok := m.prices[model]
	return pt, ok
}

func TestRegistry_ResolveFirst(t *testing.T) {
	r := New(PolicyFirst)
	r.Add(Registration{Key: "openai", Provider: &mockProvider{key: "openai"}, Models: []ModelEntry{
		{Name: "gpt-4", Price: domain.PriceTable{InputPer1K: 0.03, OutputPer1K: 0.06}},
	}})
	r.Add(Registration{Key: "azure", Provider: &mockProvider{key: "azure"}, Models: []ModelEntry{
		{Name: "gpt-4", Price: domain.PriceTable{InputPer1K: 0.028, OutputPer1K: 0.055}},
	}})

	b, p, err := r.Resolve("gpt-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ProviderKey != "openai" || p.Key() != "openai" {
		t.Errorf("expected first-registered openai, got %s", b.ProviderKey)
	}
}

func TestRegistry_ResolveCheapest(t *testing.T) {
	r := New(PolicyCheapest)
	r.Add(Registration{Key: "openai", Provider: &mockProvider{key: "openai"}, Models: []ModelEntry{
		{Name: "gpt-4", Price: domain.PriceTable{InputPer1K: 0.03, OutputPer1K: 0.06}},
	}})
	r.Add(Registration{Key: "azure", Provider: &mockProvider{key: "azure"}, Models: []ModelEntry{
		{Name: "gpt-4", Price: domain.PriceTable{InputPer1K: 0.02, OutputPer1K: 0.04}},
	}})

	b, _, err := r.Resolve("gpt-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ProviderKey != "azure" {
		t.Errorf("expected cheapest azure binding, got %s", b.ProviderKey)
	}
}

func TestRegistry_ResolveRoundRobin(t *testing.T) {
	r := New(PolicyRoundRobin)
	r.Add(Registration{Key: "a", Provider: &mockProvider{key: "a"}, Models: []ModelEntry{{Name: "m"}}})
	r.Add(Registration{Key: "b", Provider: &mockProvider{key: "b"}, Models: []ModelEntry{{Name: "m"}}})

	var seen []string
	for i := 0; i < 4; i++ {
		b, _, err := r.Resolve("m")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen = append(seen, b.ProviderKey)
	}
	want := []string{"a", "b", "a", "b"}
	for i, w := range want {
		if seen[i] != w {
			t.Errorf("round robin sequence mismatch at %d: got %v, want %v", i, seen, want)
			break
		}
	}
}

func TestRegistry_AliasesMapToMultipleBindings(t *testing.T) {
	r := New(PolicyFirst)
	r.Add(Registration{Key: "openai", Provider: &mockProvider{key: "openai"}, Models: []ModelEntry{
		{Name: "gpt-4-turbo", Aliases: []string{"gpt4"}},
	}})
	r.Add(Registration{Key: "azure", Provider: &mockProvider{key: "azure"}, Models: []ModelEntry{
		{Name: "gpt-4-deployment", Aliases: []string{"gpt4"}},
	}})

	b, _, err := r.Resolve("gpt4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ProviderKey != "openai" {
		t.Errorf("expected first alias binding openai, got %s", b.ProviderKey)
	}
}

func TestRegistry_UnknownNameReturnsConfigError(t *testing.T) {
	r := New(PolicyFirst)
	_, _, err := r.Resolve("nonexistent")
	ce := domain.AsError(err)
	if ce == nil || ce.Kind != domain.KindConfigError {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestRegistry_DirectAddressingBypassesResolve(t *testing.T) {
	r := New(PolicyFirst)
	r.Add(Registration{Key: "ollama", Provider: &mockProvider{key: "ollama"}, Models: nil})

	b, p, err := r.Direct("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ProviderKey != "ollama" || b.Model != "llama3" || p.Key() != "ollama" {
		t.Errorf("unexpected direct binding: %+v", b)
	}
}

func TestRegistry_DirectUnknownProviderReturnsConfigError(t *testing.T) {
	r := New(PolicyFirst)
	_, _, err := r.Direct("nope", "model")
	ce := domain.AsError(err)
	if ce == nil || ce.Kind != domain.KindConfigError {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}
