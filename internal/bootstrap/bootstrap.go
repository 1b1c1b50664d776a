// Package bootstrap turns a declarative list of provider specs plus a
// secrets.SecretStore into constructed provider.ChatProviders and a
// populated registry.Registry. It is the only component that reads
// secrets; the orchestrator core itself never touches them.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/provider"
	"github.com/coreroute/orchestrator/internal/provider/anthropic"
	"github.com/coreroute/orchestrator/internal/provider/bedrock"
	"github.com/coreroute/orchestrator/internal/provider/ollama"
	"github.com/coreroute/orchestrator/internal/provider/openai"
	"github.com/coreroute/orchestrator/internal/registry"
	"github.com/coreroute/orchestrator/internal/secrets"
)

// Kind names a supported provider backend.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindBedrock   Kind = "bedrock"
	KindOllama    Kind = "ollama"
)

// ModelSpec declares one logical model name (with optional aliases) and
// its price table, mirroring registry.ModelEntry so callers don't need
// to import the registry package just to describe pricing.
type ModelSpec struct {
	Name    string
	Aliases []string
	Price   domain.PriceTable
}

// ProviderSpec declaratively describes one provider to construct and
// register. SecretRef names the secret holding its API key; Bedrock and
// Ollama (no API key / local daemon) leave it empty.
type ProviderSpec struct {
	Kind      Kind
	SecretRef string
	BaseURL   string
	Region    string
	Models    []ModelSpec
}

// Build constructs every provider named in specs, resolving secrets
// through store, and returns a populated registry.Registry under policy.
func Build(ctx context.Context, store secrets.SecretStore, policy registry.Policy, specs []ProviderSpec) (*registry.Registry, error) {
	reg := registry.New(policy)

	for _, spec := range specs {
		p, err := buildProvider(ctx, store, spec)
		if err != nil {
			return nil, fmt.Errorf("bootstrap provider %s: %w", spec.Kind, err)
		}

		entries := make([]registry.ModelEntry, 0, len(spec.Models))
		for _, m := range spec.Models {
			entries = append(entries, registry.ModelEntry{
				Name:    m.Name,
				Aliases: m.Aliases,
				Price:   m.Price,
			})
		}

		reg.Add(registry.Registration{
			Key:      p.Key(),
			Provider: p,
			Models:   entries,
		})
	}

	return reg, nil
}

func buildProvider(ctx context.Context, store secrets.SecretStore, spec ProviderSpec) (provider.ChatProvider, error) {
	prices := make(map[string]domain.PriceTable, len(spec.Models))
	for _, m := range spec.Models {
		prices[m.Name] = m.Price
		for _, alias := range m.Aliases {
			prices[alias] = m.Price
		}
	}

	switch spec.Kind {
	case KindOpenAI:
		apiKey, err := store.GetSecret(ctx, spec.SecretRef)
		if err != nil {
			return nil, fmt.Errorf("resolve secret %s: %w", spec.SecretRef, err)
		}
		baseURL := spec.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return openai.New("openai", apiKey, baseURL, prices), nil

	case KindAnthropic:
		apiKey, err := store.GetSecret(ctx, spec.SecretRef)
		if err != nil {
			return nil, fmt.Errorf("resolve secret %s: %w", spec.SecretRef, err)
		}
		return anthropic.New(apiKey, prices), nil

	case KindBedrock:
		return bedrock.New(ctx, spec.Region, prices)

	case KindOllama:
		baseURL := spec.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.New(baseURL), nil

	default:
		return nil, fmt.Errorf("unknown provider kind %q", spec.Kind)
	}
}
