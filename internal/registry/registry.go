// Package registry resolves a logical model name to a concrete
// (provider, model) binding. It is the orchestrator's inverse index
// one logical name like "gpt-4" may fan out to several
// bindings across providers, selected by a configurable policy.
package registry

import (
	"sync"

	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/provider"
)

// Policy selects among the bindings registered for a logical name.
type Policy string

const (
	PolicyFirst      Policy = "first"
	PolicyRoundRobin Policy = "roundrobin"
	PolicyCheapest   Policy = "cheapest"
)

// ModelEntry describes one model a provider serves, optionally under
// aliases, with its price table.
type ModelEntry struct {
	Name    string
	Aliases []string
	Price   domain.PriceTable
}

// Registration is one provider's contribution to the registry.
type Registration struct {
	Key      string
	Provider provider.ChatProvider
	Models   []ModelEntry
}

type entry struct {
	binding  domain.Binding
	provider provider.ChatProvider
}

// Registry maps logical model names to an ordered list of candidate
// bindings, and resolves one according to a Policy.
type Registry struct {
	mu        sync.Mutex
	providers map[string]provider.ChatProvider
	byName    map[string][]entry
	cursors   map[string]int
	policy    Policy
}

// New builds an empty Registry with the given selection policy.
func New(policy Policy) *Registry {
	if policy == "" {
		policy = PolicyFirst
	}
	return &Registry{
		providers: make(map[string]provider.ChatProvider),
		byName:    make(map[string][]entry),
		cursors:   make(map[string]int),
		policy:    policy,
	}
}

// Add registers a provider and its models, appending a binding to the
// candidate list of every name and alias (aliases may map to
// multiple bindings across providers").
func (r *Registry) Add(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[reg.Key] = reg.Provider

	for _, m := range reg.Models {
		e := entry{
			binding:  domain.Binding{ProviderKey: reg.Key, Model: m.Name, Price: m.Price},
			provider: reg.Provider,
		}
		names := append([]string{m.Name}, m.Aliases...)
		for _, name := range names {
			r.byName[name] = append(r.byName[name], e)
		}
	}
}

// Resolve picks a binding for logicalName per the registry's policy.
// Unknown names return a classified ConfigError.
func (r *Registry) Resolve(logicalName string) (domain.Binding, provider.ChatProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates, ok := r.byName[logicalName]
	if !ok || len(candidates) == 0 {
		return domain.Binding{}, nil, domain.New(domain.KindConfigError, "unknown logical model name: "+logicalName, nil)
	}

	switch r.policy {
	case PolicyRoundRobin:
		cursor := r.cursors[logicalName]
		chosen := candidates[cursor%len(candidates)]
		r.cursors[logicalName] = cursor + 1
		return chosen.binding, chosen.provider, nil
	case PolicyCheapest:
		best := candidates[0]
		bestCost := best.binding.Price.InputPer1K + best.binding.Price.OutputPer1K
		for _, c := range candidates[1:] {
			cost := c.binding.Price.InputPer1K + c.binding.Price.OutputPer1K
			if cost < bestCost {
				best, bestCost = c, cost
			}
		}
		return best.binding, best.provider, nil
	default: // PolicyFirst
		chosen := candidates[0]
		return chosen.binding, chosen.provider, nil
	}
}

// Direct builds a binding straight from a provider key and model name,
// bypassing logical-name resolution entirely.
func (r *Registry) Direct(providerKey, model string) (domain.Binding, provider.ChatProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[providerKey]
	if !ok {
		return domain.Binding{}, nil, domain.New(domain.KindConfigError, "unknown provider: "+providerKey, nil)
	}

	price := domain.PriceTable{}
	if pt, ok := p.Price(model); ok {
		price = pt
	}
	return domain.Binding{ProviderKey: providerKey, Model: model, Price: price}, p, nil
}

// Provider returns the registered provider for key, if any.
func (r *Registry) Provider(key string) (provider.ChatProvider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[key]
	return p, ok
}

// Keys returns every registered provider key, for diagnostics.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.providers))
	for k := range r.providers {
		keys = append(keys, k)
	}
	return keys
}
