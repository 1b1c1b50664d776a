// Package cost computes call cost from a Binding's price table and
// tracks usage history per binding for budget monitoring.
package cost

import (
	"context"
	"sync"
	"time"

	"github.com/coreroute/orchestrator/internal/domain"
)

// Calculator turns token usage into USD using a binding's own price
// table when present, falling back to a caller-provided default table
// keyed by binding key for providers that never set Binding.Price.
type Calculator struct {
	mu       sync.RWMutex
	fallback map[string]domain.PriceTable
}

// NewCalculator builds a Calculator with no fallback pricing.
func NewCalculator() *Calculator {
	return &Calculator{fallback: make(map[string]domain.PriceTable)}
}

// Calculate returns the USD cost of usage against binding, preferring
// the binding's own price table and falling back to a registered
// default for binding.Key() otherwise.
func (c *Calculator) Calculate(binding domain.Binding, usage domain.Usage) float64 {
	if binding.Price != (domain.PriceTable{}) {
		return binding.Cost(usage)
	}

	c.mu.RLock()
	pt, ok := c.fallback[binding.Key()]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	return domain.Binding{Price: pt}.Cost(usage)
}

// SetFallbackPricing registers a default price table for bindingKey,
// used when a provider's binding carries no price of its own.
func (c *Calculator) SetFallbackPricing(bindingKey string, pt domain.PriceTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback[bindingKey] = pt
}

// UsageRecord is one completed call's accounting entry.
type UsageRecord struct {
	RequestID    string
	Binding      string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	LatencyMs    int64
	Timestamp    time.Time
}

// Tracker persists UsageRecords and answers cost-window queries used
// by the budget monitor.
type Tracker interface {
	Record(ctx context.Context, record UsageRecord) error
	UsageSince(ctx context.Context, since time.Time) ([]UsageRecord, error)
	TotalCostSince(ctx context.Context, since time.Time) (float64, error)
}

// InMemoryTracker keeps usage records in a process-local slice. There
// is no persistence across restarts.
type InMemoryTracker struct {
	mu      sync.RWMutex
	records []UsageRecord
}

// NewInMemoryTracker builds an empty InMemoryTracker.
func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{records: make([]UsageRecord, 0)}
}

func (t *InMemoryTracker) Record(ctx context.Context, record UsageRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, record)
	return nil
}

func (t *InMemoryTracker) UsageSince(ctx context.Context, since time.Time) ([]UsageRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []UsageRecord
	for _, r := range t.records {
		if r.Timestamp.After(since) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (t *InMemoryTracker) TotalCostSince(ctx context.Context, since time.Time) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	for _, r := range t.records {
		if r.Timestamp.After(since) {
			total += r.CostUSD
		}
	}
	return total, nil
}

// GetAllRecords returns a copy of every recorded usage entry, used by
// tests and diagnostics.
func (t *InMemoryTracker) GetAllRecords() []UsageRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]UsageRecord, len(t.records))
	copy(result, t.records)
	return result
}
