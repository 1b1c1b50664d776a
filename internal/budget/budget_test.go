package budget

import (
	"context"
	"testing"
	"time"

	"github.com/coreroute/orchestrator/internal/cost"
)

func fixedWindow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMonitor_FiresWarningThenCritical(t *testing.T) {
	tracker := cost.NewInMemoryTracker()
	ctx := context.Background()
	windowStart := time.Now().Add(-time.Hour)

	m := NewMonitor(tracker, 100.0, DefaultThresholds(), fixedWindow(windowStart))

	var alerts []Alert
	m.OnAlert(func(a Alert) { alerts = append(alerts, a) })

	tracker.Record(ctx, cost.UsageRecord{CostUSD: 85, Timestamp: time.Now()})
	if _, err := m.Check(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Level != AlertLevelWarning {
		t.Fatalf("expected 1 warning alert, got %+v", alerts)
	}

	tracker.Record(ctx, cost.UsageRecord{CostUSD: 12, Timestamp: time.Now()})
	if _, err := m.Check(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 2 || alerts[1].Level != AlertLevelCritical {
		t.Fatalf("expected escalation to critical, got %+v", alerts)
	}
}

func TestMonitor_NoRepeatAlertAtSameLevel(t *testing.T) {
	tracker := cost.NewInMemoryTracker()
	ctx := context.Background()
	m := NewMonitor(tracker, 100.0, DefaultThresholds(), fixedWindow(time.Now().Add(-time.Hour)))

	calls := 0
	m.OnAlert(func(a Alert) { calls++ })

	tracker.Record(ctx, cost.UsageRecord{CostUSD: 85, Timestamp: time.Now()})
	m.Check(ctx)
	m.Check(ctx)
	m.Check(ctx)

	if calls != 1 {
		t.Errorf("expected exactly 1 alert for a steady-state level, got %d", calls)
	}
}

func TestMonitor_NoCeilingConfiguredNeverFires(t *testing.T) {
	tracker := cost.NewInMemoryTracker()
	ctx := context.Background()
	m := NewMonitor(tracker, 0, DefaultThresholds(), fixedWindow(time.Now()))

	calls := 0
	m.OnAlert(func(a Alert) { calls++ })

	tracker.Record(ctx, cost.UsageRecord{CostUSD: 99999, Timestamp: time.Now()})
	if _, err := m.Check(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no alerts with ceiling disabled, got %d", calls)
	}
}

func TestMonitor_IsExceeded(t *testing.T) {
	tracker := cost.NewInMemoryTracker()
	ctx := context.Background()
	m := NewMonitor(tracker, 10.0, DefaultThresholds(), fixedWindow(time.Now().Add(-time.Hour)))

	tracker.Record(ctx, cost.UsageRecord{CostUSD: 11, Timestamp: time.Now()})
	exceeded, err := m.IsExceeded(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exceeded {
		t.Error("expected budget to be exceeded")
	}
}
