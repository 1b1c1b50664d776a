// Package budget watches the orchestrator's running cost total against
// a configured ceiling and fires leveled alerts as usage crosses
// warning/critical/exceeded thresholds. This supplements the orchestrator's
// totalCostUSD counter with the alerting a production deployment needs
// around it; the orchestrator core itself only accumulates the counter,
// it never enforces a ceiling.
package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coreroute/orchestrator/internal/cost"
)

type AlertLevel string

const (
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
	AlertLevelExceeded AlertLevel = "exceeded"
)

// Alert is one threshold crossing for the orchestrator's rolling cost
// window.
type Alert struct {
	Level      AlertLevel
	CeilingUSD float64
	CurrentUSD float64
	Percentage float64
	Timestamp  time.Time
}

type AlertHandler func(alert Alert)

// Thresholds are fractions of CeilingUSD at which a Monitor escalates.
type Thresholds struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds returns conservative escalation points.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 0.8, Critical: 0.95}
}

// Monitor checks accumulated cost against a ceiling on demand — the
// orchestrator calls Check after each call.success event — and
// notifies registered handlers only on a level transition, so a
// steady-state warning doesn't re-fire on every call.
type Monitor struct {
	mu          sync.RWMutex
	tracker     cost.Tracker
	ceilingUSD  float64
	thresholds  Thresholds
	handlers    []AlertHandler
	lastLevel   AlertLevel
	windowSince func() time.Time
}

// NewMonitor builds a Monitor. windowSince computes the start of the
// current accounting window (e.g. start of month); it is a func so
// tests can pin it.
func NewMonitor(tracker cost.Tracker, ceilingUSD float64, thresholds Thresholds, windowSince func() time.Time) *Monitor {
	return &Monitor{
		tracker:     tracker,
		ceilingUSD:  ceilingUSD,
		thresholds:  thresholds,
		handlers:    make([]AlertHandler, 0),
		windowSince: windowSince,
	}
}

// OnAlert registers a handler invoked synchronously whenever Check
// reaches an alert level (warning, critical or exceeded) different from
// the last one. Dropping back below the warning threshold clears the
// level without invoking handlers.
func (m *Monitor) OnAlert(handler AlertHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Check recomputes cost for the current window and fires an Alert if
// the level has changed since the last Check. Returns nil if no
// ceiling is configured or the level is unchanged.
func (m *Monitor) Check(ctx context.Context) (*Alert, error) {
	if m.ceilingUSD <= 0 {
		return nil, nil
	}

	currentCost, err := m.tracker.TotalCostSince(ctx, m.windowSince())
	if err != nil {
		return nil, err
	}

	percentage := currentCost / m.ceilingUSD

	var level AlertLevel
	switch {
	case percentage >= 1.0:
		level = AlertLevelExceeded
	case percentage >= m.thresholds.Critical:
		level = AlertLevelCritical
	case percentage >= m.thresholds.Warning:
		level = AlertLevelWarning
	default:
		m.mu.Lock()
		m.lastLevel = ""
		m.mu.Unlock()
		return nil, nil
	}

	m.mu.Lock()
	unchanged := m.lastLevel == level
	m.lastLevel = level
	handlers := make([]AlertHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	if unchanged {
		return nil, nil
	}

	alert := &Alert{
		Level:      level,
		CeilingUSD: m.ceilingUSD,
		CurrentUSD: currentCost,
		Percentage: percentage * 100,
		Timestamp:  time.Now(),
	}

	for _, handler := range handlers {
		handler(*alert)
	}

	return alert, nil
}

// IsExceeded reports whether the current window's cost has reached the
// ceiling, for callers that want to refuse new calls outright.
func (m *Monitor) IsExceeded(ctx context.Context) (bool, error) {
	if m.ceilingUSD <= 0 {
		return false, nil
	}
	currentCost, err := m.tracker.TotalCostSince(ctx, m.windowSince())
	if err != nil {
		return false, err
	}
	return currentCost >= m.ceilingUSD, nil
}

// LogAlertHandler logs an Alert via slog, the baseline handler every
// deployment gets for free.
func LogAlertHandler(alert Alert) {
	slog.Warn("budget alert",
		"level", alert.Level,
		"ceiling_usd", alert.CeilingUSD,
		"current_usd", alert.CurrentUSD,
		"percentage", alert.Percentage,
	)
}
