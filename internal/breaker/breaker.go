// Package breaker implements per-binding circuit breaking: fail fast
// when a binding is unhealthy, probe for recovery once the open timer
// elapses, and close again once a probe succeeds.
//
// States:
//   - Closed: normal operation, failures accumulate toward a threshold.
//   - Open: reject everything until openDurationMs elapses.
//   - Half-Open: admit up to halfOpenProbes concurrent calls to test
//     recovery; the first success closes the circuit, any failure
//     reopens it.
package breaker

import (
	"sync"
	"time"

	"github.com/coreroute/orchestrator/internal/domain"
)

// State is the lifecycle position of one binding's breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes breaker behavior.
type Config struct {
	FailureThreshold int
	OpenDurationMs   int64
	HalfOpenProbes   int
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenDurationMs:   30_000,
		HalfOpenProbes:   1,
	}
}

// TransitionObserver is notified on breaker.open / breaker.close state
// changes, mirroring the breaker.open/breaker.close EventRecord kinds.
type TransitionObserver func(binding string, opened bool)

// breakerState is the per-binding state machine.
type breakerState struct {
	mu               sync.Mutex
	state            State
	consecutiveFails int
	openedAt         time.Time
	halfOpenInFlight int
}

// Manager owns one breakerState per binding.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*breakerState
	cfg      Config
	onOpen   TransitionObserver
	nowFunc  func() time.Time
}

// NewManager creates a Manager. onOpen may be nil.
func NewManager(cfg Config, onOpen TransitionObserver) *Manager {
	return &Manager{
		breakers: make(map[string]*breakerState),
		cfg:      cfg,
		onOpen:   onOpen,
		nowFunc:  time.Now,
	}
}

func (m *Manager) stateFor(binding string) *breakerState {
	m.mu.RLock()
	b, ok := m.breakers[binding]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[binding]; ok {
		return b
	}
	b = &breakerState{state: StateClosed}
	m.breakers[binding] = b
	return b
}

// BeforePass admits or rejects a call for binding. On rejection it
// returns a classified BreakerOpen error.
func (m *Manager) BeforePass(binding string) *domain.Error {
	b := m.stateFor(binding)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := m.nowFunc()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.Sub(b.openedAt) >= time.Duration(m.cfg.OpenDurationMs)*time.Millisecond {
			b.state = StateHalfOpen
			b.halfOpenInFlight = 0
		} else {
			return domain.New(domain.KindBreakerOpen, "circuit breaker open", nil).WithBinding(binding)
		}
		fallthrough
	case StateHalfOpen:
		if b.halfOpenInFlight >= m.cfg.HalfOpenProbes {
			return domain.New(domain.KindBreakerOpen, "circuit breaker half-open, probes exhausted", nil).WithBinding(binding)
		}
		b.halfOpenInFlight++
		return nil
	}
	return nil
}

// Record reports a call outcome. kind is the classified error kind on
// failure, or "" on success. Kinds that don't count against the breaker
// (ClientError, AuthError, Canceled, ConfigError, BreakerOpen,
// AllFailed) are
// recorded as neither success nor failure.
func (m *Manager) Record(binding string, kind domain.Kind, success bool) {
	b := m.stateFor(binding)
	b.mu.Lock()
	defer b.mu.Unlock()

	if !success && !kind.CountsAgainstBreaker() {
		if b.state == StateHalfOpen && b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		return
	}

	switch b.state {
	case StateClosed:
		if success {
			b.consecutiveFails = 0
			return
		}
		b.consecutiveFails++
		if b.consecutiveFails >= m.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = m.nowFunc()
			m.notify(binding, true)
		}
	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if success {
			b.state = StateClosed
			b.consecutiveFails = 0
			m.notify(binding, false)
			return
		}
		b.state = StateOpen
		b.openedAt = m.nowFunc()
		m.notify(binding, true)
	case StateOpen:
		// A late result for a call admitted just before the open
		// transition; state already reflects reality.
	}
}

func (m *Manager) notify(binding string, opened bool) {
	if m.onOpen != nil {
		m.onOpen(binding, opened)
	}
}

// State returns the current state of binding's breaker, for health/metrics
// reporting.
func (m *Manager) State(binding string) State {
	b := m.stateFor(binding)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// States returns a snapshot of every binding's breaker state.
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]State, len(m.breakers))
	for binding, b := range m.breakers {
		b.mu.Lock()
		out[binding] = b.state
		b.mu.Unlock()
	}
	return out
}
