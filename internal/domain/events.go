package domain

import "time"

// EventKind tags an EventRecord.
type EventKind string

const (
	EventCallStart    EventKind = "call.start"
	EventCallSuccess  EventKind = "call.success"
	EventCallError    EventKind = "call.error"
	EventCallRetry    EventKind = "call.retry"
	EventBreakerOpen  EventKind = "breaker.open"
	EventBreakerClose EventKind = "breaker.close"
	EventLimiterWait  EventKind = "limiter.wait"
)

// EventRecord is a single structured telemetry event. Delivery to
// observers is best-effort and non-blocking.
type EventRecord struct {
	Kind      EventKind
	Binding   string
	RequestID string
	Attempt   int
	WaitMs    int64
	Error     *Error
	Time      time.Time
}
