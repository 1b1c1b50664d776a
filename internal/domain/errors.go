package domain

import "fmt"

// Kind is the closed set of classified error kinds every orchestrator
// component agrees on.
type Kind string

const (
	KindClientError  Kind = "client_error"
	KindAuthError    Kind = "auth_error"
	KindRateLimited  Kind = "rate_limited"
	KindServerError  Kind = "server_error"
	KindNetworkError Kind = "network_error"
	KindTimeout      Kind = "timeout"
	KindCanceled     Kind = "canceled"
	KindBreakerOpen  Kind = "breaker_open"
	KindConfigError  Kind = "config_error"
	KindAllFailed    Kind = "all_failed"
)

// Retryable reports whether a fresh attempt is worth making for this kind.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindServerError, KindNetworkError, KindTimeout:
		return true
	default:
		return false
	}
}

// CountsAgainstBreaker reports whether a failure of this kind should be
// counted by the circuit breaker.
func (k Kind) CountsAgainstBreaker() bool {
	switch k {
	case KindRateLimited, KindServerError, KindNetworkError, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is the classified error shape that crosses every component
// boundary. No stack traces or raw transport errors cross with it.
type Error struct {
	Kind         Kind
	Message      string
	Binding      string
	RequestID    string
	Attempts     int
	RetryAfterMs int64
	Causes       []*Error // only populated for KindAllFailed
	cause        error
}

func (e *Error) Error() string {
	if e.Binding != "" {
		return fmt.Sprintf("%s: %s (binding=%s)", e.Kind, e.Message, e.Binding)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a classified error wrapping an optional underlying cause.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithBinding returns a copy of e annotated with the binding it occurred on.
func (e *Error) WithBinding(binding string) *Error {
	c := *e
	c.Binding = binding
	return &c
}

// WithRequestID returns a copy of e annotated with the request id.
func (e *Error) WithRequestID(id string) *Error {
	c := *e
	c.RequestID = id
	return &c
}

// WithAttempts returns a copy of e recording how many attempts were made.
func (e *Error) WithAttempts(n int) *Error {
	c := *e
	c.Attempts = n
	return &c
}

// WithRetryAfter returns a copy of e carrying a provider-signaled
// retry-after hint in milliseconds.
func (e *Error) WithRetryAfter(ms int64) *Error {
	c := *e
	c.RetryAfterMs = ms
	return &c
}

// AsError extracts a *Error from err, classifying unknown errors as a
// generic ServerError (a retryable kind) so callers always see the
// taxonomy.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if ok := asClassified(err, &classified); ok {
		return classified
	}
	return New(KindServerError, err.Error(), err)
}

func asClassified(err error, out **Error) bool {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			*out = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Canceled reports whether err is (or wraps) a classified Canceled error.
func Canceled(err error) bool {
	ce := AsError(err)
	return ce != nil && ce.Kind == KindCanceled
}

// AllFailed builds the aggregate error race surfaces when every
// candidate failed, preserving input order in Causes.
func AllFailed(causes []*Error) *Error {
	return &Error{
		Kind:     KindAllFailed,
		Message:  fmt.Sprintf("all %d candidates failed", len(causes)),
		Causes:   causes,
		Attempts: len(causes),
	}
}
