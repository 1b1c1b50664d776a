// Package classify maps transport, HTTP, and provider-signaled failures
// onto the closed domain.Kind taxonomy. Providers report non-2xx
// responses as *HTTPError and pass transport failures through Transport;
// the orchestrator's reliability stack runs Transport again at the
// boundary of the provider call, which leaves an already classified
// error unchanged and classifies anything else.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/coreroute/orchestrator/internal/domain"
)

// HTTPError is the shape a ChatProvider returns for a non-2xx response.
// Providers populate this instead of classifying it themselves.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter string // raw Retry-After header value, seconds or HTTP-date
}

func (e *HTTPError) Error() string {
	return "provider http error: status=" + strconv.Itoa(e.StatusCode) + " body=" + e.Body
}

// HTTP classifies a provider HTTP failure into the domain taxonomy.
func HTTP(err *HTTPError) *domain.Error {
	msg := "provider returned status " + strconv.Itoa(err.StatusCode)
	var ce *domain.Error
	switch {
	case err.StatusCode == http.StatusUnauthorized || err.StatusCode == http.StatusForbidden:
		ce = domain.New(domain.KindAuthError, msg, err)
	case err.StatusCode == http.StatusTooManyRequests:
		ce = domain.New(domain.KindRateLimited, msg, err)
	case err.StatusCode == http.StatusRequestTimeout:
		ce = domain.New(domain.KindTimeout, msg, err)
	case err.StatusCode >= 400 && err.StatusCode < 500:
		ce = domain.New(domain.KindClientError, msg, err)
	case err.StatusCode >= 500:
		ce = domain.New(domain.KindServerError, msg, err)
	default:
		ce = domain.New(domain.KindServerError, msg, err)
	}
	if ms := retryAfterMs(err.RetryAfter); ms > 0 {
		ce = ce.WithRetryAfter(ms)
	}
	return ce
}

// Transport classifies a non-HTTP failure: context cancellation/deadline,
// DNS/TCP/TLS errors, or anything else a provider's http.Client.Do can
// return before a response is even read.
func Transport(err error) *domain.Error {
	if err == nil {
		return nil
	}
	if existing, ok := err.(*domain.Error); ok {
		return existing
	}
	switch {
	case errors.Is(err, context.Canceled):
		return domain.New(domain.KindCanceled, "canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.New(domain.KindTimeout, "deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.New(domain.KindTimeout, "network timeout", err)
		}
		return domain.New(domain.KindNetworkError, netErr.Error(), err)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return HTTP(httpErr)
	}
	return domain.New(domain.KindNetworkError, err.Error(), err)
}

// retryAfterMs parses a Retry-After header value expressed in delta
// seconds. HTTP-date values are not honored (providers in this module
// only ever emit delta-seconds).
func retryAfterMs(raw string) int64 {
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return int64(secs) * 1000
}
