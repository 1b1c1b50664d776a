package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/coreroute/orchestrator/internal/classify"
	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/metrics"
	"github.com/coreroute/orchestrator/internal/provider"
	"github.com/coreroute/orchestrator/internal/retry"
	"github.com/coreroute/orchestrator/internal/telemetry"
)

// ChatStream performs a streaming completion. Admission (breaker,
// limiter) and retry apply identically to the unary path only until the
// first delta has been yielded to the caller; once bytes have flowed, a
// failure is surfaced to the caller unmodified rather than restarting
// the stream, since the caller may already have rendered partial
// output. The delta channel closes when the stream ends (its final
// delta has Done set); the error channel carries at most one error and
// is always closed.
func (o *Orchestrator) ChatStream(ctx context.Context, args ChatArgs) (<-chan domain.ChatDelta, <-chan error) {
	if args.RequestID == "" {
		args.RequestID = uuid.New().String()
	}

	out := make(chan domain.ChatDelta)
	errc := make(chan error, 1)

	ctx, span := telemetry.StartSpan(ctx, "call.stream")
	telemetry.AddCallAttributes(span, "", args.RequestID)

	go o.runStream(ctx, args, out, errc, span)

	return out, errc
}

func (o *Orchestrator) runStream(ctx context.Context, args ChatArgs, out chan<- domain.ChatDelta, errc chan<- error, span trace.Span) {
	defer close(out)
	defer close(errc)
	defer span.End()

	binding, p, err := o.resolveBinding(args.ChatRequest)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		errc <- err
		return
	}
	sp, ok := p.(provider.StreamingChatProvider)
	if !ok {
		err := domain.New(domain.KindConfigError, "provider does not support streaming", nil).WithBinding(binding.Key())
		telemetry.AddErrorAttribute(span, err)
		errc <- err
		return
	}

	bindingKey := binding.Key()
	requestID := args.RequestID
	start := time.Now()
	telemetry.AddCallAttributes(span, bindingKey, requestID)
	o.bus.Publish(domain.EventRecord{Kind: domain.EventCallStart, Binding: bindingKey, RequestID: requestID, Time: start})

	firstDeltaSeen := false

	for attempt := 1; ; attempt++ {
		telemetry.AddAttemptAttributes(span, attempt)
		if err := o.breaker.BeforePass(bindingKey); err != nil {
			telemetry.AddErrorAttribute(span, err)
			o.finishStreamError(bindingKey, requestID, start, err, attempt, errc)
			return
		}
		if err := o.limiter.Acquire(ctx, bindingKey); err != nil {
			ce := domain.AsError(err)
			o.breaker.Record(bindingKey, ce.Kind, false)
			telemetry.AddErrorAttribute(span, ce)
			o.finishStreamError(bindingKey, requestID, start, ce, attempt, errc)
			return
		}

		attemptCtx := ctx
		var cancelAttempt context.CancelFunc
		if o.timeoutMs > 0 {
			attemptCtx, cancelAttempt = context.WithTimeout(ctx, time.Duration(o.timeoutMs)*time.Millisecond)
		}

		deltas, errs := sp.ChatStream(attemptCtx, args.ChatRequest)

		streamErr, canceled := o.pumpStream(ctx, deltas, errs, out, &firstDeltaSeen)
		if cancelAttempt != nil {
			cancelAttempt()
		}

		if canceled {
			ce := domain.New(domain.KindCanceled, "canceled", ctx.Err()).WithBinding(bindingKey).WithRequestID(requestID)
			o.breaker.Record(bindingKey, domain.KindCanceled, false)
			telemetry.AddErrorAttribute(span, ce)
			errc <- ce
			return
		}

		if streamErr == nil {
			o.breaker.Record(bindingKey, "", true)
			metrics.RecordCall(bindingKey, "success", time.Since(start).Seconds())
			telemetry.AddOutcomeAttribute(span, bindingKey)
			o.bus.Publish(domain.EventRecord{Kind: domain.EventCallSuccess, Binding: bindingKey, RequestID: requestID, Time: time.Now()})
			if o.budget != nil {
				if _, err := o.budget.Check(ctx); err != nil {
					slog.Error("budget check failed", "binding", bindingKey, "error", err)
				}
			}
			return
		}

		ce := classify.Transport(streamErr)
		o.breaker.Record(bindingKey, ce.Kind, false)

		if firstDeltaSeen || attempt >= o.retryCfg.MaxAttempts || !ce.Kind.Retryable() {
			telemetry.AddErrorAttribute(span, ce)
			o.finishStreamError(bindingKey, requestID, start, ce.WithAttempts(attempt), attempt, errc)
			return
		}

		delayMs := retry.NextDelayMs(o.retryCfg, attempt)
		if ce.RetryAfterMs > delayMs {
			delayMs = ce.RetryAfterMs
		}

		metrics.RecordRetry(bindingKey)
		o.bus.Publish(domain.EventRecord{
			Kind:      domain.EventCallRetry,
			Binding:   bindingKey,
			RequestID: requestID,
			Attempt:   attempt,
			WaitMs:    delayMs,
			Error:     ce,
			Time:      time.Now(),
		})

		if err := retry.DefaultSleeper(ctx, delayMs); err != nil {
			errc <- domain.New(domain.KindCanceled, "canceled during retry backoff", ctx.Err()).WithBinding(bindingKey).WithRequestID(requestID)
			return
		}
	}
}

// pumpStream forwards deltas to out until the provider stream ends,
// errors, or ctx is canceled. It returns the terminal provider error (if
// any) and whether termination was due to caller cancellation. Deltas
// the provider buffered before reporting an error are forwarded first.
func (o *Orchestrator) pumpStream(ctx context.Context, deltas <-chan domain.ChatDelta, errs <-chan error, out chan<- domain.ChatDelta, firstDeltaSeen *bool) (error, bool) {
	var pending error
	for {
		select {
		case d, ok := <-deltas:
			if !ok {
				return pending, false
			}
			*firstDeltaSeen = true
			select {
			case out <- d:
			case <-ctx.Done():
				return nil, true
			}
			if d.Done {
				return nil, false
			}
			if errs == nil && len(deltas) == 0 {
				return pending, false
			}
		case e, ok := <-errs:
			if ok && e != nil {
				pending = e
			}
			errs = nil
			if len(deltas) == 0 {
				return pending, false
			}
		case <-ctx.Done():
			return nil, true
		}
	}
}

func (o *Orchestrator) finishStreamError(bindingKey, requestID string, start time.Time, err error, attempt int, errc chan<- error) {
	ce := domain.AsError(err).WithBinding(bindingKey).WithRequestID(requestID)
	metrics.RecordCall(bindingKey, "error", time.Since(start).Seconds())
	metrics.RecordError(bindingKey, string(ce.Kind))
	o.bus.Publish(domain.EventRecord{Kind: domain.EventCallError, Binding: bindingKey, RequestID: requestID, Attempt: attempt, Error: ce, Time: time.Now()})
	errc <- ce
}
