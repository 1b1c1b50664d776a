package orchestrator

import (
	"context"

	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/metrics"
	"github.com/coreroute/orchestrator/internal/telemetry"
)

// FallbackCall tries a fixed ordered list of specs, advancing to the
// next on any failure other than a Canceled one (BreakerOpen and
// ConfigError included) and returning the first success.
type FallbackCall struct {
	o     *Orchestrator
	specs []CallSpec
}

// Fallback builds a FallbackCall over specs, tried in order.
func (o *Orchestrator) Fallback(specs []CallSpec) *FallbackCall {
	return &FallbackCall{o: o, specs: specs}
}

// Chat tries each spec in order and returns the first success. If every
// spec fails, it returns the last spec's error unchanged — not an
// aggregate — since a human operator reading logs wants to know what
// finally went wrong, not replay the whole chain. Caller cancellation
// halts the chain immediately rather than trying the remaining specs.
func (f *FallbackCall) Chat(ctx context.Context, args ChatArgs) (domain.ChatResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "call.fallback")
	defer span.End()

	var lastErr error

	for i, spec := range f.specs {
		req := args.ChatRequest
		req.Provider = spec.Provider
		req.Model = spec.Model

		resp, err := f.o.Chat(ctx, ChatArgs{ChatRequest: req, RequestID: args.RequestID})
		if err == nil {
			metrics.RecordFallbackOutcome(outcomeLabel(i))
			telemetry.AddOutcomeAttribute(span, domain.Binding{ProviderKey: spec.Provider, Model: spec.Model}.Key())
			return resp, nil
		}
		lastErr = err

		if domain.Canceled(err) {
			telemetry.AddErrorAttribute(span, err)
			return domain.ChatResponse{}, err
		}
	}

	metrics.RecordFallbackOutcome("exhausted")
	if lastErr != nil {
		telemetry.AddErrorAttribute(span, lastErr)
	}
	return domain.ChatResponse{}, lastErr
}

func outcomeLabel(i int) string {
	if i == 0 {
		return "primary"
	}
	return "fallback"
}
