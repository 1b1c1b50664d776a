package orchestrator

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/metrics"
	"github.com/coreroute/orchestrator/internal/telemetry"
)

// RaceCall dispatches a fixed list of specs concurrently and returns
// the first one to succeed.
type RaceCall struct {
	o     *Orchestrator
	specs []CallSpec
}

// Race builds a RaceCall over specs, dispatched concurrently.
func (o *Orchestrator) Race(specs []CallSpec) *RaceCall {
	return &RaceCall{o: o, specs: specs}
}

type raceWinner struct {
	resp domain.ChatResponse
	idx  int
}

// Chat dispatches every spec concurrently under a shared cancellation
// scope. The first success cancels every sibling call and is returned;
// sibling errors after that point are never surfaced to the caller. If
// every spec fails, the result is a single AllFailed error carrying
// every spec's classified error in input order. Caller cancellation
// propagates to every sibling and returns Canceled.
func (r *RaceCall) Chat(ctx context.Context, args ChatArgs) (domain.ChatResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "call.race")
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	causes := make([]*domain.Error, len(r.specs))
	var winner atomic.Pointer[raceWinner]

	for i, spec := range r.specs {
		i, spec := i, spec
		g.Go(func() error {
			req := args.ChatRequest
			req.Provider = spec.Provider
			req.Model = spec.Model

			resp, err := r.o.Chat(gctx, ChatArgs{ChatRequest: req, RequestID: args.RequestID})
			if err == nil {
				if winner.CompareAndSwap(nil, &raceWinner{resp: resp, idx: i}) {
					cancel()
				}
				return nil
			}
			causes[i] = domain.AsError(err)
			return nil
		})
	}

	_ = g.Wait()

	if w := winner.Load(); w != nil {
		metrics.RecordRaceOutcome("won")
		telemetry.AddOutcomeAttribute(span, domain.Binding{ProviderKey: r.specs[w.idx].Provider, Model: r.specs[w.idx].Model}.Key())
		return w.resp, nil
	}

	if err := ctx.Err(); err != nil && causesAllCanceled(causes) {
		metrics.RecordRaceOutcome("canceled")
		ce := domain.New(domain.KindCanceled, "race canceled", err)
		telemetry.AddErrorAttribute(span, ce)
		return domain.ChatResponse{}, ce
	}

	metrics.RecordRaceOutcome("all_failed")
	allFailed := domain.AllFailed(causes)
	telemetry.AddErrorAttribute(span, allFailed)
	return domain.ChatResponse{}, allFailed
}

func causesAllCanceled(causes []*domain.Error) bool {
	for _, c := range causes {
		if c != nil && c.Kind != domain.KindCanceled {
			return false
		}
	}
	return true
}
