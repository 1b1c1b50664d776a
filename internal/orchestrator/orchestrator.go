// Package orchestrator composes the reliability stack — rate limiting,
// circuit breaking, retry, and cost accounting — around a provider
// registry to serve unary chat, streaming chat, and the fallback/race/
// map composite call patterns on top of them.
package orchestrator

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/coreroute/orchestrator/internal/breaker"
	"github.com/coreroute/orchestrator/internal/budget"
	"github.com/coreroute/orchestrator/internal/classify"
	"github.com/coreroute/orchestrator/internal/cost"
	"github.com/coreroute/orchestrator/internal/domain"
	"github.com/coreroute/orchestrator/internal/eventbus"
	"github.com/coreroute/orchestrator/internal/limiter"
	"github.com/coreroute/orchestrator/internal/metrics"
	"github.com/coreroute/orchestrator/internal/middleware"
	"github.com/coreroute/orchestrator/internal/notifications"
	"github.com/coreroute/orchestrator/internal/provider"
	"github.com/coreroute/orchestrator/internal/registry"
	"github.com/coreroute/orchestrator/internal/retry"
	"github.com/coreroute/orchestrator/internal/telemetry"
)

// ChatArgs is the consumer-facing call shape: a ChatRequest plus the
// caller-supplied request id every event and error is tagged with.
type ChatArgs struct {
	domain.ChatRequest
	RequestID string
}

// CallSpec names a concrete (provider, model) pair for the fallback and
// race composers, bypassing logical-name resolution entirely.
type CallSpec struct {
	Provider string
	Model    string
}

// Config builds an Orchestrator. Exactly one of Registry or Providers
// should be set: Registry enables logical-name resolution, Providers-only
// mode requires every call to address a provider directly.
type Config struct {
	Registry  *registry.Registry
	Providers map[string]provider.ChatProvider

	Limits  map[string]limiter.Rule
	Retry   retry.Config
	Breaker breaker.Config

	// TimeoutMs bounds each individual attempt, not the call as a whole;
	// retry may issue several attempts each with its own deadline.
	TimeoutMs int64

	Middleware []middleware.Hook
	OnEvent    []eventbus.Observer
	EventQueue int

	Calculator *cost.Calculator
	Tracker    cost.Tracker

	// Budget, when set, is checked after every successful call; a level
	// transition is routed to Notifier if one is also set.
	Budget   *budget.Monitor
	Notifier notifications.Notifier
}

// Orchestrator is a single isolated instance of the reliability stack:
// its registry, limiter, breaker, and cost counter belong to it alone,
// so multiple instances may coexist without interference.
type Orchestrator struct {
	reg        *registry.Registry
	providers  map[string]provider.ChatProvider
	limiter    *limiter.Limiter
	breaker    *breaker.Manager
	retryCfg   retry.Config
	timeoutMs  int64
	middleware []middleware.Hook
	bus        *eventbus.Bus
	calc       *cost.Calculator
	tracker    cost.Tracker
	totalCost  atomicFloat64
	budget     *budget.Monitor
	notifier   notifications.Notifier
}

// New builds an Orchestrator from cfg, applying defaults for any
// reliability-stack field left at its zero value.
func New(cfg Config) *Orchestrator {
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	breakerCfg := cfg.Breaker
	if breakerCfg.FailureThreshold == 0 {
		breakerCfg = breaker.DefaultConfig()
	}

	queueSize := cfg.EventQueue
	if queueSize <= 0 {
		queueSize = 256
	}

	o := &Orchestrator{
		reg:        cfg.Registry,
		providers:  cfg.Providers,
		retryCfg:   retryCfg,
		timeoutMs:  cfg.TimeoutMs,
		middleware: cfg.Middleware,
		calc:       cfg.Calculator,
		tracker:    cfg.Tracker,
		budget:     cfg.Budget,
		notifier:   cfg.Notifier,
	}
	if o.calc == nil {
		o.calc = cost.NewCalculator()
	}

	o.bus = eventbus.New(queueSize, cfg.OnEvent...)
	o.limiter = limiter.New(cfg.Limits, o.onLimiterWait)
	o.breaker = breaker.NewManager(breakerCfg, o.onBreakerTransition)

	if o.budget != nil && o.notifier != nil {
		o.budget.OnAlert(notifications.BudgetAlertHandler(o.notifier))
	}

	return o
}

// TotalCostUSD returns the running, monotonically non-decreasing sum of
// every successful call's cost across this Orchestrator's lifetime.
func (o *Orchestrator) TotalCostUSD() float64 {
	return o.totalCost.Load()
}

// Events returns the Orchestrator's event bus, for composers and tests
// that need to publish or inspect the same stream.
func (o *Orchestrator) Events() *eventbus.Bus {
	return o.bus
}

func (o *Orchestrator) onLimiterWait(binding string, waitMs int64) {
	metrics.RecordLimiterWait(binding, float64(waitMs)/1000)
	o.bus.Publish(domain.EventRecord{
		Kind:    domain.EventLimiterWait,
		Binding: binding,
		WaitMs:  waitMs,
		Time:    time.Now(),
	})
}

func (o *Orchestrator) onBreakerTransition(binding string, opened bool) {
	kind := domain.EventBreakerClose
	state := 0
	if opened {
		kind = domain.EventBreakerOpen
		state = 2
	}
	metrics.SetCircuitBreakerState(binding, state)
	o.bus.Publish(domain.EventRecord{Kind: kind, Binding: binding, Time: time.Now()})
	if o.notifier != nil {
		notifications.BreakerTransitionHandler(o.notifier)(binding, opened)
	}
}

// resolveBinding selects a concrete binding for req: direct addressing
// when Provider is set (Model is then the provider's concrete model
// name), otherwise logical-name resolution through the registry.
func (o *Orchestrator) resolveBinding(req domain.ChatRequest) (domain.Binding, provider.ChatProvider, error) {
	if req.Provider != "" {
		if o.reg != nil {
			return o.reg.Direct(req.Provider, req.Model)
		}
		p, ok := o.providers[req.Provider]
		if !ok {
			return domain.Binding{}, nil, domain.New(domain.KindConfigError, "unknown provider: "+req.Provider, nil)
		}
		price, _ := p.Price(req.Model)
		return domain.Binding{ProviderKey: req.Provider, Model: req.Model, Price: price}, p, nil
	}

	if o.reg == nil {
		return domain.Binding{}, nil, domain.New(domain.KindConfigError, "logical model name resolution requires a registry; address a provider directly", nil)
	}
	return o.reg.Resolve(req.Model)
}

// Chat performs one non-streaming completion: resolve a binding, run the
// middleware chain whose innermost step is the reliability stack
// (breaker, limiter, retry, provider, cost accounting), and return the
// result.
func (o *Orchestrator) Chat(ctx context.Context, args ChatArgs) (domain.ChatResponse, error) {
	if args.RequestID == "" {
		args.RequestID = uuid.New().String()
	}

	binding, p, err := o.resolveBinding(args.ChatRequest)
	if err != nil {
		return domain.ChatResponse{}, err
	}
	bindingKey := binding.Key()

	ctx, span := telemetry.StartSpan(ctx, "call.chat")
	defer span.End()
	telemetry.AddCallAttributes(span, bindingKey, args.RequestID)

	mctx := &middleware.Context{
		Binding:   bindingKey,
		Request:   args.ChatRequest,
		StartTs:   time.Now(),
		RequestID: args.RequestID,
	}

	chain := middleware.New(o.terminal(binding, p, bindingKey, args.RequestID, span), o.middleware...)
	if err := chain.Run(ctx, mctx); err != nil {
		telemetry.AddErrorAttribute(span, err)
		return domain.ChatResponse{}, err
	}
	if mctx.Response == nil && mctx.Err != nil {
		ce := domain.AsError(mctx.Err)
		telemetry.AddErrorAttribute(span, ce)
		return domain.ChatResponse{}, ce
	}
	if mctx.Response == nil {
		err := domain.New(domain.KindConfigError, "middleware chain short-circuited without a response or error", nil).WithBinding(bindingKey)
		telemetry.AddErrorAttribute(span, err)
		return domain.ChatResponse{}, err
	}
	return *mctx.Response, nil
}

// terminal builds the innermost middleware.Next step: the reliability
// stack for one resolved binding.
func (o *Orchestrator) terminal(binding domain.Binding, p provider.ChatProvider, bindingKey, requestID string, span trace.Span) middleware.Next {
	return func(ctx context.Context, mctx *middleware.Context) error {
		start := time.Now()
		o.bus.Publish(domain.EventRecord{Kind: domain.EventCallStart, Binding: bindingKey, RequestID: requestID, Time: start})

		onRetry := func(attempt int, delayMs int64, cause *domain.Error) {
			metrics.RecordRetry(bindingKey)
			telemetry.AddAttemptAttributes(span, attempt)
			o.bus.Publish(domain.EventRecord{
				Kind:      domain.EventCallRetry,
				Binding:   bindingKey,
				RequestID: requestID,
				Attempt:   attempt,
				WaitMs:    delayMs,
				Error:     cause,
				Time:      time.Now(),
			})
		}

		attempt := func(ctx context.Context, attemptNum int) (domain.ChatResponse, error) {
			return o.doAttempt(ctx, bindingKey, p, mctx.Request)
		}

		resp, err := retry.Do(ctx, o.retryCfg, retry.DefaultSleeper, onRetry, attempt)
		elapsed := time.Since(start).Seconds()

		if err != nil {
			ce := domain.AsError(err).WithBinding(bindingKey).WithRequestID(requestID)
			metrics.RecordCall(bindingKey, "error", elapsed)
			metrics.RecordError(bindingKey, string(ce.Kind))
			telemetry.AddErrorAttribute(span, ce)
			o.bus.Publish(domain.EventRecord{Kind: domain.EventCallError, Binding: bindingKey, RequestID: requestID, Error: ce, Time: time.Now()})
			mctx.Err = ce
			return ce
		}

		if resp.CostUSD == 0 {
			resp.CostUSD = o.calc.Calculate(binding, resp.Usage)
		}
		o.totalCost.Add(resp.CostUSD)
		if o.tracker != nil {
			_ = o.tracker.Record(ctx, cost.UsageRecord{
				RequestID:    requestID,
				Binding:      bindingKey,
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
				CostUSD:      resp.CostUSD,
				LatencyMs:    time.Since(start).Milliseconds(),
				Timestamp:    time.Now(),
			})
		}

		resp.Provider = binding.ProviderKey
		resp.Model = binding.Model
		resp.RequestID = requestID

		metrics.RecordCall(bindingKey, "success", elapsed)
		metrics.RecordTokens(bindingKey, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		metrics.RecordCost(bindingKey, resp.CostUSD)
		telemetry.AddTokenAttributes(span, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		telemetry.AddCostAttribute(span, resp.CostUSD)
		o.bus.Publish(domain.EventRecord{Kind: domain.EventCallSuccess, Binding: bindingKey, RequestID: requestID, Time: time.Now()})

		if o.budget != nil {
			if _, err := o.budget.Check(ctx); err != nil {
				slog.Error("budget check failed", "binding", bindingKey, "error", err)
			}
		}

		mctx.Response = &resp
		return nil
	}
}

// doAttempt runs one pass of the reliability stack: breaker admission,
// limiter admission, an optional per-attempt deadline, the provider
// call, classification, and breaker bookkeeping.
func (o *Orchestrator) doAttempt(ctx context.Context, bindingKey string, p provider.ChatProvider, req domain.ChatRequest) (domain.ChatResponse, error) {
	if err := o.breaker.BeforePass(bindingKey); err != nil {
		return domain.ChatResponse{}, err
	}

	if err := o.limiter.Acquire(ctx, bindingKey); err != nil {
		ce := domain.AsError(err)
		o.breaker.Record(bindingKey, ce.Kind, false)
		return domain.ChatResponse{}, ce
	}

	attemptCtx := ctx
	if o.timeoutMs > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(o.timeoutMs)*time.Millisecond)
		defer cancel()
	}

	resp, err := p.Chat(attemptCtx, req)
	if err != nil {
		ce := classify.Transport(err)
		o.breaker.Record(bindingKey, ce.Kind, false)
		return domain.ChatResponse{}, ce
	}

	o.breaker.Record(bindingKey, "", true)
	return resp, nil
}

// atomicFloat64 accumulates a monotonically non-decreasing float64
// total under concurrent Add calls via a compare-and-swap loop, since
// the standard library has no native atomic float64.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Add(delta float64) {
	if delta == 0 {
		return
	}
	for {
		old := a.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}
