// Package invoker is the single chokepoint every agent calls through to
// reach an external vision/language model. It owns budget reservation,
// per-model circuit breaking and rate limiting, and per-call deadlines; it
// never retries a failed call.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/nhaka-archive/resurrection/pkg/budget"
)

// ErrTimeout is returned when a call does not complete before its deadline.
var ErrTimeout = errors.New("invoker: call exceeded deadline")

// ErrBudgetExceeded is returned when the ledger refuses the pre-call
// reservation. It is the invoker's alias of budget.ErrBudgetExceeded so
// callers only need to import this package to check for it.
var ErrBudgetExceeded = budget.ErrBudgetExceeded

// CallError wraps a failure from the backend or the circuit breaker with
// the model id and a short reason, following the sentinel+wrapped-struct
// idiom used throughout this codebase rather than a generic error-code
// enum.
type CallError struct {
	Model  string
	Reason string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("invoker: call to %s failed: %s", e.Model, e.Reason)
}

func (e *CallError) Unwrap() error { return e.Err }

// TokenUsage reports how many tokens a call actually consumed, used to
// reconcile the budget reservation after the call returns.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// ModelBackend is the external collaborator: a remote vision/language model
// endpoint. Invoke must respect ctx's deadline and return promptly on
// cancellation; the invoker never retries, so a backend that can recover
// from a transient error internally should do so itself.
type ModelBackend interface {
	Invoke(ctx context.Context, model, systemPrompt, userInput string, maxTokens int) (text string, usage TokenUsage, err error)
}

// ModelPricing is the per-token cost used both to estimate a reservation
// before the call and to compute the actual cost recorded afterward.
type ModelPricing struct {
	CostPerInputToken  float64 `yaml:"cost_per_input_token"`
	CostPerOutputToken float64 `yaml:"cost_per_output_token"`
}

// Config bundles the per-model resilience settings the invoker applies.
type Config struct {
	Pricing       map[string]ModelPricing
	RateLimit     rate.Limit
	RateBurst     int
	BreakerFailTh uint32
}

// Invoker is the concrete External Model Invoker. It is safe for concurrent
// use by every agent in the pipeline.
type Invoker struct {
	backend ModelBackend
	ledger  *budget.Ledger
	cfg     Config
	log     *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	limiters map[string]*rate.Limiter

	callsTotal   *prometheus.CounterVec
	callLatency  *prometheus.HistogramVec
	tokensSpent  *prometheus.CounterVec
}

// New wires a ModelBackend to a budget.Ledger under the given Config.
// registry may be nil to skip Prometheus registration (used in tests).
func New(backend ModelBackend, ledger *budget.Ledger, cfg Config, log *slog.Logger, registry *prometheus.Registry) *Invoker {
	if log == nil {
		log = slog.Default()
	}
	inv := &Invoker{
		backend:  backend,
		ledger:   ledger,
		cfg:      cfg,
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
	}
	if registry != nil {
		inv.callsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resurrection_invoker_calls_total",
			Help: "Model calls by model id and outcome.",
		}, []string{"model", "outcome"})
		inv.callLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "resurrection_invoker_call_latency_seconds",
			Help: "Model call latency by model id.",
		}, []string{"model"})
		inv.tokensSpent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resurrection_invoker_tokens_total",
			Help: "Tokens spent by model id and direction.",
		}, []string{"model", "direction"})
		registry.MustRegister(inv.callsTotal, inv.callLatency, inv.tokensSpent)
	}
	return inv
}

func (inv *Invoker) breakerFor(model string) *gobreaker.CircuitBreaker {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if b, ok := inv.breakers[model]; ok {
		return b
	}
	failTh := inv.cfg.BreakerFailTh
	if failTh == 0 {
		failTh = 5
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: model,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failTh
		},
	})
	inv.breakers[model] = b
	return b
}

func (inv *Invoker) limiterFor(model string) *rate.Limiter {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if l, ok := inv.limiters[model]; ok {
		return l
	}
	limit := inv.cfg.RateLimit
	if limit == 0 {
		limit = rate.Inf
	}
	burst := inv.cfg.RateBurst
	if burst == 0 {
		burst = 1
	}
	l := rate.NewLimiter(limit, burst)
	inv.limiters[model] = l
	return l
}

// Invoke reserves budget, waits for the per-model rate limiter, then runs
// the call through that model's circuit breaker. Exactly one of the
// ledger's Record or Release is called per invocation, never both, never
// neither. No automatic retries: a failure is reported to the caller, which
// decides whether to fall back.
func (inv *Invoker) Invoke(ctx context.Context, model, systemPrompt, userInput string, maxTokens int, deadline time.Time) (string, error) {
	pricing := inv.cfg.Pricing[model]
	estimate := pricing.CostPerInputToken*estimateInputTokens(userInput) + pricing.CostPerOutputToken*float64(maxTokens)

	ticket, err := inv.ledger.Reserve(model, estimate)
	if err != nil {
		inv.observe(model, "budget_rejected", 0)
		return "", ErrBudgetExceeded
	}

	cctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := inv.limiterFor(model).Wait(cctx); err != nil {
		_ = inv.ledger.Release(ticket)
		inv.observe(model, "rate_limited", 0)
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", cctx.Err()
	}

	started := time.Now()
	result, callErr := inv.breakerFor(model).Execute(func() (interface{}, error) {
		text, usage, err := inv.backend.Invoke(cctx, model, systemPrompt, userInput, maxTokens)
		if err != nil {
			return nil, err
		}
		return invokeResult{text: text, usage: usage}, nil
	})
	latency := time.Since(started)
	if inv.callLatency != nil {
		inv.callLatency.WithLabelValues(model).Observe(latency.Seconds())
	}

	if callErr != nil {
		_ = inv.ledger.Release(ticket)
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			inv.observe(model, "timeout", 0)
			return "", ErrTimeout
		}
		if errors.Is(callErr, gobreaker.ErrOpenState) || errors.Is(callErr, gobreaker.ErrTooManyRequests) {
			inv.observe(model, "circuit_open", 0)
			return "", &CallError{Model: model, Reason: "circuit open", Err: callErr}
		}
		inv.observe(model, "backend_error", 0)
		return "", &CallError{Model: model, Reason: callErr.Error(), Err: callErr}
	}

	r := result.(invokeResult)
	actual := pricing.CostPerInputToken*float64(r.usage.InputTokens) + pricing.CostPerOutputToken*float64(r.usage.OutputTokens)
	if err := inv.ledger.Record(ticket, actual); err != nil {
		inv.log.Error("invoker: ledger record failed", "model", model, "error", err)
	}
	inv.observe(model, "success", r.usage.InputTokens+r.usage.OutputTokens)
	return r.text, nil
}

type invokeResult struct {
	text  string
	usage TokenUsage
}

func (inv *Invoker) observe(model, outcome string, tokens int) {
	if inv.callsTotal != nil {
		inv.callsTotal.WithLabelValues(model, outcome).Inc()
	}
	if tokens > 0 && inv.tokensSpent != nil {
		inv.tokensSpent.WithLabelValues(model, "total").Add(float64(tokens))
	}
}

// estimateInputTokens is a rough 4-bytes-per-token heuristic used only to
// size the pre-call reservation; the actual cost recorded after the call
// uses the backend's reported usage, not this estimate.
func estimateInputTokens(input string) float64 {
	return float64(len(input)) / 4
}
