package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nikhilbhutani/factrouter/internal/alert"
	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/internal/quota"
)

// Defaults for ExecutorConfig.
const (
	DefaultAttemptTimeout = 30 * time.Second
	DefaultMaxRetries     = 2
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 5 * time.Second

	// NoRetries disables same-provider retries; a zero MaxRetries means
	// DefaultMaxRetries.
	NoRetries = -1
)

type ExecutorConfig struct {
	// AttemptTimeout bounds a single provider call, not the whole chain.
	AttemptTimeout time.Duration
	// MaxRetries is the number of same-provider retries after a transient
	// failure. Zero selects DefaultMaxRetries, NoRetries turns them off.
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = DefaultBackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	return c
}

// Executor walks an ordered provider chain one provider at a time. The quota
// ledger is the only state it mutates, and only on quota-class failures.
type Executor struct {
	cfg      ExecutorConfig
	adapters map[string]provider.Adapter
	ledger   quota.Ledger
	clock    quota.Clock
	alerts   alert.Sink
	ops      *slog.Logger
}

// ExecutorOption customises an Executor.
type ExecutorOption func(*Executor)

func WithClock(c quota.Clock) ExecutorOption       { return func(e *Executor) { e.clock = c } }
func WithAlerts(s alert.Sink) ExecutorOption        { return func(e *Executor) { e.alerts = s } }
func WithOperatorLog(l *slog.Logger) ExecutorOption { return func(e *Executor) { e.ops = l } }

func NewExecutor(cfg ExecutorConfig, ledger quota.Ledger, adapters []provider.Adapter, opts ...ExecutorOption) *Executor {
	e := &Executor{
		cfg:      cfg.withDefaults(),
		adapters: make(map[string]provider.Adapter, len(adapters)),
		ledger:   ledger,
		clock:    quota.NewClock(nil),
		alerts:   alert.Nop{},
		ops:      slog.Default(),
	}
	for _, a := range adapters {
		e.adapters[a.ID()] = a
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today is the ledger day used for new requests.
func (e *Executor) Today() quota.Date { return e.clock.Today() }

// Ledger exposes the quota store for status reporting.
func (e *Executor) Ledger() quota.Ledger { return e.ledger }

// HasAdapter reports whether an adapter is registered for id.
func (e *Executor) HasAdapter(id string) bool {
	_, ok := e.adapters[id]
	return ok
}

// Execute runs the fallback state machine over chain. The request must be
// normalized. A cancelled ctx stops the walk and returns ctx.Err(); ledger
// marks already written stay.
func (e *Executor) Execute(ctx context.Context, chain []provider.Descriptor, req Request) (*Result, error) {
	requirement, err := provider.RequirementFor(req.Task)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	today := e.clock.Today()
	policy := Policy{Providers: len(chain), MaxRetries: e.cfg.MaxRetries}
	attempts := make([]Attempt, 0, len(chain))
	call := req.call()
	bo := e.newBackOff()

	cur := Cursor{State: StateTryNext}
	if len(chain) == 0 {
		cur.State = StateExhaustedAll
	}

	for !cur.State.Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := chain[cur.Index]

		if cur.State == StateTryNext {
			bo.Reset()
			if e.isExhausted(ctx, d.ID, today) {
				attempts = append(attempts, Attempt{Provider: d.ID, Outcome: OutcomeSkipped})
				attemptsTotal.WithLabelValues(d.ID, string(OutcomeSkipped)).Inc()
				slog.DebugContext(ctx, "provider exhausted today, skipping", "provider", d.ID, "task", req.Task)
				cur = Transition(cur, OutcomeSkipped, policy)
				continue
			}
		} else {
			if err := sleep(ctx, bo.NextBackOff()); err != nil {
				return nil, err
			}
			slog.DebugContext(ctx, "retrying provider", "provider", d.ID, "retry", cur.Retry)
		}

		start := time.Now()
		out, err := e.attempt(ctx, d, requirement, call)
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		outcome := OutcomeOf(err)
		a := Attempt{Provider: d.ID, Outcome: outcome, Retry: cur.Retry, Duration: elapsed}
		if err != nil {
			a.Error = err.Error()
		}
		attempts = append(attempts, a)
		attemptsTotal.WithLabelValues(d.ID, string(outcome)).Inc()
		attemptDuration.WithLabelValues(d.ID).Observe(elapsed.Seconds())

		e.sideEffects(ctx, d, req, outcome, err, today)

		if outcome == OutcomeSuccess {
			if cur.Index > 0 {
				fallbacksTotal.WithLabelValues(string(req.Task)).Inc()
				slog.InfoContext(ctx, "request served by fallback provider",
					"provider", d.ID, "position", cur.Index+1, "task", req.Task)
			}
			return &Result{
				ProviderID:  d.ID,
				Model:       firstNonEmpty(out.Model, d.Model),
				Content:     out.Text,
				Degraded:    requirement.Preferred != "" && !d.Has(requirement.Preferred),
				Citations:   out.Citations,
				Audio:       out.Audio,
				ContentType: out.ContentType,
				Attempts:    attempts,
			}, nil
		}

		cur = Transition(cur, outcome, policy)
	}

	tf := &TerminalFailure{Task: req.Task, Attempts: attempts}
	terminalFailuresTotal.WithLabelValues(string(req.Task)).Inc()
	e.ops.ErrorContext(ctx, "all providers failed",
		"task", req.Task,
		"providers", len(chain),
		"attempts", attempts,
		"summary", tf.Summary())
	e.alerts.Alert(ctx, alert.Alert{
		Kind:   alert.KindTerminalFailure,
		Task:   string(req.Task),
		Detail: tf.Summary(),
		At:     time.Now(),
	})
	return nil, tf
}

func (e *Executor) attempt(ctx context.Context, d provider.Descriptor, req provider.Requirement, call provider.Call) (*provider.Output, error) {
	if !d.Has(req.Required) {
		return nil, provider.Unsupported(d.ID, req.Required)
	}
	adapter, ok := e.adapters[d.ID]
	if !ok {
		return nil, provider.Auth(d.ID, errors.New("no adapter registered"))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	out, err := adapter.Invoke(attemptCtx, call)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			// the per-attempt timeout counts as a transient network failure
			return nil, provider.Transient(d.ID, err)
		}
		return nil, err
	}
	if out == nil {
		return nil, provider.Auth(d.ID, errors.New("adapter returned no output"))
	}
	return out, nil
}

func (e *Executor) sideEffects(ctx context.Context, d provider.Descriptor, req Request, outcome Outcome, err error, today quota.Date) {
	switch outcome {
	case OutcomeQuota:
		if markErr := e.ledger.MarkExhausted(ctx, d.ID, today); markErr != nil {
			e.ops.ErrorContext(ctx, "quota mark failed", "provider", d.ID, "error", markErr)
		} else {
			quotaMarksTotal.WithLabelValues(d.ID).Inc()
		}
		slog.WarnContext(ctx, "provider quota exhausted, trying next", "provider", d.ID, "day", today.String())
	case OutcomeTransient:
		slog.WarnContext(ctx, "transient provider failure", "provider", d.ID, "error", err)
	case OutcomeAuth:
		e.ops.ErrorContext(ctx, "provider rejected request", "provider", d.ID, "task", req.Task, "error", err)
		e.alerts.Alert(ctx, alert.Alert{
			Kind:     alert.KindAuthFailure,
			Provider: d.ID,
			Task:     string(req.Task),
			Detail:   err.Error(),
			At:       time.Now(),
		})
	case OutcomeUnsupported:
		e.ops.ErrorContext(ctx, "provider without required capability reached executor",
			"provider", d.ID, "task", req.Task, "error", err)
		e.alerts.Alert(ctx, alert.Alert{
			Kind:     alert.KindCapabilityBug,
			Provider: d.ID,
			Task:     string(req.Task),
			Detail:   err.Error(),
			At:       time.Now(),
		})
	}
}

// isExhausted fails open: an unreadable ledger must not take every provider
// offline, and a provider that really is out of quota answers with a quota
// error again.
func (e *Executor) isExhausted(ctx context.Context, id string, today quota.Date) bool {
	exhausted, err := e.ledger.IsExhausted(ctx, id, today)
	if err != nil {
		e.ops.WarnContext(ctx, "quota ledger read failed, treating provider as usable", "provider", id, "error", err)
		return false
	}
	return exhausted
}

func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.BackoffInitial
	bo.MaxInterval = e.cfg.BackoffMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
