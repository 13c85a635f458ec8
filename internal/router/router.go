package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/internal/quota"
)

// Router owns the per-task provider plans. Plans are computed once from the
// registry and the startup credentials; there is no hot reload.
type Router struct {
	registry *provider.Registry
	exec     *Executor
	plans    map[provider.TaskType][]provider.Descriptor
	planErrs map[provider.TaskType]error
	eligible map[string]bool
}

func New(reg *provider.Registry, creds Credentials, exec *Executor) *Router {
	r := &Router{
		registry: reg,
		exec:     exec,
		plans:    make(map[provider.TaskType][]provider.Descriptor),
		planErrs: make(map[provider.TaskType]error),
		eligible: make(map[string]bool),
	}

	for _, task := range provider.TaskTypes() {
		req, _ := provider.RequirementFor(task)
		capable, err := FilterByTask(reg.All(), task)
		if err != nil {
			r.planErrs[task] = err
			continue
		}
		chain := ResolveCredentials(capable, creds)
		if len(chain) == 0 {
			r.planErrs[task] = &MissingCredentialsError{
				Task:       task,
				Capability: req.Required,
				Wanted:     wantedCredentials(capable),
			}
			slog.Warn("task has no eligible provider", "task", task, "error", r.planErrs[task])
			continue
		}
		r.plans[task] = chain
		for _, d := range chain {
			r.eligible[d.ID] = true
		}
		slog.Info("provider plan", "task", task, "chain", ids(chain))
	}
	return r
}

// Plan returns the ordered providers for task, or the error that makes the
// task unservable. The returned slice is a copy.
func (r *Router) Plan(task provider.TaskType) ([]provider.Descriptor, error) {
	if err, ok := r.planErrs[task]; ok {
		return nil, err
	}
	chain, ok := r.plans[task]
	if !ok {
		return nil, fmt.Errorf("%w: unknown task type %q", ErrInvalidRequest, task)
	}
	out := make([]provider.Descriptor, len(chain))
	copy(out, chain)
	return out, nil
}

// Route validates req, resolves its plan and runs the fallback chain.
func (r *Router) Route(ctx context.Context, req Request) (*Result, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	chain, err := r.Plan(req.Task)
	if err != nil {
		return nil, err
	}
	if req.Prefer != "" {
		chain = preferFirst(chain, req.Prefer)
	}
	return r.exec.Execute(ctx, chain, req)
}

// ProviderStatus is the operator view of one registered provider.
type ProviderStatus struct {
	ID             string                `json:"id"`
	Priority       int                   `json:"priority"`
	Kind           provider.Kind         `json:"kind"`
	Capabilities   []provider.Capability `json:"capabilities"`
	Eligible       bool                  `json:"eligible"`
	ExhaustedToday bool                  `json:"exhausted_today"`
	ExhaustedOn    string                `json:"exhausted_on,omitempty"`
}

// Status reports every registered provider with its quota state for today.
func (r *Router) Status(ctx context.Context) ([]ProviderStatus, error) {
	marks, err := r.exec.Ledger().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quota ledger: %w", err)
	}
	today := r.exec.Today()

	all := r.registry.All()
	out := make([]ProviderStatus, 0, len(all))
	for _, d := range all {
		st := ProviderStatus{
			ID:           d.ID,
			Priority:     d.Priority,
			Kind:         d.Kind,
			Capabilities: d.Capabilities,
			Eligible:     r.eligible[d.ID],
		}
		if day, ok := marks[d.ID]; ok {
			st.ExhaustedOn = day.String()
			st.ExhaustedToday = day == today
		}
		out = append(out, st)
	}
	return out, nil
}

// Today is the current ledger day.
func (r *Router) Today() quota.Date { return r.exec.Today() }

func preferFirst(chain []provider.Descriptor, id string) []provider.Descriptor {
	for i, d := range chain {
		if d.ID == id {
			if i == 0 {
				return chain
			}
			out := make([]provider.Descriptor, 0, len(chain))
			out = append(out, d)
			out = append(out, chain[:i]...)
			return append(out, chain[i+1:]...)
		}
	}
	return chain
}

func ids(chain []provider.Descriptor) []string {
	out := make([]string, len(chain))
	for i, d := range chain {
		out[i] = d.ID
	}
	return out
}
