// Package router picks an inference provider for a request and drives the
// serial fallback chain: capability filter, credential resolver, quota-aware
// executor.
package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

// ErrInvalidRequest is returned for requests rejected before any routing.
var ErrInvalidRequest = errors.New("invalid analysis request")

// DefaultLanguage is used when a request does not name one.
const DefaultLanguage = "en"

// Request is one incoming unit of work. It is never persisted by the router.
type Request struct {
	Content  string            `json:"content"`
	Language string            `json:"language"`
	Task     provider.TaskType `json:"task_type"`
	Mode     provider.Mode     `json:"mode"`

	// Previous and Prefer are set by detail follow-ups that re-invoke the
	// provider behind an earlier answer.
	Previous string `json:"-"`
	Prefer   string `json:"-"`
}

// Normalize fills defaults and validates the request.
func (r Request) Normalize() (Request, error) {
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" {
		return r, fmt.Errorf("%w: empty content", ErrInvalidRequest)
	}
	if _, err := provider.RequirementFor(r.Task); err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	mode, err := provider.ParseMode(string(r.Mode))
	if err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r.Mode = mode
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	return r, nil
}

func (r Request) call() provider.Call {
	return provider.Call{
		Task:     r.Task,
		Mode:     r.Mode,
		Content:  r.Content,
		Language: r.Language,
		Previous: r.Previous,
	}
}

// Result is a successful routing outcome.
type Result struct {
	ProviderID string              `json:"provider_id_used"`
	Model      string              `json:"model,omitempty"`
	Content    string              `json:"raw_content"`
	Degraded   bool                `json:"degraded"`
	Citations  []provider.Citation `json:"citations,omitempty"`

	Audio       []byte `json:"-"`
	ContentType string `json:"content_type,omitempty"`

	Attempts []Attempt `json:"-"`
}
