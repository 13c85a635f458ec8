// Package analysis is the entry point the transport layer talks to: it
// routes a request, keeps the result for detail follow-ups, and renders the
// localized payload.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/factrouter/internal/cache"
	"github.com/nikhilbhutani/factrouter/internal/format"
	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/internal/router"
)

// DetailPolicy decides how a DETAIL follow-up is produced.
type DetailPolicy string

const (
	// PolicyReformat renders DETAIL from the stored result; no provider call.
	PolicyReformat DetailPolicy = "reformat"
	// PolicyReinvoke asks the original provider to elaborate, falling back
	// through the chain, and stores the new answer under the same id.
	PolicyReinvoke DetailPolicy = "reinvoke"
)

func ParseDetailPolicy(s string) (DetailPolicy, error) {
	switch p := DetailPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyReformat, nil
	case PolicyReformat, PolicyReinvoke:
		return p, nil
	default:
		return "", fmt.Errorf("unknown detail policy %q", s)
	}
}

// DefaultResultTTL bounds how long a summary can be followed up.
const DefaultResultTTL = 24 * time.Hour

// ErrResultNotFound is returned for unknown or expired result ids.
var ErrResultNotFound = errors.New("result not found or expired")

// Router is the part of router.Router the service needs.
type Router interface {
	Route(ctx context.Context, req router.Request) (*router.Result, error)
}

type Config struct {
	Policy    DetailPolicy
	ResultTTL time.Duration
}

type Service struct {
	router    Router
	store     cache.Store
	formatter *format.Formatter
	cfg       Config
	newID     func() string
}

func NewService(r Router, store cache.Store, f *format.Formatter, cfg Config) *Service {
	if cfg.Policy == "" {
		cfg.Policy = PolicyReformat
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = DefaultResultTTL
	}
	return &Service{
		router:    r,
		store:     store,
		formatter: f,
		cfg:       cfg,
		newID:     uuid.NewString,
	}
}

// record is what is kept per result id.
type record struct {
	Request   router.Request `json:"request"`
	Result    router.Result  `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
}

// Analyze routes a text task and returns the formatted payload. A request
// asking for DETAIL directly is routed and rendered in detail mode.
func (s *Service) Analyze(ctx context.Context, req router.Request) (*format.Payload, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if req.Task == provider.TaskSpeech {
		return nil, fmt.Errorf("%w: use speech synthesis for %s", router.ErrInvalidRequest, req.Task)
	}

	res, err := s.router.Route(ctx, req)
	if err != nil {
		return nil, err
	}

	id := s.newID()
	if err := s.store.Set(ctx, id, record{Request: req, Result: *res, CreatedAt: time.Now()}, s.cfg.ResultTTL); err != nil {
		// the answer is still worth returning; only the follow-up is lost
		slog.WarnContext(ctx, "failed to store result", "result_id", id, "error", err)
		id = ""
	}

	slog.InfoContext(ctx, "analysis completed",
		"result_id", id,
		"provider", res.ProviderID,
		"task", req.Task,
		"degraded", res.Degraded,
		"attempts", len(res.Attempts))

	p := s.formatter.Format(id, res, req)
	return &p, nil
}

// Detail renders the DETAIL view of an earlier result.
func (s *Service) Detail(ctx context.Context, id string) (*format.Payload, error) {
	var rec record
	if err := s.store.Get(ctx, id, &rec); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("load result %s: %w", id, err)
	}

	req := rec.Request
	req.Mode = provider.ModeDetail
	res := rec.Result

	if s.cfg.Policy == PolicyReinvoke {
		follow := req
		follow.Previous = rec.Result.Content
		follow.Prefer = rec.Result.ProviderID

		fresh, err := s.router.Route(ctx, follow)
		switch {
		case err == nil:
			res = *fresh
			// keep the original grounding when the elaboration came back without any
			if len(res.Citations) == 0 {
				res.Citations = rec.Result.Citations
			}
			rec.Result = res
			if err := s.store.Set(ctx, id, rec, s.cfg.ResultTTL); err != nil {
				slog.WarnContext(ctx, "failed to store detail result", "result_id", id, "error", err)
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			slog.WarnContext(ctx, "detail re-invocation failed, rendering stored result", "result_id", id, "error", err)
		}
	}

	p := s.formatter.Format(id, &res, req)
	return &p, nil
}

// Speak routes a speech synthesis task. The audio is not cached.
func (s *Service) Speak(ctx context.Context, text, language string) (*router.Result, error) {
	return s.router.Route(ctx, router.Request{
		Content:  text,
		Language: language,
		Task:     provider.TaskSpeech,
	})
}

// FailurePayload is the only thing an end user sees when a request fails.
// It carries no internal detail.
func (s *Service) FailurePayload(language string, err error) format.Payload {
	var missing *router.MissingCredentialsError
	switch {
	case errors.As(err, &missing):
		return s.formatter.Message(language, func(l format.Labels) string { return l.Unavailable })
	case errors.Is(err, ErrResultNotFound):
		return s.formatter.Message(language, func(l format.Labels) string { return l.Expired })
	default:
		return s.formatter.Message(language, func(l format.Labels) string { return l.Failure })
	}
}
