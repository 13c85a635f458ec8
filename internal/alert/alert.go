// Package alert carries operator-only notifications: revoked credentials,
// exhausted fallback chains and other conditions end users never see.
package alert

import (
	"context"
	"log/slog"
	"time"
)

type Kind string

const (
	KindAuthFailure     Kind = "auth_failure"
	KindTerminalFailure Kind = "terminal_failure"
	KindCapabilityBug   Kind = "capability_mismatch"
)

type Alert struct {
	Kind     Kind      `json:"kind"`
	Provider string    `json:"provider,omitempty"`
	Task     string    `json:"task,omitempty"`
	Detail   string    `json:"detail"`
	At       time.Time `json:"at"`
}

// Sink delivers alerts. Implementations must not block the request path for
// long and must never return errors to it.
type Sink interface {
	Alert(ctx context.Context, a Alert)
}

// LogSink writes alerts to the operator logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Alert(ctx context.Context, a Alert) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "operator alert",
		"kind", a.Kind,
		"provider", a.Provider,
		"task", a.Task,
		"detail", a.Detail,
		"at", a.At,
	)
}

// Nop discards alerts.
type Nop struct{}

func (Nop) Alert(context.Context, Alert) {}
