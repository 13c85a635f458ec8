package alert

import (
	"context"
	"log/slog"

	"github.com/nikhilbhutani/factrouter/internal/queue"
)

// Enqueuer is the slice of queue.Client the queue sink needs.
type Enqueuer interface {
	EnqueueOperatorAlert(payload queue.OperatorAlertPayload) error
}

// QueueSink hands alerts to the worker through asynq. If the queue is down the
// alert still lands in the fallback sink.
type QueueSink struct {
	Queue    Enqueuer
	Fallback Sink
}

func (s QueueSink) Alert(ctx context.Context, a Alert) {
	err := s.Queue.EnqueueOperatorAlert(queue.OperatorAlertPayload{
		Kind:     string(a.Kind),
		Provider: a.Provider,
		Task:     a.Task,
		Detail:   a.Detail,
		At:       a.At,
	})
	if err == nil {
		return
	}
	slog.WarnContext(ctx, "enqueue operator alert failed", "error", err, "kind", a.Kind)
	if s.Fallback != nil {
		s.Fallback.Alert(ctx, a)
	}
}
