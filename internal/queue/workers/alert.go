package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/factrouter/internal/queue"
)

// EventOperatorAlert is the webhook event name for delivered alerts.
const EventOperatorAlert = "operator.alert"

// Deliverer is the slice of webhook.Dispatcher the worker needs.
type Deliverer interface {
	Enabled() bool
	Deliver(ctx context.Context, event string, payload any) (string, error)
}

type AlertWorker struct {
	ops     *slog.Logger
	webhook Deliverer
}

func NewAlertWorker(ops *slog.Logger, webhook Deliverer) *AlertWorker {
	if ops == nil {
		ops = slog.Default()
	}
	return &AlertWorker{ops: ops, webhook: webhook}
}

// ProcessTask records the alert in the operator log and forwards it to the
// webhook. A failed delivery is returned so asynq retries the task.
func (w *AlertWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.OperatorAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	if retried == 0 {
		w.ops.WarnContext(ctx, "operator alert",
			"kind", payload.Kind,
			"provider", payload.Provider,
			"task", payload.Task,
			"detail", payload.Detail,
			"at", payload.At)
	}

	if w.webhook == nil || !w.webhook.Enabled() {
		return nil
	}
	id, err := w.webhook.Deliver(ctx, EventOperatorAlert, payload)
	if err != nil {
		slog.WarnContext(ctx, "alert webhook delivery failed", "delivery_id", id, "kind", payload.Kind, "retry", retried, "error", err)
		return fmt.Errorf("deliver alert: %w", err)
	}
	slog.InfoContext(ctx, "alert delivered", "delivery_id", id, "kind", payload.Kind)
	return nil
}
