package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/factrouter/internal/config"
	"github.com/nikhilbhutani/factrouter/internal/logging"
	"github.com/nikhilbhutani/factrouter/internal/queue"
	"github.com/nikhilbhutani/factrouter/internal/queue/workers"
	"github.com/nikhilbhutani/factrouter/internal/webhook"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log)
	if !cfg.Redis.Enabled() {
		slog.Error("worker needs REDIS_ADDR")
		os.Exit(1)
	}

	ops, opsCloser, err := logging.Operator(cfg.Log)
	if err != nil {
		slog.Error("failed to open operator log", "error", err)
		os.Exit(1)
	}
	defer opsCloser.Close()

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger:   slogAdapter{},
			LogLevel: asynq.WarnLevel,
		},
	)

	dispatcher := webhook.NewDispatcher(cfg.Alerts.WebhookURL, cfg.Alerts.WebhookSecret, nil)
	if !dispatcher.Enabled() {
		slog.Warn("ALERT_WEBHOOK_URL not set, alerts only go to the operator log")
	}

	registry := queue.NewHandlersRegistry()
	alertWorker := workers.NewAlertWorker(ops, dispatcher)
	registry.RegisterFunc(queue.TypeOperatorAlert, alertWorker.ProcessTask)

	slog.Info("starting worker", "concurrency", 4)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}

// slogAdapter routes asynq's own logging through slog.
type slogAdapter struct{}

func (slogAdapter) Debug(args ...interface{}) { slog.Debug(fmt.Sprint(args...)) }
func (slogAdapter) Info(args ...interface{})  { slog.Info(fmt.Sprint(args...)) }
func (slogAdapter) Warn(args ...interface{})  { slog.Warn(fmt.Sprint(args...)) }
func (slogAdapter) Error(args ...interface{}) { slog.Error(fmt.Sprint(args...)) }
func (slogAdapter) Fatal(args ...interface{}) {
	slog.Error(fmt.Sprint(args...))
	os.Exit(1)
}
