// Package webhook delivers operator alerts to an HTTP endpoint. Every body is
// signed with HMAC-SHA256 so the receiver can check it came from us.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderSignature = "X-Webhook-Signature"
	HeaderDelivery  = "X-Webhook-ID"
)

// ErrNotConfigured is returned by Deliver when no URL is set.
var ErrNotConfigured = errors.New("webhook url not configured")

// StatusError is a non-2xx answer from the receiver.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook answered %d: %s", e.Status, e.Body)
}

type Dispatcher struct {
	url        string
	secret     string
	httpClient *http.Client
}

func NewDispatcher(url, secret string, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{url: url, secret: secret, httpClient: client}
}

// Enabled reports whether a URL was configured.
func (d *Dispatcher) Enabled() bool { return d != nil && d.url != "" }

// Deliver posts payload as JSON and returns the delivery id. Retrying is left
// to the caller (the asynq task).
func (d *Dispatcher) Deliver(ctx context.Context, event string, payload any) (string, error) {
	if !d.Enabled() {
		return "", ErrNotConfigured
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal webhook payload: %w", err)
	}

	id := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return id, fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderSignature, Sign(body, d.secret))
	req.Header.Set(HeaderDelivery, id)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return id, fmt.Errorf("webhook delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return id, &StatusError{Status: resp.StatusCode, Body: string(snippet)}
	}

	slog.DebugContext(ctx, "webhook delivered", "delivery_id", id, "event", event, "status", resp.StatusCode)
	return id, nil
}

// Sign returns "sha256=<hex hmac>" of payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

// Verify checks a signature produced by Sign.
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
