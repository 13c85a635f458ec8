package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

// maxErrorBody caps how much of an error response is kept in the error message.
const maxErrorBody = 2048

func defaultHTTPClient() *http.Client {
	// the router bounds each attempt with its own context deadline
	return &http.Client{Timeout: 5 * time.Minute}
}

// postJSON sends body to url and decodes a 2xx response into out. Non-2xx
// responses and transport failures come back classified for provider id.
func postJSON(ctx context.Context, client *http.Client, id, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return provider.Auth(id, fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return provider.Auth(id, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return provider.Classify(id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusError(id, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// a body cut short mid-stream is a network problem, not a contract one
		return provider.Transient(id, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// StatusError classifies a non-2xx HTTP response. The status code decides the
// class; for ambiguous 400/403 answers the body wording is consulted, since
// some APIs report exhausted quotas that way.
func StatusError(id string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	err := fmt.Errorf("http %d: %s", resp.StatusCode, msg)

	class := provider.ClassifyStatus(resp.StatusCode)
	if class == provider.ClassAuth && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden) {
		if provider.ClassifyMessage(msg) == provider.ClassQuotaExceeded {
			class = provider.ClassQuotaExceeded
		}
	}
	return provider.NewError(class, id, err)
}
