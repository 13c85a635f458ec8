package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/factrouter/internal/analysis"
	"github.com/nikhilbhutani/factrouter/internal/api/handlers"
	"github.com/nikhilbhutani/factrouter/internal/config"
	"github.com/nikhilbhutani/factrouter/internal/format"
	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/internal/quota"
	"github.com/nikhilbhutani/factrouter/internal/router"
)

type fakeAnalyzer struct {
	err     error
	lastReq router.Request
	audio   []byte
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req router.Request) (*format.Payload, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &format.Payload{ResultID: "r-1", ProviderID: "gemini-flash", Language: req.Language, Mode: req.Mode, Chunks: []string{"ok"}}, nil
}

func (f *fakeAnalyzer) Detail(_ context.Context, id string) (*format.Payload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &format.Payload{ResultID: id, Mode: provider.ModeDetail, Chunks: []string{"detail"}}, nil
}

func (f *fakeAnalyzer) Speak(_ context.Context, text, lang string) (*router.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &router.Result{ProviderID: "piper-local", Audio: f.audio, ContentType: "audio/wav"}, nil
}

func (f *fakeAnalyzer) FailurePayload(lang string, err error) format.Payload {
	return format.New(0).Message(lang, func(l format.Labels) string {
		var missing *router.MissingCredentialsError
		switch {
		case errors.As(err, &missing):
			return l.Unavailable
		case errors.Is(err, analysis.ErrResultNotFound):
			return l.Expired
		}
		return l.Failure
	})
}

var testDay = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

type fakeStatus struct{}

func (fakeStatus) Status(context.Context) ([]router.ProviderStatus, error) {
	return []router.ProviderStatus{{ID: "gemini-flash", Priority: 1, Eligible: true, ExhaustedToday: true, ExhaustedOn: "2026-03-31"}}, nil
}

func (fakeStatus) Today() quota.Date { return quota.DateOf(testDay) }

func newServer(t *testing.T, a *fakeAnalyzer, mutate func(*Deps)) *httptest.Server {
	t.Helper()
	deps := Deps{
		Analyzer: a,
		Status:   fakeStatus{},
		Config: config.APIConfig{
			KeyHeader:    "X-API-Key",
			RateLimitRPS: 100,
			RateBurst:    100,
			CORSOrigins:  []string{"*"},
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := httptest.NewServer(NewRouter(deps).Setup())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string, hdr ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAnalyze_OK(t *testing.T) {
	a := &fakeAnalyzer{}
	srv := newServer(t, a, nil)

	resp := post(t, srv.URL+"/api/v1/analyze", `{"content":"claim X","language":"fa","task_type":"fact_check","mode":"summary"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "r-1", body["result_id"])
	assert.Equal(t, provider.TaskFactCheck, a.lastReq.Task)
	assert.Equal(t, provider.ModeSummary, a.lastReq.Mode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestAnalyze_Validation(t *testing.T) {
	srv := newServer(t, &fakeAnalyzer{}, nil)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing content", `{"task_type":"FACT_CHECK"}`, "content"},
		{"missing task", `{"content":"x"}`, "task_type"},
		{"unknown task", `{"content":"x","task_type":"POEM"}`, "task_type"},
		{"bad mode", `{"content":"x","task_type":"ANALYSIS","mode":"LONG"}`, "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/api/v1/analyze", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			fields, ok := decodeBody(t, resp)["fields"].(map[string]any)
			require.True(t, ok)
			assert.Contains(t, fields, tt.field)
		})
	}

	resp := post(t, srv.URL+"/api/v1/analyze", `{"content":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	fa, _ := format.LabelsFor("fa")
	tests := []struct {
		name   string
		err    error
		status int
		text   string
	}{
		{"terminal", &router.TerminalFailure{Task: provider.TaskFactCheck, Attempts: []router.Attempt{{Provider: "gemini-flash", Outcome: router.OutcomeAuth, Error: "401 key revoked"}}}, http.StatusBadGateway, fa.Failure},
		{"missing credentials", &router.MissingCredentialsError{Task: provider.TaskFactCheck}, http.StatusServiceUnavailable, fa.Unavailable},
		{"invalid", router.ErrInvalidRequest, http.StatusBadRequest, ""},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, fa.Failure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, &fakeAnalyzer{err: tt.err}, nil)
			resp := post(t, srv.URL+"/api/v1/analyze", `{"content":"claim X","language":"fa","task_type":"FACT_CHECK"}`)
			require.Equal(t, tt.status, resp.StatusCode)

			body := decodeBody(t, resp)
			if tt.text != "" {
				assert.Equal(t, []any{tt.text}, body["chunks"])
			}
			raw, _ := json.Marshal(body)
			assert.NotContains(t, string(raw), "401 key revoked")
			assert.NotContains(t, string(raw), "gemini-flash")
		})
	}
}

func TestDetail(t *testing.T) {
	srv := newServer(t, &fakeAnalyzer{}, nil)
	resp := post(t, srv.URL+"/api/v1/analyze/r-9/detail", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "r-9", decodeBody(t, resp)["result_id"])

	srv = newServer(t, &fakeAnalyzer{err: analysis.ErrResultNotFound}, nil)
	resp = post(t, srv.URL+"/api/v1/analyze/gone/detail?language=fa", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	fa, _ := format.LabelsFor("fa")
	body := decodeBody(t, resp)
	assert.Equal(t, []any{fa.Expired}, body["chunks"])
	assert.Equal(t, true, body["rtl"])
}

func TestSpeech(t *testing.T) {
	srv := newServer(t, &fakeAnalyzer{audio: []byte("RIFFdata")}, nil)

	resp := post(t, srv.URL+"/api/v1/speech", `{"text":"سلام","language":"fa"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	assert.Equal(t, "piper-local", resp.Header.Get("X-Provider-ID"))

	resp = post(t, srv.URL+"/api/v1/speech", `{"language":"fa"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProviders_APIKey(t *testing.T) {
	srv := newServer(t, &fakeAnalyzer{}, func(d *Deps) { d.Config.Key = "operator-key" })

	resp, err := http.Get(srv.URL + "/api/v1/providers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/providers", nil)
	req.Header.Set("X-API-Key", "operator-key")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "2026-03-31", body["today"])
	providers := body["providers"].([]any)
	require.Len(t, providers, 1)
	assert.Equal(t, true, providers[0].(map[string]any)["exhausted_today"])
}

func TestRateLimit(t *testing.T) {
	srv := newServer(t, &fakeAnalyzer{}, func(d *Deps) {
		d.Config.RateLimitRPS = 0.001
		d.Config.RateBurst = 2
	})

	body := `{"content":"x","task_type":"ANALYSIS"}`
	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/api/v1/analyze", body).StatusCode)
	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/api/v1/analyze", body).StatusCode)
	resp := post(t, srv.URL+"/api/v1/analyze", body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// health is never limited
	hr, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	hr.Body.Close()
	assert.Equal(t, http.StatusOK, hr.StatusCode)
}

func TestReadyz(t *testing.T) {
	srv := newServer(t, &fakeAnalyzer{}, func(d *Deps) {
		d.Checks = []handlers.Check{
			{Name: "quota_ledger", Ping: func(context.Context) error { return nil }},
			{Name: "redis", Ping: func(context.Context) error { return errors.New("dial tcp: refused") }},
		}
	})

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	checks := decodeBody(t, resp)["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["quota_ledger"])
	assert.Contains(t, checks["redis"], "unhealthy")
}

func TestMetricsAndCORS(t *testing.T) {
	srv := newServer(t, &fakeAnalyzer{}, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/analyze", nil)
	req.Header.Set("Origin", "https://bot.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
