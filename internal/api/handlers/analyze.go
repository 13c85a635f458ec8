package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/factrouter/internal/analysis"
	"github.com/nikhilbhutani/factrouter/internal/format"
	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/internal/router"
)

// maxBody caps request bodies; claims are short texts.
const maxBody = 1 << 20

// Analyzer is implemented by analysis.Service.
type Analyzer interface {
	Analyze(ctx context.Context, req router.Request) (*format.Payload, error)
	Detail(ctx context.Context, id string) (*format.Payload, error)
	Speak(ctx context.Context, text, language string) (*router.Result, error)
	FailurePayload(language string, err error) format.Payload
}

type AnalyzeHandler struct {
	svc Analyzer
}

func NewAnalyzeHandler(svc Analyzer) *AnalyzeHandler {
	return &AnalyzeHandler{svc: svc}
}

type analyzeRequest struct {
	Content  string `json:"content" validate:"required,max=20000"`
	Language string `json:"language" validate:"max=35"`
	TaskType string `json:"task_type" validate:"required"`
	Mode     string `json:"mode" validate:"omitempty,oneof=SUMMARY DETAIL summary detail"`
}

type speechRequest struct {
	Text     string `json:"text" validate:"required,max=4096"`
	Language string `json:"language" validate:"max=35"`
}

// failureResponse is the only thing a caller sees when routing fails.
type failureResponse struct {
	Error string `json:"error"`
	format.Payload
}

// Analyze handles POST /analyze.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeRequest
	if !decode(w, r, &body) {
		return
	}
	task, err := provider.ParseTaskType(body.TaskType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "validation failed",
			"fields": map[string]string{"task_type": "task_type must be FACT_CHECK or ANALYSIS"},
		})
		return
	}

	payload, err := h.svc.Analyze(r.Context(), router.Request{
		Content:  body.Content,
		Language: body.Language,
		Task:     task,
		Mode:     provider.Mode(strings.ToUpper(body.Mode)),
	})
	if err != nil {
		h.fail(w, r, body.Language, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Detail handles POST /analyze/{id}/detail. The optional language query
// parameter only localizes the not-found notice.
func (h *AnalyzeHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	payload, err := h.svc.Detail(r.Context(), id)
	if err != nil {
		h.fail(w, r, r.URL.Query().Get("language"), err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Speech handles POST /speech and answers with the audio bytes.
func (h *AnalyzeHandler) Speech(w http.ResponseWriter, r *http.Request) {
	var body speechRequest
	if !decode(w, r, &body) {
		return
	}

	res, err := h.svc.Speak(r.Context(), body.Text, body.Language)
	if err != nil {
		h.fail(w, r, body.Language, err)
		return
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Provider-ID", res.ProviderID)
	w.WriteHeader(http.StatusOK)
	w.Write(res.Audio)
}

func (h *AnalyzeHandler) fail(w http.ResponseWriter, r *http.Request, lang string, err error) {
	var (
		missing  *router.MissingCredentialsError
		terminal *router.TerminalFailure
		status   int
		code     string
	)
	switch {
	case errors.Is(err, router.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.As(err, &missing):
		status, code = http.StatusServiceUnavailable, "unavailable"
	case errors.As(err, &terminal):
		status, code = http.StatusBadGateway, "failed"
	case errors.Is(err, analysis.ErrResultNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		// the client went away; nobody reads the answer
		return
	default:
		status, code = http.StatusInternalServerError, "internal"
	}

	if status >= http.StatusInternalServerError && terminal == nil && missing == nil {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, failureResponse{Error: code, Payload: h.svc.FailurePayload(lang, err)})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	if err := validateStruct(dst); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "validation failed", "fields": verr.Fields})
		} else {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return false
	}
	return true
}
