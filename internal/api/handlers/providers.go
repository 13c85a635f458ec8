package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/factrouter/internal/quota"
	"github.com/nikhilbhutani/factrouter/internal/router"
)

// StatusSource is implemented by router.Router.
type StatusSource interface {
	Status(ctx context.Context) ([]router.ProviderStatus, error)
	Today() quota.Date
}

type ProvidersHandler struct {
	src StatusSource
}

func NewProvidersHandler(src StatusSource) *ProvidersHandler {
	return &ProvidersHandler{src: src}
}

// List handles GET /providers, the operator view of the chain.
func (h *ProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	status, err := h.src.Status(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "provider status failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"today":     h.src.Today(),
		"providers": status,
	})
}
