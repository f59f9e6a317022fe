package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/davidbz/promptfmt/internal/domain"
	"github.com/davidbz/promptfmt/internal/observability"
)

// UpstreamChecker probes the completion endpoint.
type UpstreamChecker interface {
	CheckConnectionDetail(ctx context.Context) error
}

// Handler handles the health endpoints.
type Handler struct {
	checker  UpstreamChecker
	provider string
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(checker UpstreamChecker, providerName string) *Handler {
	return &Handler{
		checker:  checker,
		provider: providerName,
	}
}

// HandleHealth handles liveness requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// HandleUpstreamHealth probes the completion endpoint and reports the result.
func (h *Handler) HandleUpstreamHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.checker.CheckConnectionDetail(ctx); err != nil {
		writeJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{
			"status":     "unhealthy",
			"provider":   h.provider,
			"error_kind": string(domain.KindOf(err)),
			"error":      err.Error(),
		})
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"provider": h.provider,
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Already written status, can't change it, just log.
		observability.FromContext(ctx).Warn("failed to encode response", observability.Error(err))
	}
}
