// Package handler provides the HTTP and MCP surface of the checkout widget.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tree-checkout/internal/model"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions *Sessions
	logger   *slog.Logger
	// ready, when set, backs the health check (e.g. a Redis ping).
	ready func(ctx context.Context) error
}

// New creates a new Handler over the session registry.
func New(sessions *Sessions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		logger:   logger,
	}
}

// WithReadiness sets the dependency probe used by the health check.
func (h *Handler) WithReadiness(ready func(ctx context.Context) error) *Handler {
	h.ready = ready
	return h
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Session lifecycle
	mux.HandleFunc("POST /sessions", h.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", h.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/reset", h.handleReset)

	// Product screen
	mux.HandleFunc("GET /sessions/{id}/base-products", h.handleBaseProducts)
	mux.HandleFunc("POST /sessions/{id}/base-product", h.handleSelectBaseProduct)

	// Step sequence
	mux.HandleFunc("GET /sessions/{id}/step/products", h.handleStepProducts)
	mux.HandleFunc("POST /sessions/{id}/step/select", h.handleStepSelect)
	mux.HandleFunc("POST /sessions/{id}/step/next", h.handleStepNext)
	mux.HandleFunc("POST /sessions/{id}/step/prev", h.handleStepPrev)
	mux.HandleFunc("POST /sessions/{id}/step/jump", h.handleStepJump)
	mux.HandleFunc("PUT /sessions/{id}/delivery", h.handleDelivery)

	// Cart lines and notices
	mux.HandleFunc("PATCH /sessions/{id}/lines/{lineID}", h.handleUpdateLine)
	mux.HandleFunc("DELETE /sessions/{id}/lines/{lineID}", h.handleRemoveLine)
	mux.HandleFunc("DELETE /sessions/{id}/notices/{noticeID}", h.handleDismiss)

	// Static catalog data
	mux.HandleFunc("GET /sizes", h.handleSizes)
	mux.HandleFunc("GET /delivery-slots", h.handleDeliverySlots)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth returns service health status.
// GET /health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Warn("health check failed", slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.sessions.Len(),
	})
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// The message is the buyer-facing sentence; raw store payloads never leave.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if errors.As(err, &apiErr) {
		// Found APIError in error chain - use it
	} else {
		// Wrap unexpected errors
		apiErr = model.NewInternalError(err)
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:      apiErr.Code,
			Message:   model.UserMessage(apiErr),
			Reasons:   apiErr.Reasons,
			Retryable: model.Retryable(apiErr),
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Reasons   []string `json:"reasons,omitempty"`
	Retryable bool     `json:"retryable"`
}

// MaxRequestBodySize limits JSON request bodies to 64KB.
const MaxRequestBodySize = 64 << 10

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
