package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"tree-checkout/internal/checkout"
	"tree-checkout/internal/model"
	"tree-checkout/internal/sizing"
	"tree-checkout/internal/steps"
)

// === Request / response bodies ===

// SelectRequest picks a product variant on the product screen or a step.
type SelectRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
}

// JumpRequest moves to a reached step.
type JumpRequest struct {
	Step int `json:"step"`
}

// DeliveryRequest sets delivery preferences. Empty fields clear.
type DeliveryRequest struct {
	Date         string `json:"date"`
	Slot         string `json:"slot"`
	Instructions string `json:"instructions"`
}

// LineRequest sets a line quantity; zero or less removes the line.
type LineRequest struct {
	Quantity int `json:"quantity"`
}

// SessionResponse is a session and its state.
type SessionResponse struct {
	ID    string         `json:"id"`
	State checkout.State `json:"state"`
}

// ActionResponse is the result of a screen action plus the state after it.
type ActionResponse struct {
	Outcome checkout.Outcome `json:"outcome"`
	State   checkout.State   `json:"state"`
}

// SizeInfo is one tree size with its table price.
type SizeInfo struct {
	Size           string `json:"size"`
	Price          int64  `json:"price,omitempty"`
	CallForPricing bool   `json:"call_for_pricing"`
}

// TreeSizes lists the sizes of one tree type.
type TreeSizes struct {
	TreeType string     `json:"tree_type"`
	Sizes    []SizeInfo `json:"sizes"`
}

// SizeTable returns the tree size table for display.
func SizeTable() []TreeSizes {
	types := sizing.TreeTypes()
	out := make([]TreeSizes, 0, len(types))
	for _, t := range types {
		ts := TreeSizes{TreeType: t}
		for _, size := range sizing.Sizes(t) {
			info := SizeInfo{Size: size}
			price, err := sizing.TreePrice(t, size)
			if errors.Is(err, model.ErrCallForPricing) {
				info.CallForPricing = true
			} else {
				info.Price = price
			}
			ts.Sizes = append(ts.Sizes, info)
		}
		out = append(out, ts)
	}
	return out
}

// === Session lifecycle ===

// handleCreateSession starts a checkout session.
// POST /sessions
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, orch, err := h.sessions.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, SessionResponse{ID: id, State: orch.State()})
}

// handleGetSession returns the session state.
// GET /sessions/{id}
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SessionResponse{ID: id, State: orch.State()})
}

// handleReset starts a new order in the same session.
// POST /sessions/{id}/reset
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "starting new order", slog.String("session_id", id))

	if err := orch.NewOrder(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SessionResponse{ID: id, State: orch.State()})
}

// === Product screen ===

// handleBaseProducts lists the trees offered.
// GET /sessions/{id}/base-products
func (h *Handler) handleBaseProducts(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	products, err := orch.BaseProducts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

// handleSelectBaseProduct chooses the tree and enters the step sequence.
// POST /sessions/{id}/base-product
func (h *Handler) handleSelectBaseProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req SelectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "selecting tree",
		slog.String("session_id", id),
		slog.String("product_id", req.ProductID),
		slog.String("variant_id", req.VariantID),
	)

	out, err := orch.SelectBaseProduct(r.Context(), req.ProductID, req.VariantID)
	h.writeAction(w, orch, out, err)
}

// === Step sequence ===

// handleStepProducts loads what the current step offers.
// GET /sessions/{id}/step/products
func (h *Handler) handleStepProducts(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	products, err := orch.Products(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

// handleStepSelect picks a product on the current step.
// POST /sessions/{id}/step/select
func (h *Handler) handleStepSelect(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req SelectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	out, err := orch.Select(r.Context(), req.ProductID, req.VariantID)
	h.writeAction(w, orch, out, err)
}

// handleStepNext advances, or hands off to checkout from the summary.
// POST /sessions/{id}/step/next
func (h *Handler) handleStepNext(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := orch.Next(r.Context())
	h.writeAction(w, orch, out, err)
}

// handleStepPrev goes back a step.
// POST /sessions/{id}/step/prev
func (h *Handler) handleStepPrev(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := orch.Back(r.Context())
	h.writeAction(w, orch, out, err)
}

// handleStepJump moves to a step already reached.
// POST /sessions/{id}/step/jump
func (h *Handler) handleStepJump(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req JumpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	out, err := orch.Jump(r.Context(), req.Step)
	h.writeAction(w, orch, out, err)
}

// handleDelivery records delivery date, slot and instructions.
// PUT /sessions/{id}/delivery
func (h *Handler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req DeliveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if err := orch.SetDelivery(req.Date, req.Slot, req.Instructions); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orch.State())
}

// === Cart lines and notices ===

// handleUpdateLine sets a line quantity.
// PATCH /sessions/{id}/lines/{lineID}
func (h *Handler) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req LineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if err := orch.UpdateLine(r.Context(), r.PathValue("lineID"), req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orch.State())
}

// handleRemoveLine deletes a line.
// DELETE /sessions/{id}/lines/{lineID}
func (h *Handler) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := orch.RemoveLine(r.Context(), r.PathValue("lineID")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orch.State())
}

// handleDismiss removes a non-blocking notice.
// DELETE /sessions/{id}/notices/{noticeID}
func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	orch, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !orch.Dismiss(r.PathValue("noticeID")) {
		h.writeError(w, model.NewNotFoundError("dismissible notice"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Static data ===

// handleSizes returns the tree size table.
// GET /sizes
func (h *Handler) handleSizes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"trees": SizeTable()})
}

// handleDeliverySlots returns the delivery time preferences.
// GET /delivery-slots
func (h *Handler) handleDeliverySlots(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"slots":       model.DeliverySlots,
		"date_layout": steps.DateLayout,
	})
}

// writeAction answers a screen action with its outcome and the new state.
func (h *Handler) writeAction(w http.ResponseWriter, orch *checkout.Orchestrator, out checkout.Outcome, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ActionResponse{Outcome: out, State: orch.State()})
}
