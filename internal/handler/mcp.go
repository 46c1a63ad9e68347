// MCP transport handler using the official MCP Go SDK.
// Exposes the widget session operations as MCP tools.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"tree-checkout/internal/checkout"
	"tree-checkout/internal/model"
)

// === MCP Tool Input Types ===

// SessionInput identifies a session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"checkout session ID"`
}

// SelectInput picks a product variant within a session.
type SelectInput struct {
	SessionID string `json:"session_id" jsonschema:"checkout session ID"`
	ProductID string `json:"product_id" jsonschema:"storefront product ID"`
	VariantID string `json:"variant_id" jsonschema:"storefront variant ID"`
}

// JumpInput moves to a reached step.
type JumpInput struct {
	SessionID string `json:"session_id" jsonschema:"checkout session ID"`
	Step      int    `json:"step" jsonschema:"zero-based step index"`
}

// DeliveryInput sets delivery preferences.
type DeliveryInput struct {
	SessionID    string `json:"session_id" jsonschema:"checkout session ID"`
	Date         string `json:"date,omitempty" jsonschema:"delivery date as YYYY-MM-DD"`
	Slot         string `json:"slot,omitempty" jsonschema:"delivery time slot: morning, afternoon, evening or anytime"`
	Instructions string `json:"instructions,omitempty" jsonschema:"delivery instructions"`
}

// LineInput addresses a cart line.
type LineInput struct {
	SessionID string `json:"session_id" jsonschema:"checkout session ID"`
	LineID    string `json:"line_id" jsonschema:"cart line ID"`
	Quantity  int    `json:"quantity,omitempty" jsonschema:"new quantity; zero removes the line"`
}

// NoticeInput addresses a notice.
type NoticeInput struct {
	SessionID string `json:"session_id" jsonschema:"checkout session ID"`
	NoticeID  string `json:"notice_id" jsonschema:"notice ID"`
}

// NoInput is for tools without arguments.
type NoInput struct{}

// NewMCPServer creates an MCP server with the session tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "tree-checkout",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Christmas tree checkout. Create a session, choose a tree, " +
				"walk the add-on steps and proceed to checkout from the summary.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_session",
		Description: "Start a checkout session. Returns its ID and state.",
	}, h.mcpCreateSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session",
		Description: "Get the current state of a checkout session.",
	}, h.mcpGetSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_base_products",
		Description: "List the trees offered on the product screen.",
	}, h.mcpBaseProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_base_product",
		Description: "Choose the tree variant and enter the add-on steps.",
	}, h.mcpSelectBaseProduct)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_step_products",
		Description: "List the products offered on the current step.",
	}, h.mcpStepProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_step_product",
		Description: "Add a product from the current step to the cart.",
	}, h.mcpSelectStepProduct)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "next_step",
		Description: "Advance to the next step. From the order summary, hands off to checkout.",
	}, h.mcpNext)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "previous_step",
		Description: "Go back one step, or to the product screen from the first step.",
	}, h.mcpPrev)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "jump_to_step",
		Description: "Move to a step that was already reached.",
	}, h.mcpJump)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_delivery",
		Description: "Set the delivery date, time slot and instructions. Empty values clear.",
	}, h.mcpSetDelivery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_line",
		Description: "Change a cart line's quantity. Zero removes it.",
	}, h.mcpUpdateLine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_line",
		Description: "Remove a cart line.",
	}, h.mcpRemoveLine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "dismiss_notice",
		Description: "Dismiss a non-blocking notice.",
	}, h.mcpDismiss)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "new_order",
		Description: "Forget the cart and start over in the same session.",
	}, h.mcpNewOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sizes",
		Description: "List tree types and sizes with table prices.",
	}, h.mcpSizes)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpCreateSession(ctx context.Context, _ *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	id, orch, err := h.sessions.Create(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(SessionResponse{ID: id, State: orch.State()})
}

func (h *Handler) mcpGetSession(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpResult(SessionResponse{ID: input.SessionID, State: orch.State()})
}

func (h *Handler) mcpBaseProducts(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	products, err := orch.BaseProducts(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(map[string]any{"products": products})
}

func (h *Handler) mcpSelectBaseProduct(ctx context.Context, _ *mcp.CallToolRequest, input SelectInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	out, err := orch.SelectBaseProduct(ctx, input.ProductID, input.VariantID)
	return h.mcpAction(orch, out, err)
}

func (h *Handler) mcpStepProducts(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	products, err := orch.Products(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(products)
}

func (h *Handler) mcpSelectStepProduct(ctx context.Context, _ *mcp.CallToolRequest, input SelectInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	out, err := orch.Select(ctx, input.ProductID, input.VariantID)
	return h.mcpAction(orch, out, err)
}

func (h *Handler) mcpNext(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	out, err := orch.Next(ctx)
	return h.mcpAction(orch, out, err)
}

func (h *Handler) mcpPrev(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	out, err := orch.Back(ctx)
	return h.mcpAction(orch, out, err)
}

func (h *Handler) mcpJump(ctx context.Context, _ *mcp.CallToolRequest, input JumpInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	out, err := orch.Jump(ctx, input.Step)
	return h.mcpAction(orch, out, err)
}

func (h *Handler) mcpSetDelivery(ctx context.Context, _ *mcp.CallToolRequest, input DeliveryInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := orch.SetDelivery(input.Date, input.Slot, input.Instructions); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(orch.State())
}

func (h *Handler) mcpUpdateLine(ctx context.Context, _ *mcp.CallToolRequest, input LineInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := orch.UpdateLine(ctx, input.LineID, input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(orch.State())
}

func (h *Handler) mcpRemoveLine(ctx context.Context, _ *mcp.CallToolRequest, input LineInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := orch.RemoveLine(ctx, input.LineID); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(orch.State())
}

func (h *Handler) mcpDismiss(ctx context.Context, _ *mcp.CallToolRequest, input NoticeInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if !orch.Dismiss(input.NoticeID) {
		return nil, nil, h.mcpError(model.NewNotFoundError("dismissible notice"))
	}
	return h.mcpResult(orch.State())
}

func (h *Handler) mcpNewOrder(ctx context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	orch, err := h.mcpSession(ctx, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := orch.NewOrder(ctx); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(SessionResponse{ID: input.SessionID, State: orch.State()})
}

func (h *Handler) mcpSizes(_ context.Context, _ *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, any, error) {
	return h.mcpResult(map[string]any{"trees": SizeTable()})
}

// === Helpers ===

func (h *Handler) mcpSession(ctx context.Context, id string) (*checkout.Orchestrator, error) {
	if id == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	orch, err := h.sessions.Get(ctx, id)
	if err != nil {
		return nil, h.mcpError(err)
	}
	return orch, nil
}

func (h *Handler) mcpAction(orch *checkout.Orchestrator, out checkout.Outcome, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpResult(ActionResponse{Outcome: out, State: orch.State()})
}

// mcpResult returns v as JSON text content.
func (h *Handler) mcpResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// mcpError converts errors to MCP-friendly errors carrying the buyer-facing
// message.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, model.UserMessage(apiErr))
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
