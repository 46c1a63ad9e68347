// Package gateway defines the storefront cart/catalog interface the sync
// engine and step sequencer depend on.
package gateway

import (
	"context"
	"errors"
	"time"

	"tree-checkout/internal/model"
)

// Gateway is a thin, stateless client for the remote storefront.
// Every call takes explicit identifiers; there is no hidden cart reference.
//
// Implementations classify failures into the model error taxonomy:
// TransportError (network, 5xx, throttling, timeout), RemoteValidationError
// (the store rejected the input) and NotFoundError (cart or product absent).
// Gateways never retry; retry policy belongs to the sync engine.
type Gateway interface {
	// CreateCart creates a cart holding one line and returns the store's cart id.
	CreateCart(ctx context.Context, variantID string, qty int) (string, error)

	// AddLine merges qty of variantID into the cart.
	AddLine(ctx context.Context, cartID, variantID string, qty int) error

	// UpdateLine sets the quantity of an existing line.
	UpdateLine(ctx context.Context, cartID, lineID string, qty int) error

	// RemoveLine deletes a line from the cart.
	RemoveLine(ctx context.Context, cartID, lineID string) error

	// GetCart reads the full cart. An absent or expired cart is a NotFoundError.
	GetCart(ctx context.Context, cartID string) (*model.CartSnapshot, error)

	// GetProduct fetches a product by store id.
	GetProduct(ctx context.Context, productID string) (*model.Product, error)

	// GetProductByHandle fetches a product by URL handle.
	GetProductByHandle(ctx context.Context, handle string) (*model.Product, error)

	// GetProductsByCollection lists the products of a collection.
	GetProductsByCollection(ctx context.Context, collectionID string) ([]model.Product, error)

	// SetCartNote replaces the cart's free-text note.
	SetCartNote(ctx context.Context, cartID, note string) error
}

// DefaultTimeout bounds every gateway call unless configured otherwise.
const DefaultTimeout = 10 * time.Second

// WithTimeout wraps g so each call runs under its own deadline. A call that
// outlives the deadline fails with a TransportError whose reason is "timeout".
func WithTimeout(g Gateway, d time.Duration) Gateway {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutGateway{next: g, timeout: d}
}

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// bound runs fn under the per-call deadline and maps deadline expiry.
func bound[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && !errors.Is(err, model.ErrTransport) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, model.NewTransportError("timeout", err)
	}
	return v, err
}

func (t *timeoutGateway) CreateCart(ctx context.Context, variantID string, qty int) (string, error) {
	return bound(ctx, t.timeout, func(ctx context.Context) (string, error) {
		return t.next.CreateCart(ctx, variantID, qty)
	})
}

func (t *timeoutGateway) AddLine(ctx context.Context, cartID, variantID string, qty int) error {
	_, err := bound(ctx, t.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.next.AddLine(ctx, cartID, variantID, qty)
	})
	return err
}

func (t *timeoutGateway) UpdateLine(ctx context.Context, cartID, lineID string, qty int) error {
	_, err := bound(ctx, t.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.next.UpdateLine(ctx, cartID, lineID, qty)
	})
	return err
}

func (t *timeoutGateway) RemoveLine(ctx context.Context, cartID, lineID string) error {
	_, err := bound(ctx, t.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.next.RemoveLine(ctx, cartID, lineID)
	})
	return err
}

func (t *timeoutGateway) GetCart(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	return bound(ctx, t.timeout, func(ctx context.Context) (*model.CartSnapshot, error) {
		return t.next.GetCart(ctx, cartID)
	})
}

func (t *timeoutGateway) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	return bound(ctx, t.timeout, func(ctx context.Context) (*model.Product, error) {
		return t.next.GetProduct(ctx, productID)
	})
}

func (t *timeoutGateway) GetProductByHandle(ctx context.Context, handle string) (*model.Product, error) {
	return bound(ctx, t.timeout, func(ctx context.Context) (*model.Product, error) {
		return t.next.GetProductByHandle(ctx, handle)
	})
}

func (t *timeoutGateway) GetProductsByCollection(ctx context.Context, collectionID string) ([]model.Product, error) {
	return bound(ctx, t.timeout, func(ctx context.Context) ([]model.Product, error) {
		return t.next.GetProductsByCollection(ctx, collectionID)
	})
}

func (t *timeoutGateway) SetCartNote(ctx context.Context, cartID, note string) error {
	_, err := bound(ctx, t.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.next.SetCartNote(ctx, cartID, note)
	})
	return err
}

var _ Gateway = (*timeoutGateway)(nil)
