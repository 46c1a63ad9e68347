package gateway

import (
	"context"

	"tree-checkout/internal/model"
)

// Mock implements Gateway for testing.
// Each method can be configured via function fields.
type Mock struct {
	CreateCartFunc              func(ctx context.Context, variantID string, qty int) (string, error)
	AddLineFunc                 func(ctx context.Context, cartID, variantID string, qty int) error
	UpdateLineFunc              func(ctx context.Context, cartID, lineID string, qty int) error
	RemoveLineFunc              func(ctx context.Context, cartID, lineID string) error
	GetCartFunc                 func(ctx context.Context, cartID string) (*model.CartSnapshot, error)
	GetProductFunc              func(ctx context.Context, productID string) (*model.Product, error)
	GetProductByHandleFunc      func(ctx context.Context, handle string) (*model.Product, error)
	GetProductsByCollectionFunc func(ctx context.Context, collectionID string) ([]model.Product, error)
	SetCartNoteFunc             func(ctx context.Context, cartID, note string) error
}

// CreateCart calls the configured CreateCartFunc or returns an error.
func (m *Mock) CreateCart(ctx context.Context, variantID string, qty int) (string, error) {
	if m.CreateCartFunc != nil {
		return m.CreateCartFunc(ctx, variantID, qty)
	}
	return "", model.NewInternalError(nil)
}

// AddLine calls the configured AddLineFunc or returns an error.
func (m *Mock) AddLine(ctx context.Context, cartID, variantID string, qty int) error {
	if m.AddLineFunc != nil {
		return m.AddLineFunc(ctx, cartID, variantID, qty)
	}
	return model.NewNotFoundError("cart")
}

// UpdateLine calls the configured UpdateLineFunc or returns an error.
func (m *Mock) UpdateLine(ctx context.Context, cartID, lineID string, qty int) error {
	if m.UpdateLineFunc != nil {
		return m.UpdateLineFunc(ctx, cartID, lineID, qty)
	}
	return model.NewNotFoundError("cart")
}

// RemoveLine calls the configured RemoveLineFunc or returns an error.
func (m *Mock) RemoveLine(ctx context.Context, cartID, lineID string) error {
	if m.RemoveLineFunc != nil {
		return m.RemoveLineFunc(ctx, cartID, lineID)
	}
	return model.NewNotFoundError("cart")
}

// GetCart calls the configured GetCartFunc or returns an error.
func (m *Mock) GetCart(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	if m.GetCartFunc != nil {
		return m.GetCartFunc(ctx, cartID)
	}
	return nil, model.NewNotFoundError("cart")
}

// GetProduct calls the configured GetProductFunc or returns an error.
func (m *Mock) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, productID)
	}
	return nil, model.NewNotFoundError("product")
}

// GetProductByHandle calls the configured GetProductByHandleFunc or returns an error.
func (m *Mock) GetProductByHandle(ctx context.Context, handle string) (*model.Product, error) {
	if m.GetProductByHandleFunc != nil {
		return m.GetProductByHandleFunc(ctx, handle)
	}
	return nil, model.NewNotFoundError("product")
}

// GetProductsByCollection calls the configured func or returns an empty list.
func (m *Mock) GetProductsByCollection(ctx context.Context, collectionID string) ([]model.Product, error) {
	if m.GetProductsByCollectionFunc != nil {
		return m.GetProductsByCollectionFunc(ctx, collectionID)
	}
	return nil, nil
}

// SetCartNote calls the configured SetCartNoteFunc or succeeds.
func (m *Mock) SetCartNote(ctx context.Context, cartID, note string) error {
	if m.SetCartNoteFunc != nil {
		return m.SetCartNoteFunc(ctx, cartID, note)
	}
	return nil
}

// Verify Mock implements Gateway interface at compile time.
var _ Gateway = (*Mock)(nil)
