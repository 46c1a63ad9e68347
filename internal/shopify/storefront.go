package shopify

import (
	"context"

	"tree-checkout/internal/gateway"
	"tree-checkout/internal/model"
)

// === Cart Operations ===

// CreateCart creates a cart with a single line.
func (c *Client) CreateCart(ctx context.Context, variantID string, qty int) (string, error) {
	data, err := execute[cartCreateData](ctx, c, "cartCreate", mutationCartCreate, map[string]any{
		"input": map[string]any{
			"lines": []map[string]any{{"merchandiseId": variantID, "quantity": qty}},
		},
	})
	if err != nil {
		return "", err
	}
	if err := classifyUserErrors(data.CartCreate.UserErrors); err != nil {
		return "", err
	}
	if data.CartCreate.Cart == nil || data.CartCreate.Cart.ID == "" {
		return "", model.NewRemoteValidationError(nil)
	}
	return data.CartCreate.Cart.ID, nil
}

// AddLine adds qty of a variant to the cart.
func (c *Client) AddLine(ctx context.Context, cartID, variantID string, qty int) error {
	data, err := execute[cartLinesAddData](ctx, c, "cartLinesAdd", mutationCartLinesAdd, map[string]any{
		"cartId": cartID,
		"lines":  []map[string]any{{"merchandiseId": variantID, "quantity": qty}},
	})
	if err != nil {
		return err
	}
	return mutationResult(data.CartLinesAdd)
}

// UpdateLine sets a line's quantity.
func (c *Client) UpdateLine(ctx context.Context, cartID, lineID string, qty int) error {
	data, err := execute[cartLinesUpdateData](ctx, c, "cartLinesUpdate", mutationCartLinesUpdate, map[string]any{
		"cartId": cartID,
		"lines":  []map[string]any{{"id": lineID, "quantity": qty}},
	})
	if err != nil {
		return err
	}
	return mutationResult(data.CartLinesUpdate)
}

// RemoveLine removes a line.
func (c *Client) RemoveLine(ctx context.Context, cartID, lineID string) error {
	data, err := execute[cartLinesRemoveData](ctx, c, "cartLinesRemove", mutationCartLinesRemove, map[string]any{
		"cartId":  cartID,
		"lineIds": []string{lineID},
	})
	if err != nil {
		return err
	}
	return mutationResult(data.CartLinesRemove)
}

// SetCartNote overwrites the cart note.
func (c *Client) SetCartNote(ctx context.Context, cartID, note string) error {
	data, err := execute[cartNoteUpdateData](ctx, c, "cartNoteUpdate", mutationCartNoteUpdate, map[string]any{
		"cartId": cartID,
		"note":   note,
	})
	if err != nil {
		return err
	}
	return mutationResult(data.CartNoteUpdate)
}

// GetCart reads the cart. Expired or unknown carts come back as null.
func (c *Client) GetCart(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	data, err := execute[cartData](ctx, c, "cart", queryCart, map[string]any{"id": cartID})
	if err != nil {
		return nil, err
	}
	if data.Cart == nil {
		return nil, model.NewNotFoundError("cart")
	}
	return CartToSnapshot(data.Cart), nil
}

// mutationResult maps a payload to success or a classified error.
// A payload with no userErrors and no cart means the cart vanished.
func mutationResult(p cartPayload) error {
	if err := classifyUserErrors(p.UserErrors); err != nil {
		return err
	}
	if p.Cart == nil {
		return model.NewNotFoundError("cart")
	}
	return nil
}

// === Catalog Operations ===

// GetProduct fetches a product by id.
func (c *Client) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	data, err := execute[productData](ctx, c, "product", queryProduct, map[string]any{"id": productID})
	if err != nil {
		return nil, err
	}
	if data.Product == nil {
		return nil, model.NewNotFoundError("product")
	}
	return ProductToModel(data.Product), nil
}

// GetProductByHandle fetches a product by URL handle.
func (c *Client) GetProductByHandle(ctx context.Context, handle string) (*model.Product, error) {
	data, err := execute[productByHandleData](ctx, c, "productByHandle", queryProductByHandle, map[string]any{"handle": handle})
	if err != nil {
		return nil, err
	}
	if data.Product == nil {
		return nil, model.NewNotFoundError("product")
	}
	return ProductToModel(data.Product), nil
}

// GetProductsByCollection lists a collection's first products. An empty
// collectionID lists the storefront's products instead.
func (c *Client) GetProductsByCollection(ctx context.Context, collectionID string) ([]model.Product, error) {
	if collectionID == "" {
		data, err := execute[productsData](ctx, c, "products", queryProducts, map[string]any{"first": collectionPageSize})
		if err != nil {
			return nil, err
		}
		return ProductsToModel(data.Products), nil
	}

	data, err := execute[collectionData](ctx, c, "collection", queryCollectionProducts, map[string]any{
		"id":    collectionID,
		"first": collectionPageSize,
	})
	if err != nil {
		return nil, err
	}
	if data.Collection == nil {
		return nil, model.NewNotFoundError("collection")
	}
	return ProductsToModel(data.Collection.Products), nil
}

// Verify Client implements Gateway interface at compile time.
var _ gateway.Gateway = (*Client)(nil)
