package shopify

import (
	"tree-checkout/internal/model"
)

// =============================================================================
// STOREFRONT → MODEL TRANSFORMATION
// =============================================================================
//
// Remote shapes stop here. Amounts are decimal strings in major units and are
// converted to cents with model.ParseCents.
// =============================================================================

// ProductToModel converts a Storefront product.
// BasePrice is the minimum variant price; each variant carries its offset.
func ProductToModel(p *StorefrontProduct) *model.Product {
	if p == nil {
		return nil
	}

	base := model.ParseCents(p.PriceRange.MinVariantPrice.Amount)

	image := ""
	if len(p.Images.Edges) > 0 {
		image = p.Images.Edges[0].Node.URL
	}

	variants := make([]model.ProductVariant, 0, len(p.Variants.Edges))
	for _, e := range p.Variants.Edges {
		variants = append(variants, model.ProductVariant{
			ID:               e.Node.ID,
			Label:            e.Node.Title,
			PriceModifier:    model.ParseCents(e.Node.Price.Amount) - base,
			AvailableForSale: e.Node.AvailableForSale,
		})
	}

	return &model.Product{
		ID:          p.ID,
		Handle:      p.Handle,
		Name:        p.Title,
		Description: p.Description,
		BasePrice:   base,
		Image:       image,
		Variants:    variants,
	}
}

// ProductsToModel converts a product connection.
func ProductsToModel(conn productConnection) []model.Product {
	out := make([]model.Product, 0, len(conn.Edges))
	for i := range conn.Edges {
		out = append(out, *ProductToModel(&conn.Edges[i].Node))
	}
	return out
}

// CartToSnapshot converts a Storefront cart. Totals are the store's figures.
func CartToSnapshot(c *StorefrontCart) *model.CartSnapshot {
	if c == nil {
		return nil
	}

	lines := make([]model.CartLine, 0, len(c.Lines.Edges))
	for _, e := range c.Lines.Edges {
		n := e.Node
		lines = append(lines, model.CartLine{
			LineID:       n.ID,
			VariantID:    n.Merchandise.ID,
			ProductID:    n.Merchandise.Product.ID,
			ProductTitle: n.Merchandise.Product.Title,
			VariantTitle: variantTitle(n.Merchandise.Title),
			Quantity:     n.Quantity,
			UnitPrice:    model.ParseCents(n.Merchandise.Price.Amount),
		})
	}

	var tax int64
	if c.Cost.TotalTaxAmount != nil {
		tax = model.ParseCents(c.Cost.TotalTaxAmount.Amount)
	}

	return &model.CartSnapshot{
		ID:          c.ID,
		CheckoutURL: c.CheckoutURL,
		Note:        c.Note,
		Lines:       lines,
		Subtotal:    model.ParseCents(c.Cost.SubtotalAmount.Amount),
		Tax:         tax,
		Total:       model.ParseCents(c.Cost.TotalAmount.Amount),
	}
}

// variantTitle drops Shopify's placeholder title for single-variant products.
func variantTitle(t string) string {
	if t == "Default Title" {
		return ""
	}
	return t
}
