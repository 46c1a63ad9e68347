// Package model defines the cart, catalog and checkout-step data structures
// shared by the gateway, sync engine and step sequencer.
package model

import (
	"net/url"
	"strings"
)

// === Catalog ===

// Product is a storefront product as fetched from the store.
// Immutable once fetched; callers never mutate a Product in place.
type Product struct {
	ID          string           `json:"id"`
	Handle      string           `json:"handle,omitempty"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	BasePrice   int64            `json:"base_price"` // Minimum variant price (cents)
	Image       string           `json:"image,omitempty"`
	Variants    []ProductVariant `json:"variants"`
}

// ProductVariant is one purchasable configuration of a product (e.g. a size).
type ProductVariant struct {
	ID               string `json:"id"`
	Label            string `json:"label"`
	PriceModifier    int64  `json:"price_modifier"` // Relative to Product.BasePrice (cents)
	AvailableForSale bool   `json:"available_for_sale"`
}

// EffectivePrice returns base price plus the variant's modifier.
func (p *Product) EffectivePrice(v ProductVariant) int64 {
	return p.BasePrice + v.PriceModifier
}

// Variant looks up a variant by ID.
func (p *Product) Variant(variantID string) (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return ProductVariant{}, false
}

// DefaultVariant returns the first variant available for sale, falling back
// to the first variant. ok is false for products without variants.
func (p *Product) DefaultVariant() (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.AvailableForSale {
			return v, true
		}
	}
	if len(p.Variants) > 0 {
		return p.Variants[0], true
	}
	return ProductVariant{}, false
}

// === Cart ===

// CartSnapshot is the remote cart as last observed.
// Treated as a value: every read replaces the whole snapshot.
type CartSnapshot struct {
	ID          string     `json:"id"`
	CheckoutURL string     `json:"checkout_url,omitempty"`
	Note        string     `json:"note,omitempty"`
	Lines       []CartLine `json:"lines"`
	Subtotal    int64      `json:"subtotal"` // cents
	Tax         int64      `json:"tax"`      // cents
	Total       int64      `json:"total"`    // cents
}

// CartLine is one cart entry. LineID is assigned by the store and is the only
// stable handle for update/remove.
type CartLine struct {
	LineID       string `json:"line_id"`
	VariantID    string `json:"variant_id"`
	ProductID    string `json:"product_id"`
	ProductTitle string `json:"product_title"`
	VariantTitle string `json:"variant_title"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"` // cents
}

// IsEmpty reports whether the snapshot is absent or has no lines.
func (s *CartSnapshot) IsEmpty() bool {
	return s == nil || len(s.Lines) == 0
}

// Line returns the line with the given store-assigned ID.
func (s *CartSnapshot) Line(lineID string) (CartLine, bool) {
	if s == nil {
		return CartLine{}, false
	}
	for _, l := range s.Lines {
		if l.LineID == lineID {
			return l, true
		}
	}
	return CartLine{}, false
}

// HasLine reports whether any line matches variantID, or productID when the
// variant is not known. Empty arguments never match.
func (s *CartSnapshot) HasLine(variantID, productID string) bool {
	if s == nil {
		return false
	}
	for _, l := range s.Lines {
		if variantID != "" && l.VariantID == variantID {
			return true
		}
		if productID != "" && l.ProductID == productID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so readers cannot alias the engine's state.
func (s *CartSnapshot) Clone() *CartSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Lines = append([]CartLine(nil), s.Lines...)
	return &c
}

// === Read model ===

// OrderSummary is the UI projection of a CartSnapshot.
type OrderSummary struct {
	Subtotal int64         `json:"subtotal"`
	Tax      int64         `json:"tax"`
	Total    int64         `json:"total"`
	Items    []SummaryItem `json:"items"`
}

// SummaryItem is one line in the order summary. Price is unit price × quantity.
type SummaryItem struct {
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	LineID    string `json:"line_id"`
	VariantID string `json:"variant_id"`
}

// DeriveOrderSummary projects a snapshot for display.
// Totals are the store's figures, passed through unchanged.
func DeriveOrderSummary(s *CartSnapshot) *OrderSummary {
	if s == nil {
		return nil
	}
	items := make([]SummaryItem, 0, len(s.Lines))
	for _, l := range s.Lines {
		items = append(items, SummaryItem{
			Name:      lineName(l),
			Price:     l.UnitPrice * int64(l.Quantity),
			Quantity:  l.Quantity,
			LineID:    l.LineID,
			VariantID: l.VariantID,
		})
	}
	return &OrderSummary{
		Subtotal: s.Subtotal,
		Tax:      s.Tax,
		Total:    s.Total,
		Items:    items,
	}
}

func lineName(l CartLine) string {
	if l.VariantTitle == "" {
		return l.ProductTitle
	}
	return l.ProductTitle + " - " + l.VariantTitle
}

// === Sizing ===

// ProductLink points at a storefront product page, with the table price.
// Price nil means "call for pricing".
type ProductLink struct {
	URL   string `json:"url"`
	Price *int64 `json:"price,omitempty"`
}

// Handle extracts the product handle from a /products/<handle> URL.
// Query strings and fragments are ignored. Returns "" for other URLs.
func (l ProductLink) Handle() string {
	u, err := url.Parse(l.URL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "products" {
			return parts[i+1]
		}
	}
	return ""
}

// SizeMappingEntry is one row of the static size/pricing table.
// A nil link slice means the add-on does not apply at this size.
type SizeMappingEntry struct {
	Price             *int64
	StandLinks        []ProductLink
	InstallationLinks []ProductLink
}

// TreeSelection identifies the chosen tree by type and size label.
type TreeSelection struct {
	TreeType string `json:"tree_type"`
	Size     string `json:"size"`
}

// IsZero reports whether the selection is unset.
func (t TreeSelection) IsZero() bool {
	return t.TreeType == "" || t.Size == ""
}

// === Identifiers ===

// ValidateID performs the only local check allowed on store-issued IDs:
// non-empty, no whitespace, and a well-formed gid:// path when that scheme
// is used. IDs are never constructed or decomposed beyond this.
func ValidateID(field, id string) error {
	if id == "" {
		return NewValidationError(field, "required")
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return NewValidationError(field, "must not contain whitespace")
	}
	if strings.HasPrefix(id, "gid://") {
		rest := strings.TrimPrefix(id, "gid://")
		parts := strings.Split(rest, "/")
		if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return NewValidationError(field, "malformed global id")
		}
	}
	return nil
}
