// Package reconcile compares what a caller asked the cart to hold with what a
// read of the cart actually shows.
//
// The sync engine uses the predicates to verify each write after the settle
// delay, and the diff to report drift between the buyer's intent and the
// store's cart.
package reconcile

import "tree-checkout/internal/model"

// === Write Verification Predicates ===

// FindLine returns the first line matching variantID, or productID when no
// variant matches. Empty ids never match.
func FindLine(snap *model.CartSnapshot, variantID, productID string) (model.CartLine, bool) {
	if snap == nil {
		return model.CartLine{}, false
	}
	if variantID != "" {
		for _, l := range snap.Lines {
			if l.VariantID == variantID {
				return l, true
			}
		}
	}
	if productID != "" {
		for _, l := range snap.Lines {
			if l.ProductID == productID {
				return l, true
			}
		}
	}
	return model.CartLine{}, false
}

// ContainsVariant verifies an add: the read shows a line for the variant or
// its originating product.
func ContainsVariant(snap *model.CartSnapshot, variantID, productID string) bool {
	_, ok := FindLine(snap, variantID, productID)
	return ok
}

// QuantityApplied verifies an update: the line exists with exactly qty.
func QuantityApplied(snap *model.CartSnapshot, lineID string, qty int) bool {
	l, ok := snap.Line(lineID)
	return ok && l.Quantity == qty
}

// LineRemoved verifies a removal: the line id is gone.
func LineRemoved(snap *model.CartSnapshot, lineID string) bool {
	_, ok := snap.Line(lineID)
	return !ok
}

// === Intent Diff ===

// Intent is a line the buyer asked for.
type Intent struct {
	VariantID string
	ProductID string
	Quantity  int // 0 means any quantity
}

// Drift describes where an observed cart differs from intent.
// Matching is by variant; line order is irrelevant.
type Drift struct {
	Missing    []Intent         // Asked for, not in cart
	Unexpected []model.CartLine // In cart, never asked for
	Quantity   []QuantityDrift  // In both with a different quantity
}

// QuantityDrift is a line whose quantity differs from intent.
type QuantityDrift struct {
	LineID   string
	Want     int
	Observed int
}

// IsEmpty returns true when the cart matches intent.
func (d *Drift) IsEmpty() bool {
	return len(d.Missing) == 0 && len(d.Unexpected) == 0 && len(d.Quantity) == 0
}

// Diff computes the drift between intents and an observed snapshot.
//
// Algorithm:
//  1. Index observed lines by variant
//  2. For each intent: absent → Missing; quantity mismatch → Quantity
//  3. Observed lines no intent claimed → Unexpected
func Diff(intents []Intent, snap *model.CartSnapshot) *Drift {
	d := &Drift{}

	var lines []model.CartLine
	if snap != nil {
		lines = snap.Lines
	}

	byVariant := make(map[string]model.CartLine, len(lines))
	for _, l := range lines {
		byVariant[l.VariantID] = l
	}

	claimed := make(map[string]bool, len(intents))
	for _, in := range intents {
		l, ok := byVariant[in.VariantID]
		if !ok {
			d.Missing = append(d.Missing, in)
			continue
		}
		claimed[in.VariantID] = true
		if in.Quantity > 0 && l.Quantity != in.Quantity {
			d.Quantity = append(d.Quantity, QuantityDrift{
				LineID:   l.LineID,
				Want:     in.Quantity,
				Observed: l.Quantity,
			})
		}
	}

	for _, l := range lines {
		if !claimed[l.VariantID] {
			d.Unexpected = append(d.Unexpected, l)
		}
	}

	return d
}
