// Package sizing resolves which stand and installation products apply to a
// tree of a given type and size, from a static price table.
//
// Everything here is pure: no I/O, no state.
package sizing

import (
	"regexp"
	"strings"

	"tree-checkout/internal/model"
)

// Status is the terminal state of a resolution.
type Status int

const (
	// Eligible means the table lists links for this step.
	Eligible Status = iota
	// NotApplicable means the add-on is not offered at this size; the step
	// proceeds without a product.
	NotApplicable
	// UnknownSize means the tree type or size is not in the table. It is a
	// data error and must be surfaced.
	UnknownSize
)

func (s Status) String() string {
	switch s {
	case Eligible:
		return "eligible"
	case NotApplicable:
		return "not_applicable"
	case UnknownSize:
		return "unknown_size"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Status Status `json:"status"`
	// Required is true when at least one link carries a price.
	Required bool `json:"required"`
	// CallForPricing is true when links exist but none is priced.
	CallForPricing bool                `json:"call_for_pricing"`
	Links          []model.ProductLink `json:"links,omitempty"`
}

// Lookup returns the table entry for a tree type and size.
// Size labels are normalized first, so "6 ft" finds "6'".
func Lookup(treeType, size string) (model.SizeMappingEntry, bool) {
	size = NormalizeSize(size)
	for _, t := range table {
		if !strings.EqualFold(t.treeType, strings.TrimSpace(treeType)) {
			continue
		}
		for _, s := range t.sizes {
			if s.label == size {
				return s.entry, true
			}
		}
	}
	return model.SizeMappingEntry{}, false
}

// Resolve returns the product links for kind at this tree type and size.
// Only STAND and INSTALLATION are table driven; other kinds are
// NotApplicable.
func Resolve(treeType, size string, kind model.StepKind) Resolution {
	entry, ok := Lookup(treeType, size)
	if !ok {
		return Resolution{Status: UnknownSize}
	}

	var links []model.ProductLink
	switch kind {
	case model.StepStand:
		links = entry.StandLinks
	case model.StepInstallation:
		links = entry.InstallationLinks
	default:
		return Resolution{Status: NotApplicable}
	}

	if len(links) == 0 {
		return Resolution{Status: NotApplicable}
	}

	priced := false
	for _, l := range links {
		if l.Price != nil {
			priced = true
			break
		}
	}

	return Resolution{
		Status:         Eligible,
		Required:       priced,
		CallForPricing: !priced,
		Links:          append([]model.ProductLink(nil), links...),
	}
}

// TreePrice returns the table price of a tree in cents.
func TreePrice(treeType, size string) (int64, error) {
	entry, ok := Lookup(treeType, size)
	if !ok {
		return 0, model.NewValidationError("size", "invalid tree size \""+size+"\" for "+treeType)
	}
	if entry.Price == nil {
		return 0, model.NewCallForPricingError(treeType, NormalizeSize(size))
	}
	return *entry.Price, nil
}

// ValidateTree reports whether a tree can be bought online. Unpriced sizes
// fail with ErrCallForPricing; they are a phone call, not a cart line.
func ValidateTree(treeType, size string) error {
	_, err := TreePrice(treeType, size)
	return err
}

// TreeTypes lists the tree types in display order.
func TreeTypes() []string {
	out := make([]string, 0, len(table))
	for _, t := range table {
		out = append(out, t.treeType)
	}
	return out
}

// Sizes lists the size labels of a tree type in display order.
func Sizes(treeType string) []string {
	for _, t := range table {
		if strings.EqualFold(t.treeType, treeType) {
			out := make([]string, 0, len(t.sizes))
			for _, s := range t.sizes {
				out = append(out, s.label)
			}
			return out
		}
	}
	return nil
}

var feetPattern = regexp.MustCompile(`^(\d{1,2})\s*(?:'|’|ft\.?|feet|foot)?$`)

// NormalizeSize maps variant labels such as "6 ft", "6ft" or "6" to the
// table's "6'" form. Unrecognized labels are returned trimmed.
func NormalizeSize(size string) string {
	s := strings.TrimSpace(size)
	if strings.EqualFold(s, SizeLarger) {
		return SizeLarger
	}
	if m := feetPattern.FindStringSubmatch(strings.ToLower(s)); m != nil {
		return strings.TrimLeft(m[1], "0") + "'"
	}
	return s
}

// ParseSelection derives the tree selection from a product title and variant
// label, e.g. ("Fresh Fraser Fir Christmas Tree", "6 ft").
func ParseSelection(productTitle, variantTitle string) (model.TreeSelection, bool) {
	title := strings.ToLower(productTitle)
	for _, t := range table {
		key := strings.ToLower(strings.Fields(t.treeType)[0])
		if !strings.Contains(title, key) {
			continue
		}
		size := NormalizeSize(variantTitle)
		if _, ok := Lookup(t.treeType, size); !ok {
			return model.TreeSelection{}, false
		}
		return model.TreeSelection{TreeType: t.treeType, Size: size}, true
	}
	return model.TreeSelection{}, false
}

// IsTreeLine reports whether a cart line is a tree from the table.
func IsTreeLine(l model.CartLine) bool {
	_, ok := ParseSelection(l.ProductTitle, l.VariantTitle)
	return ok
}
