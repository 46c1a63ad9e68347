package main

import (
	"fmt"
	"sort"
	"strings"

	"tree-checkout/internal/checkout"
	"tree-checkout/internal/gateway"
	"tree-checkout/internal/model"
	"tree-checkout/internal/sizing"
)

// Ids used for the in-memory demo catalog when the config names none.
const (
	demoInsuranceProduct = "gid://shopify/Product/9001"
	demoAccessories      = "gid://shopify/Collection/9100"
)

var demoTrees = map[string]string{
	sizing.FraserFir: checkout.FraserFirProduct,
	sizing.BalsamFir: checkout.BalsamFirProduct,
}

var demoAccessoryNames = []string{"Warm White Lights", "Fresh Garland", "Tree Preservative"}

// seedDemo fills the in-memory store with the trees and every add-on the
// size table links to, so the full sequence can be walked without a shop.
// Unset step options are pointed at the demo products.
func seedDemo(f *gateway.Fake, opts *checkout.StepOptions) {
	next := 1000
	variantID := func() string {
		next++
		return fmt.Sprintf("gid://shopify/ProductVariant/%d", next)
	}
	productID := func() string {
		next++
		return fmt.Sprintf("gid://shopify/Product/%d", next)
	}

	addOns := map[string]int64{}
	for _, treeType := range sizing.TreeTypes() {
		p := model.Product{ID: demoTrees[treeType], Name: treeType}
		var prices []int64
		for _, size := range sizing.Sizes(treeType) {
			price, err := sizing.TreePrice(treeType, size)
			if err == nil {
				prices = append(prices, price)
				if p.BasePrice == 0 || price < p.BasePrice {
					p.BasePrice = price
				}
			} else {
				prices = append(prices, -1)
			}
			if entry, ok := sizing.Lookup(treeType, size); ok {
				for _, l := range addOnLinks(entry) {
					h := l.Handle()
					if h == "" {
						continue
					}
					if l.Price != nil {
						addOns[h] = *l.Price
					} else if _, seen := addOns[h]; !seen {
						addOns[h] = 0
					}
				}
			}
		}
		for i, size := range sizing.Sizes(treeType) {
			v := model.ProductVariant{ID: variantID(), Label: size, AvailableForSale: true}
			if prices[i] >= 0 {
				v.PriceModifier = prices[i] - p.BasePrice
			}
			p.Variants = append(p.Variants, v)
		}
		f.AddProduct(p)
	}

	handles := make([]string, 0, len(addOns))
	for h := range addOns {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	for _, h := range handles {
		p := model.Product{
			ID:        productID(),
			Handle:    h,
			Name:      handleName(h),
			BasePrice: addOns[h],
			Variants:  []model.ProductVariant{{ID: variantID(), Label: "Default Title", AvailableForSale: true}},
		}
		if strings.Contains(h, "stand") {
			f.AddProduct(p, checkout.StandCollectionID)
		} else {
			f.AddProduct(p)
		}
	}

	if len(opts.InsuranceProductIDs) == 0 {
		f.AddProduct(model.Product{
			ID: demoInsuranceProduct, Name: "Certificate of Insurance", BasePrice: 1500,
			Variants: []model.ProductVariant{{ID: variantID(), Label: "Default Title", AvailableForSale: true}},
		})
		opts.InsuranceProductIDs = []string{demoInsuranceProduct}
	}
	if opts.AccessoriesCollection == "" {
		for i, name := range demoAccessoryNames {
			f.AddProduct(model.Product{
				ID: productID(), Name: name, BasePrice: int64(1999 + 1000*i),
				Variants: []model.ProductVariant{{ID: variantID(), Label: "Default Title", AvailableForSale: true}},
			}, demoAccessories)
		}
		opts.AccessoriesCollection = demoAccessories
	}
}

// addOnLinks lists the stand then installation links of entry.
func addOnLinks(entry model.SizeMappingEntry) []model.ProductLink {
	links := make([]model.ProductLink, 0, len(entry.StandLinks)+len(entry.InstallationLinks))
	links = append(links, entry.StandLinks...)
	return append(links, entry.InstallationLinks...)
}

// handleName turns "tree-stand-for-up-to-6ft" into "Tree Stand For Up To 6ft".
func handleName(handle string) string {
	words := strings.Split(handle, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
