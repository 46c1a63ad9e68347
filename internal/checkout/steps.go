package checkout

import "tree-checkout/internal/model"

// Storefront ids used by the production step list.
const (
	StandCollectionID = "gid://shopify/Collection/155577745488"
	FraserFirProduct  = "gid://shopify/Product/7119040610384"
	BalsamFirProduct  = "gid://shopify/Product/7119041560656"
)

// DefaultBaseProducts lists the trees offered on the product screen.
var DefaultBaseProducts = []string{FraserFirProduct, BalsamFirProduct}

// StepOptions fills the store-specific parts of the step list.
type StepOptions struct {
	InsuranceProductIDs   []string
	AccessoriesCollection string
}

// DefaultSteps returns the checkout sequence, summary last.
func DefaultSteps(opts StepOptions) []model.CheckoutStep {
	return []model.CheckoutStep{
		{
			Title:        "Tree Stand",
			Description:  "Select a sturdy tree stand for your tree",
			Kind:         model.StepStand,
			CollectionID: StandCollectionID,
		},
		{
			Title:       "Tree Installation",
			Description: "Professional tree installation services",
			Kind:        model.StepInstallation,
		},
		{
			Title:       "Certificate of Insurance",
			Description: "Insurance certificate for your tree installation",
			Kind:        model.StepInsurance,
			ProductIDs:  append([]string(nil), opts.InsuranceProductIDs...),
		},
		{
			Title:       "Delivery Date",
			Description: "Choose your preferred delivery date",
			Kind:        model.StepDeliveryDate,
		},
		{
			Title:       "Delivery Date Time Notes",
			Description: "Specify delivery time preferences and special notes",
			Kind:        model.StepDeliveryTime,
		},
		{
			Title:        "Accessories",
			Description:  "Finish the look with lights, garland and care products",
			Kind:         model.StepAccessories,
			CollectionID: opts.AccessoriesCollection,
		},
		{
			Title:       "Order Summary",
			Description: "Review your selections before proceeding to checkout",
			Kind:        model.StepSummary,
		},
	}
}
