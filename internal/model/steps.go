package model

// StepKind determines a checkout step's product source and advance policy.
type StepKind string

const (
	StepStand        StepKind = "STAND"
	StepInstallation StepKind = "INSTALLATION"
	StepInsurance    StepKind = "INSURANCE"
	StepDeliveryDate StepKind = "DELIVERY_DATE"
	StepDeliveryTime StepKind = "DELIVERY_TIME"
	StepAccessories  StepKind = "ACCESSORIES"
	StepSummary      StepKind = "SUMMARY"
)

// CheckoutStep is one entry of the fixed step sequence.
type CheckoutStep struct {
	Index        int      `json:"index"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Kind         StepKind `json:"kind"`
	CollectionID string   `json:"collection_id,omitempty"`
	ProductIDs   []string `json:"product_ids,omitempty"`
}

// DeliverySlot is a delivery time preference offered on the DELIVERY_TIME step.
type DeliverySlot struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// DeliverySlots lists the time preferences, in display order.
var DeliverySlots = []DeliverySlot{
	{Value: "morning", Label: "Morning (9 AM - 12 PM)"},
	{Value: "afternoon", Label: "Afternoon (12 PM - 5 PM)"},
	{Value: "evening", Label: "Evening (5 PM - 8 PM)"},
	{Value: "anytime", Label: "Anytime"},
}

// SlotLabel returns the display label for a slot value.
func SlotLabel(value string) (string, bool) {
	for _, s := range DeliverySlots {
		if s.Value == value {
			return s.Label, true
		}
	}
	return "", false
}
