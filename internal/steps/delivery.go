package steps

import (
	"strings"
	"time"

	"tree-checkout/internal/model"
)

// DateLayout is the wire format of delivery dates.
const DateLayout = "2006-01-02"

// Delivery holds the buyer's delivery preferences. Empty fields are unset.
type Delivery struct {
	Date         string `json:"date,omitempty"`
	Slot         string `json:"slot,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Note composes the cart note, e.g.
// "Delivery Date: 2025-12-20 | Delivery Time: Morning (9 AM - 12 PM) | Instructions: Ring twice".
// Unset parts are omitted; no preferences yields "".
func (d Delivery) Note() string {
	var parts []string
	if d.Date != "" {
		parts = append(parts, "Delivery Date: "+d.Date)
	}
	if label, ok := model.SlotLabel(d.Slot); ok {
		parts = append(parts, "Delivery Time: "+label)
	}
	if s := strings.TrimSpace(d.Instructions); s != "" {
		parts = append(parts, "Instructions: "+s)
	}
	return strings.Join(parts, " | ")
}

// ParseDate parses a YYYY-MM-DD delivery date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, model.NewValidationError("delivery_date", "expected YYYY-MM-DD")
	}
	return t, nil
}

// dateGate reports whether date satisfies the minimum, with a reason when
// it does not.
func dateGate(date string, minDate time.Time) (bool, string) {
	if date == "" {
		return false, "choose a date first"
	}
	t, err := ParseDate(date)
	if err != nil {
		return false, "expected YYYY-MM-DD"
	}
	if t.Before(minDate) {
		return false, "must be on or after " + minDate.Format(DateLayout)
	}
	return true, ""
}

// SetDeliveryDate records the chosen date. Dates before the minimum are kept
// but hold the step until changed.
func (s *Sequencer) SetDeliveryDate(date string) error {
	if date != "" {
		t, err := ParseDate(date)
		if err != nil {
			return err
		}
		date = t.Format(DateLayout)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivery.Date = date
	return nil
}

// SetDeliveryTime records the time slot and free-text instructions.
// An empty slot clears it.
func (s *Sequencer) SetDeliveryTime(slot, instructions string) error {
	if slot != "" {
		if _, ok := model.SlotLabel(slot); !ok {
			return model.NewValidationError("delivery_slot", "unknown time slot")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivery.Slot = slot
	s.delivery.Instructions = instructions
	return nil
}

// Delivery returns the current delivery preferences.
func (s *Sequencer) Delivery() Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivery
}

// MinDeliveryDate returns the earliest date the DELIVERY_DATE step accepts.
func (s *Sequencer) MinDeliveryDate() time.Time {
	return s.minDate
}
