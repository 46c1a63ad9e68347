package steps

import (
	"testing"
	"time"
)

func TestDeliveryNote(t *testing.T) {
	tests := []struct {
		name string
		d    Delivery
		want string
	}{
		{"nothing", Delivery{}, ""},
		{"date only", Delivery{Date: "2025-12-20"}, "Delivery Date: 2025-12-20"},
		{
			"all parts",
			Delivery{Date: "2025-12-20", Slot: "morning", Instructions: "Ring twice"},
			"Delivery Date: 2025-12-20 | Delivery Time: Morning (9 AM - 12 PM) | Instructions: Ring twice",
		},
		{"time and notes", Delivery{Slot: "anytime", Instructions: "  Side door "}, "Delivery Time: Anytime | Instructions: Side door"},
		{"blank instructions", Delivery{Date: "2025-12-21", Instructions: "   "}, "Delivery Date: 2025-12-21"},
		{"unknown slot", Delivery{Slot: "midnight"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Note(); got != tt.want {
				t.Errorf("Note() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDateGate(t *testing.T) {
	minDate := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		date string
		want bool
	}{
		{"", false},
		{"not-a-date", false},
		{"2025-11-30", false},
		{"2025-12-01", true},
		{"2026-01-02", true},
	}
	for _, tt := range tests {
		ok, reason := dateGate(tt.date, minDate)
		if ok != tt.want {
			t.Errorf("dateGate(%q) = %v, want %v", tt.date, ok, tt.want)
		}
		if !ok && reason == "" {
			t.Errorf("dateGate(%q) gave no reason", tt.date)
		}
	}
}
