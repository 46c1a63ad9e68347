package store

import (
	"context"
	"errors"
	"testing"

	"tree-checkout/internal/model"
)

func TestCartStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	s := NewCartStore(kv, "session-1")

	id, snap, err := s.Load(ctx)
	if err != nil || id != "" || snap != nil {
		t.Fatalf("empty Load() = %q, %v, %v", id, snap, err)
	}

	want := &model.CartSnapshot{
		ID:          "gid://shopify/Cart/abc",
		CheckoutURL: "https://shop/checkout/abc",
		Lines:       []model.CartLine{{LineID: "l1", VariantID: "v1", Quantity: 1, UnitPrice: 18499}},
		Subtotal:    18499,
		Total:       18499,
	}
	if err := s.Save(ctx, want.ID, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if v, _ := kv.Get(ctx, "session-1:cart_id"); v != want.ID {
		t.Errorf("cart_id key = %q", v)
	}

	id, snap, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if id != want.ID || snap.Subtotal != 18499 || len(snap.Lines) != 1 {
		t.Errorf("Load() = %q, %+v", id, snap)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if id, _, _ := s.Load(ctx); id != "" {
		t.Errorf("after Clear, cart id = %q", id)
	}
}

func TestCartStore_Corrupt(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		id   string
		data string
	}{
		{"bad json", "gid://shopify/Cart/abc", "{not json"},
		{"mismatched id", "gid://shopify/Cart/abc", `{"id":"gid://shopify/Cart/other"}`},
		{"bad id", "has space", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := NewMemory()
			kv.Set(ctx, "ns:cart_id", tt.id)
			kv.Set(ctx, "ns:cart_data", tt.data)

			_, _, err := NewCartStore(kv, "ns").Load(ctx)
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Load() error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestCartStore_NamespacesIsolated(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	a := NewCartStore(kv, "a")
	b := NewCartStore(kv, "b")

	a.Save(ctx, "gid://shopify/Cart/a", nil)
	if id, _, _ := b.Load(ctx); id != "" {
		t.Errorf("namespace b sees %q", id)
	}
	if id, snap, _ := a.Load(ctx); id != "gid://shopify/Cart/a" || snap != nil {
		t.Errorf("namespace a = %q, %v", id, snap)
	}
}
