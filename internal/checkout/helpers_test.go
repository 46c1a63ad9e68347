package checkout

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tree-checkout/internal/cartsync"
	"tree-checkout/internal/gateway"
	"tree-checkout/internal/model"
	"tree-checkout/internal/steps"
	"tree-checkout/internal/store"
)

const (
	fraser3      = "gid://shopify/ProductVariant/103"
	fraser6      = "gid://shopify/ProductVariant/106"
	fraser7      = "gid://shopify/ProductVariant/107"
	fraser12     = "gid://shopify/ProductVariant/112"
	install56    = "gid://shopify/ProductVariant/60"
	balsam6      = "gid://shopify/ProductVariant/206"
	stand6       = "gid://shopify/ProductVariant/50"
	standProduct = "gid://shopify/Product/50"
	insurance    = "gid://shopify/Product/70"
	accessories  = "gid://shopify/Collection/900"
)

var testNow = time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func simple(id, handle, name, variantID string, price int64) model.Product {
	return model.Product{
		ID: id, Handle: handle, Name: name, BasePrice: price,
		Variants: []model.ProductVariant{{ID: variantID, Label: "Default Title", AvailableForSale: true}},
	}
}

// storefront is the in-memory store with a fixed checkout URL.
type storefront struct {
	*gateway.Fake
	checkoutURL string
}

func (s *storefront) GetCart(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	snap, err := s.Fake.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	snap.CheckoutURL = s.checkoutURL
	return snap, nil
}

func newStorefront(checkoutURL string) *storefront {
	f := gateway.NewFake()
	f.AddProduct(model.Product{
		ID: FraserFirProduct, Name: "Fraser Fir", BasePrice: 8999,
		Variants: []model.ProductVariant{
			{ID: fraser3, Label: "3'", AvailableForSale: true},
			{ID: fraser6, Label: "6'", PriceModifier: 9500, AvailableForSale: true},
			{ID: fraser7, Label: "7'", PriceModifier: 14000, AvailableForSale: false},
			{ID: fraser12, Label: "12'", AvailableForSale: true},
		},
	})
	f.AddProduct(model.Product{
		ID: BalsamFirProduct, Name: "Balsam Fir", BasePrice: 16499,
		Variants: []model.ProductVariant{{ID: balsam6, Label: "6'", AvailableForSale: true}},
	})
	f.AddProduct(simple(standProduct, "tree-stand-for-up-to-6ft", "Tree Stand for up to 6ft", stand6, 3499))
	f.AddProduct(simple("gid://shopify/Product/51", "i-do-not-need-a-stand", "I do not need a stand", "gid://shopify/ProductVariant/51", 0))
	f.AddProduct(simple("gid://shopify/Product/60", "5-6-tree-installation", "5-6' Tree Installation", install56, 2500))
	f.AddProduct(simple(insurance, "", "Certificate of Insurance", "gid://shopify/ProductVariant/70", 1500))
	f.AddProduct(simple("gid://shopify/Product/80", "", "Garland", "gid://shopify/ProductVariant/80", 4999), accessories)
	return &storefront{Fake: f, checkoutURL: checkoutURL}
}

// recordingNavigator keeps every hand-off.
type recordingNavigator struct {
	mu   sync.Mutex
	urls []string
}

func (n *recordingNavigator) Navigate(ctx context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, url)
	return nil
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.urls...)
}

type session struct {
	shop   *storefront
	engine *cartsync.Engine
	nav    *recordingNavigator
	orch   *Orchestrator
}

func newSession(shop *storefront, kv store.KV) (*session, error) {
	var persist cartsync.Persister
	if kv != nil {
		persist = store.NewCartStore(kv, "test")
	}
	engine := cartsync.New(shop, cartsync.Options{Store: persist, Sleep: noSleep, Logger: testLogger()})
	nav := &recordingNavigator{}
	orch, err := New(engine, shop, Options{
		BaseProductIDs: DefaultBaseProducts,
		Steps: DefaultSteps(StepOptions{
			InsuranceProductIDs:   []string{insurance},
			AccessoriesCollection: accessories,
		}),
		Sequencer: steps.Config{MinDeliveryDate: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
		Navigator: nav,
		Logger:    testLogger(),
		Now:       func() time.Time { return testNow },
	})
	if err != nil {
		return nil, err
	}
	return &session{shop: shop, engine: engine, nav: nav, orch: orch}, nil
}

func mustSession(t *testing.T, checkoutURL string) *session {
	t.Helper()
	s, err := newSession(newStorefront(checkoutURL), nil)
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	return s
}

// advanceToSummary chooses a valid delivery date and walks to the summary.
func (s *session) advanceToSummary(ctx context.Context) error {
	if err := s.orch.SetDelivery("2025-12-20", "morning", ""); err != nil {
		return err
	}
	for s.orch.Sequencer().Current().Kind != model.StepSummary {
		if _, err := s.orch.Next(ctx); err != nil {
			return err
		}
	}
	return nil
}
