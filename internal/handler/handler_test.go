package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"tree-checkout/internal/cartsync"
	"tree-checkout/internal/checkout"
	"tree-checkout/internal/gateway"
	"tree-checkout/internal/model"
	"tree-checkout/internal/steps"
	"tree-checkout/internal/store"
)

const (
	fraser6  = "gid://shopify/ProductVariant/106"
	fraser12 = "gid://shopify/ProductVariant/112"
	balsam6  = "gid://shopify/ProductVariant/206"
	stand6   = "gid://shopify/ProductVariant/50"
)

var testNow = time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func simple(id, handle, name, variantID string, price int64) model.Product {
	return model.Product{
		ID: id, Handle: handle, Name: name, BasePrice: price,
		Variants: []model.ProductVariant{{ID: variantID, Label: "Default Title", AvailableForSale: true}},
	}
}

func newShop() *gateway.Fake {
	f := gateway.NewFake()
	f.AddProduct(model.Product{
		ID: checkout.FraserFirProduct, Name: "Fraser Fir", BasePrice: 8999,
		Variants: []model.ProductVariant{
			{ID: fraser6, Label: "6'", PriceModifier: 9500, AvailableForSale: true},
			{ID: fraser12, Label: "12'", AvailableForSale: true},
		},
	})
	f.AddProduct(model.Product{
		ID: checkout.BalsamFirProduct, Name: "Balsam Fir", BasePrice: 16499,
		Variants: []model.ProductVariant{{ID: balsam6, Label: "6'", AvailableForSale: true}},
	})
	f.AddProduct(simple("gid://shopify/Product/50", "tree-stand-for-up-to-6ft", "Tree Stand for up to 6ft", stand6, 3499))
	f.AddProduct(simple("gid://shopify/Product/51", "i-do-not-need-a-stand", "I do not need a stand", "gid://shopify/ProductVariant/51", 0))
	return f
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

// testBuilder builds sessions the way the service does, over shop and kv.
func testBuilder(shop gateway.Gateway, kv store.KV) Builder {
	return func(id string) (*checkout.Orchestrator, error) {
		engine := cartsync.New(shop, cartsync.Options{
			Store:  store.NewCartStore(kv, Namespace(id)),
			Sleep:  noSleep,
			Logger: testLogger(),
		})
		return checkout.New(engine, shop, checkout.Options{
			BaseProductIDs: checkout.DefaultBaseProducts,
			Steps:          checkout.DefaultSteps(checkout.StepOptions{}),
			Sequencer:      steps.Config{MinDeliveryDate: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
			Logger:         testLogger(),
			Now:            func() time.Time { return testNow },
		})
	}
}

func testHandler(shop gateway.Gateway, kv store.KV) (*Handler, *http.ServeMux) {
	h := New(NewSessions(testBuilder(shop, kv), kv, testLogger()), testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux
}

// do sends a JSON request and returns the recorder.
func do(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			r = strings.NewReader(s)
		} else {
			data, err := json.Marshal(body)
			if err != nil {
				t.Fatal(err)
			}
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %s: %v", w.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	resp := decode[errorResponse](t, w)
	return resp.Error.Code, resp.Error.Message
}

func createSession(t *testing.T, mux http.Handler) string {
	t.Helper()
	w := do(t, mux, "POST", "/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /sessions = %d: %s", w.Code, w.Body.String())
	}
	return decode[SessionResponse](t, w).ID
}

func TestHandleHealth(t *testing.T) {
	h, mux := testHandler(newShop(), store.NewMemory())

	w := do(t, mux, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decode[map[string]any](t, w)["status"]; got != "ok" {
		t.Errorf("status = %v, want ok", got)
	}

	h.WithReadiness(func(ctx context.Context) error { return errors.New("redis down") })
	if w := do(t, mux, "GET", "/healthz", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status with failing probe = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	_, mux := testHandler(newShop(), store.NewMemory())

	w := do(t, mux, "POST", "/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusCreated)
	}
	created := decode[SessionResponse](t, w)
	if _, err := uuid.Parse(created.ID); err != nil {
		t.Errorf("session id %q is not a uuid", created.ID)
	}
	if created.State.Mode != checkout.ModeSelectingBaseProduct {
		t.Errorf("Mode = %s, want %s", created.State.Mode, checkout.ModeSelectingBaseProduct)
	}

	w = do(t, mux, "GET", "/sessions/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET Status = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[SessionResponse](t, w); got.ID != created.ID || len(got.State.Sequence.Steps) != 7 {
		t.Errorf("GET = %+v", got)
	}
}

func TestGetSessionErrors(t *testing.T) {
	_, mux := testHandler(newShop(), store.NewMemory())

	tests := []struct {
		name     string
		id       string
		wantCode int
		wantErr  string
	}{
		{"malformed id", "not-a-session", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown id", uuid.NewString(), http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, mux, "GET", "/sessions/"+tt.id, nil)
			if w.Code != tt.wantCode {
				t.Fatalf("Status = %d, want %d", w.Code, tt.wantCode)
			}
			if code, _ := errorCode(t, w); code != tt.wantErr {
				t.Errorf("code = %s, want %s", code, tt.wantErr)
			}
		})
	}
}

func TestCheckoutFlow(t *testing.T) {
	shop := newShop()
	_, mux := testHandler(shop, store.NewMemory())
	id := createSession(t, mux)
	base := "/sessions/" + id

	w := do(t, mux, "GET", base+"/base-products", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("base-products = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[struct{ Products []model.Product }](t, w).Products; len(got) != 2 {
		t.Fatalf("base products = %d, want 2", len(got))
	}

	w = do(t, mux, "POST", base+"/base-product", SelectRequest{ProductID: checkout.FraserFirProduct, VariantID: fraser6})
	if w.Code != http.StatusOK {
		t.Fatalf("base-product = %d: %s", w.Code, w.Body.String())
	}
	act := decode[ActionResponse](t, w)
	if act.Outcome.Mode != checkout.ModeInStepSequence {
		t.Fatalf("Mode = %s, want %s", act.Outcome.Mode, checkout.ModeInStepSequence)
	}
	if act.State.Selection == nil || act.State.Selection.Size != "6'" {
		t.Errorf("Selection = %+v, want Fraser Fir 6'", act.State.Selection)
	}

	w = do(t, mux, "GET", base+"/step/products", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("step/products = %d: %s", w.Code, w.Body.String())
	}
	sp := decode[steps.StepProducts](t, w)
	if sp.Kind != model.StepStand || len(sp.Products) != 2 || !sp.Required {
		t.Fatalf("stand products = %+v", sp)
	}

	w = do(t, mux, "POST", base+"/step/select", SelectRequest{ProductID: "gid://shopify/Product/50", VariantID: stand6})
	if w.Code != http.StatusOK {
		t.Fatalf("step/select = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[ActionResponse](t, w).Outcome.Step; got != 1 {
		t.Errorf("Step after stand = %d, want 1", got)
	}

	// Installation, insurance, then the delivery date gate.
	for i := 0; i < 2; i++ {
		if w := do(t, mux, "POST", base+"/step/next", nil); w.Code != http.StatusOK {
			t.Fatalf("step/next = %d: %s", w.Code, w.Body.String())
		}
	}
	w = do(t, mux, "POST", base+"/step/next", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("next without a date = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = do(t, mux, "PUT", base+"/delivery", DeliveryRequest{Date: "2025-11-25", Slot: "morning"})
	if w.Code != http.StatusOK {
		t.Fatalf("delivery = %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, mux, "POST", base+"/step/next", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("next with an early date = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = do(t, mux, "PUT", base+"/delivery", DeliveryRequest{Date: "2025-12-20", Slot: "morning", Instructions: "Ring twice"})
	if w.Code != http.StatusOK {
		t.Fatalf("delivery = %d: %s", w.Code, w.Body.String())
	}
	for i := 0; i < 3; i++ {
		if w := do(t, mux, "POST", base+"/step/next", nil); w.Code != http.StatusOK {
			t.Fatalf("step/next = %d: %s", w.Code, w.Body.String())
		}
	}

	w = do(t, mux, "POST", base+"/step/next", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("checkout = %d: %s", w.Code, w.Body.String())
	}
	act = decode[ActionResponse](t, w)
	if !strings.HasPrefix(act.Outcome.RedirectURL, "https://shop.example/checkouts/") {
		t.Errorf("RedirectURL = %q", act.Outcome.RedirectURL)
	}
	if n := len(act.State.Summary.Items); n != 2 {
		t.Errorf("summary items = %d, want tree and stand", n)
	}
	if shop.CartCount() != 1 {
		t.Errorf("carts = %d, want 1", shop.CartCount())
	}

	snap, err := shop.GetCart(context.Background(), act.State.CartID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(snap.Note, "Delivery Date: 2025-12-20") || !strings.Contains(snap.Note, "Ring twice") {
		t.Errorf("cart note = %q", snap.Note)
	}
}

func TestCallForPricing(t *testing.T) {
	shop := newShop()
	_, mux := testHandler(shop, store.NewMemory())
	id := createSession(t, mux)

	w := do(t, mux, "POST", "/sessions/"+id+"/base-product", SelectRequest{ProductID: checkout.FraserFirProduct, VariantID: fraser12})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	code, msg := errorCode(t, w)
	if code != "CALL_FOR_PRICING" {
		t.Errorf("code = %s, want CALL_FOR_PRICING", code)
	}
	if msg != "Please contact us for pricing on Fraser Fir 12'." {
		t.Errorf("message = %q", msg)
	}
	if shop.Calls("CreateCart") != 0 {
		t.Error("call for pricing must not write to the cart")
	}
}

func TestStepActionsRequireTree(t *testing.T) {
	_, mux := testHandler(newShop(), store.NewMemory())
	id := createSession(t, mux)

	for _, path := range []string{"/step/next", "/step/prev"} {
		w := do(t, mux, "POST", "/sessions/"+id+path, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s Status = %d, want %d", path, w.Code, http.StatusBadRequest)
		}
	}
	w := do(t, mux, "POST", "/sessions/"+id+"/step/jump", JumpRequest{Step: 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("jump Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestInvalidBodies(t *testing.T) {
	_, mux := testHandler(newShop(), store.NewMemory())
	id := createSession(t, mux)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"malformed json", "POST", "/base-product", `{`},
		{"unknown field", "POST", "/base-product", `{"product":"x"}`},
		{"wrong type", "POST", "/step/jump", `{"step":"two"}`},
		{"bad delivery date", "PUT", "/delivery", `{"date":"12/20/2025"}`},
		{"bad slot", "PUT", "/delivery", `{"date":"2025-12-20","slot":"midnight"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, mux, tt.method, "/sessions/"+id+tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
			if code, _ := errorCode(t, w); code != "VALIDATION_ERROR" {
				t.Errorf("code = %s, want VALIDATION_ERROR", code)
			}
		})
	}
}

func TestLineControls(t *testing.T) {
	_, mux := testHandler(newShop(), store.NewMemory())
	id := createSession(t, mux)
	base := "/sessions/" + id

	w := do(t, mux, "POST", base+"/base-product", SelectRequest{ProductID: checkout.BalsamFirProduct, VariantID: balsam6})
	if w.Code != http.StatusOK {
		t.Fatalf("base-product = %d: %s", w.Code, w.Body.String())
	}
	items := decode[ActionResponse](t, w).State.Summary.Items
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	linePath := base + "/lines/" + url.PathEscape(items[0].LineID)

	w = do(t, mux, "PATCH", linePath, LineRequest{Quantity: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH = %d: %s", w.Code, w.Body.String())
	}
	if st := decode[checkout.State](t, w); st.Summary.Items[0].Quantity != 2 || st.Summary.Subtotal != 2*16499 {
		t.Errorf("after PATCH summary = %+v", st.Summary)
	}

	w = do(t, mux, "DELETE", linePath, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE = %d: %s", w.Code, w.Body.String())
	}
	if st := decode[checkout.State](t, w); len(st.Summary.Items) != 0 {
		t.Errorf("after DELETE items = %d, want 0", len(st.Summary.Items))
	}

	// Removing a line that is already gone is a no-op.
	if w := do(t, mux, "DELETE", linePath, nil); w.Code != http.StatusOK {
		t.Errorf("second DELETE = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestDismissNotice(t *testing.T) {
	_, mux := testHandler(newShop(), store.NewMemory())
	id := createSession(t, mux)

	w := do(t, mux, "DELETE", "/sessions/"+id+"/notices/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestResetSession(t *testing.T) {
	shop := newShop()
	_, mux := testHandler(shop, store.NewMemory())
	id := createSession(t, mux)

	if w := do(t, mux, "POST", "/sessions/"+id+"/base-product", SelectRequest{ProductID: checkout.FraserFirProduct, VariantID: fraser6}); w.Code != http.StatusOK {
		t.Fatalf("base-product = %d: %s", w.Code, w.Body.String())
	}

	w := do(t, mux, "POST", "/sessions/"+id+"/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset = %d: %s", w.Code, w.Body.String())
	}
	st := decode[SessionResponse](t, w).State
	if st.Mode != checkout.ModeSelectingBaseProduct || st.CartID != "" || st.Selection != nil {
		t.Errorf("state after reset = %+v", st)
	}
}

func TestSessionRestore(t *testing.T) {
	shop := newShop()
	kv := store.NewMemory()
	_, mux := testHandler(shop, kv)
	id := createSession(t, mux)

	w := do(t, mux, "POST", "/sessions/"+id+"/base-product", SelectRequest{ProductID: checkout.FraserFirProduct, VariantID: fraser6})
	if w.Code != http.StatusOK {
		t.Fatalf("base-product = %d: %s", w.Code, w.Body.String())
	}
	cartID := decode[ActionResponse](t, w).State.CartID

	// A fresh registry over the same store, as after a restart.
	_, restarted := testHandler(shop, kv)
	w = do(t, restarted, "GET", "/sessions/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET after restart = %d: %s", w.Code, w.Body.String())
	}
	st := decode[SessionResponse](t, w).State
	if st.CartID != cartID {
		t.Errorf("CartID = %q, want %q", st.CartID, cartID)
	}
	if st.Selection == nil || st.Selection.TreeType != "Fraser Fir" {
		t.Errorf("Selection = %+v, want restored Fraser Fir", st.Selection)
	}
}

func TestSessionsEvict(t *testing.T) {
	sessions := NewSessions(testBuilder(newShop(), store.NewMemory()), nil, testLogger())
	now := testNow
	sessions.now = func() time.Time { return now }

	ctx := context.Background()
	idle, _, err := sessions.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Minute)
	active, _, err := sessions.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(45 * time.Minute)

	if n := sessions.Evict(time.Hour); n != 1 {
		t.Fatalf("Evict() = %d, want 1", n)
	}
	if _, err := sessions.Get(ctx, active); err != nil {
		t.Errorf("active session evicted: %v", err)
	}
	if _, err := sessions.Get(ctx, idle); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("idle session Get error = %v, want not found", err)
	}
}

func TestHandleSizes(t *testing.T) {
	_, mux := testHandler(newShop(), store.NewMemory())

	w := do(t, mux, "GET", "/sizes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	trees := decode[struct{ Trees []TreeSizes }](t, w).Trees
	if len(trees) != 2 || trees[0].TreeType != "Fraser Fir" {
		t.Fatalf("trees = %+v", trees)
	}

	var twelve *SizeInfo
	for i, s := range trees[0].Sizes {
		if s.Size == "12'" {
			twelve = &trees[0].Sizes[i]
		}
	}
	if twelve == nil || !twelve.CallForPricing || twelve.Price != 0 {
		t.Errorf("Fraser 12' = %+v, want call for pricing", twelve)
	}
	if got := trees[0].Sizes[0]; got.Size != "3'" || got.Price != 8999 {
		t.Errorf("Fraser 3' = %+v, want 8999", got)
	}
}

func TestErrorResponses(t *testing.T) {
	h, _ := testHandler(newShop(), store.NewMemory())

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantRetry  bool
	}{
		{"transport", model.NewTransportError("timeout", nil), http.StatusBadGateway, "TRANSPORT_ERROR", true},
		{"remote validation", model.NewRemoteValidationError([]string{"Sold out."}), http.StatusUnprocessableEntity, "REMOTE_VALIDATION", false},
		{"no cart", model.NewNoCartError(), http.StatusConflict, "NO_CART", false},
		{"wrapped", errors.Join(errors.New("ctx"), model.NewNotFoundError("cart")), http.StatusNotFound, "NOT_FOUND", false},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.writeError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decode[errorResponse](t, w)
			if resp.Error.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", resp.Error.Code, tt.wantCode)
			}
			if resp.Error.Retryable != tt.wantRetry {
				t.Errorf("Retryable = %v, want %v", resp.Error.Retryable, tt.wantRetry)
			}
			if strings.Contains(resp.Error.Message, "boom") {
				t.Errorf("internal detail leaked: %q", resp.Error.Message)
			}
		})
	}
}
