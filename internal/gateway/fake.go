package gateway

import (
	"context"
	"fmt"
	"sync"

	"tree-checkout/internal/model"
)

// Fake is an in-memory storefront. It backs the development server when no
// storefront token is configured and drives the end-to-end tests.
//
// StaleReads makes the first N GetCart calls after every mutation return the
// pre-mutation cart, modelling an eventually-consistent remote.
type Fake struct {
	mu sync.Mutex

	products    map[string]model.Product
	handles     map[string]string   // handle → product id
	collections map[string][]string // collection id → product ids
	carts       map[string]*fakeCart

	seq int

	CheckoutBase string
	TaxBasis     int64 // tax in basis points of subtotal
	StaleReads   int

	// Fail, when set, is consulted before each operation; a non-nil return
	// fails the call without side effects.
	Fail func(op string) error

	calls map[string]int
}

type fakeCart struct {
	id      string
	note    string
	lines   []model.CartLine
	stale   *model.CartSnapshot
	pending int
}

// NewFake returns an empty in-memory storefront.
func NewFake() *Fake {
	return &Fake{
		products:     make(map[string]model.Product),
		handles:      make(map[string]string),
		collections:  make(map[string][]string),
		carts:        make(map[string]*fakeCart),
		CheckoutBase: "https://shop.example/checkouts",
		calls:        make(map[string]int),
	}
}

// AddProduct registers p, optionally under collections.
func (f *Fake) AddProduct(p model.Product, collectionIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
	if p.Handle != "" {
		f.handles[p.Handle] = p.ID
	}
	for _, c := range collectionIDs {
		f.collections[c] = append(f.collections[c], p.ID)
	}
}

// Calls reports how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// CartCount reports how many carts were created.
func (f *Fake) CartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.carts)
}

// DropCart deletes a cart, as the store does when a cart expires.
func (f *Fake) DropCart(cartID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, cartID)
}

func (f *Fake) enter(op string) error {
	f.calls[op]++
	if f.Fail != nil {
		return f.Fail(op)
	}
	return nil
}

func (f *Fake) nextID(kind string) string {
	f.seq++
	return fmt.Sprintf("gid://shopify/%s/%d", kind, f.seq)
}

func (f *Fake) findVariant(variantID string) (model.Product, model.ProductVariant, bool) {
	for _, p := range f.products {
		if v, ok := p.Variant(variantID); ok {
			return p, v, true
		}
	}
	return model.Product{}, model.ProductVariant{}, false
}

// mutate snapshots the cart for stale reads, then applies fn.
func (f *Fake) mutate(c *fakeCart, fn func()) {
	if f.StaleReads > 0 {
		f.markStale(c)
	}
	fn()
}

func (f *Fake) markStale(c *fakeCart) {
	c.stale = f.snapshot(c)
	c.pending = f.StaleReads
}

func (f *Fake) addLine(c *fakeCart, variantID string, qty int) error {
	if qty <= 0 {
		return model.NewRemoteValidationError([]string{"Quantity must be greater than 0."})
	}
	p, v, ok := f.findVariant(variantID)
	if !ok {
		return model.NewRemoteValidationError([]string{"The merchandise with id " + variantID + " does not exist."})
	}
	if !v.AvailableForSale {
		return model.NewRemoteValidationError([]string{"The product '" + p.Name + "' is already sold out."})
	}
	f.mutate(c, func() {
		for i := range c.lines {
			if c.lines[i].VariantID == variantID {
				c.lines[i].Quantity += qty
				return
			}
		}
		c.lines = append(c.lines, model.CartLine{
			LineID:       f.nextID("CartLine"),
			VariantID:    v.ID,
			ProductID:    p.ID,
			ProductTitle: p.Name,
			VariantTitle: v.Label,
			Quantity:     qty,
			UnitPrice:    p.EffectivePrice(v),
		})
	})
	return nil
}

func (f *Fake) cart(cartID string) (*fakeCart, error) {
	c, ok := f.carts[cartID]
	if !ok {
		return nil, model.NewNotFoundError("cart")
	}
	return c, nil
}

func (f *Fake) snapshot(c *fakeCart) *model.CartSnapshot {
	s := &model.CartSnapshot{
		ID:          c.id,
		CheckoutURL: f.CheckoutBase + "/" + c.id[len("gid://shopify/Cart/"):],
		Note:        c.note,
		Lines:       append([]model.CartLine(nil), c.lines...),
	}
	for _, l := range c.lines {
		s.Subtotal += l.UnitPrice * int64(l.Quantity)
	}
	s.Tax = s.Subtotal * f.TaxBasis / 10000
	s.Total = s.Subtotal + s.Tax
	return s
}

func (f *Fake) CreateCart(ctx context.Context, variantID string, qty int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateCart"); err != nil {
		return "", err
	}
	c := &fakeCart{id: f.nextID("Cart")}
	if err := f.addLine(c, variantID, qty); err != nil {
		return "", err
	}
	f.carts[c.id] = c
	return c.id, nil
}

func (f *Fake) AddLine(ctx context.Context, cartID, variantID string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AddLine"); err != nil {
		return err
	}
	c, err := f.cart(cartID)
	if err != nil {
		return err
	}
	return f.addLine(c, variantID, qty)
}

func (f *Fake) UpdateLine(ctx context.Context, cartID, lineID string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateLine"); err != nil {
		return err
	}
	c, err := f.cart(cartID)
	if err != nil {
		return err
	}
	for i := range c.lines {
		if c.lines[i].LineID == lineID {
			f.mutate(c, func() { c.lines[i].Quantity = qty })
			return nil
		}
	}
	return model.NewRemoteValidationError([]string{"The merchandise line with id " + lineID + " does not exist."})
}

func (f *Fake) RemoveLine(ctx context.Context, cartID, lineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("RemoveLine"); err != nil {
		return err
	}
	c, err := f.cart(cartID)
	if err != nil {
		return err
	}
	for i := range c.lines {
		if c.lines[i].LineID == lineID {
			f.mutate(c, func() { c.lines = append(c.lines[:i], c.lines[i+1:]...) })
			return nil
		}
	}
	return model.NewRemoteValidationError([]string{"The merchandise line with id " + lineID + " does not exist."})
}

func (f *Fake) GetCart(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetCart"); err != nil {
		return nil, err
	}
	c, err := f.cart(cartID)
	if err != nil {
		return nil, err
	}
	if c.pending > 0 && c.stale != nil {
		c.pending--
		return c.stale.Clone(), nil
	}
	return f.snapshot(c), nil
}

func (f *Fake) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetProduct"); err != nil {
		return nil, err
	}
	p, ok := f.products[productID]
	if !ok {
		return nil, model.NewNotFoundError("product")
	}
	return &p, nil
}

func (f *Fake) GetProductByHandle(ctx context.Context, handle string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetProductByHandle"); err != nil {
		return nil, err
	}
	id, ok := f.handles[handle]
	if !ok {
		return nil, model.NewNotFoundError("product")
	}
	p := f.products[id]
	return &p, nil
}

func (f *Fake) GetProductsByCollection(ctx context.Context, collectionID string) ([]model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetProductsByCollection"); err != nil {
		return nil, err
	}
	ids, ok := f.collections[collectionID]
	if !ok {
		return nil, model.NewNotFoundError("collection")
	}
	out := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.products[id])
	}
	return out, nil
}

func (f *Fake) SetCartNote(ctx context.Context, cartID, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetCartNote"); err != nil {
		return err
	}
	c, err := f.cart(cartID)
	if err != nil {
		return err
	}
	c.note = note
	return nil
}

var _ Gateway = (*Fake)(nil)
