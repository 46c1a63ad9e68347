// Package checkout drives one buyer session across its three screens: base
// product selection, the step sequence and order completion. It owns the
// last-known tree selection and hands the buyer off to the hosted checkout.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tree-checkout/internal/cartsync"
	"tree-checkout/internal/model"
	"tree-checkout/internal/sizing"
	"tree-checkout/internal/steps"
)

// Mode is the top-level screen.
type Mode string

const (
	ModeSelectingBaseProduct Mode = "SELECTING_BASE_PRODUCT"
	ModeInStepSequence       Mode = "IN_STEP_SEQUENCE"
	ModeOrderComplete        Mode = "ORDER_COMPLETE"
)

// Cart is the sync engine surface the orchestrator uses.
// *cartsync.Engine implements it.
type Cart interface {
	steps.Cart
	Load(ctx context.Context) error
	Reset(ctx context.Context) error
	UpdateLineQuantity(ctx context.Context, lineID string, qty int) error
	RemoveLine(ctx context.Context, lineID string) error
	CartID() string
	Status() cartsync.Status
	LastError() error
	OrderSummary() *model.OrderSummary
}

var _ Cart = (*cartsync.Engine)(nil)

// Navigator performs the hand-off to the hosted checkout.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error {
	return f(ctx, url)
}

// Options configures an Orchestrator.
type Options struct {
	BaseProductIDs []string
	Steps          []model.CheckoutStep
	Sequencer      steps.Config
	// Navigator defaults to one that only logs; the HTTP layer returns the
	// redirect URL to the widget instead.
	Navigator Navigator
	Logger    *slog.Logger
	Now       func() time.Time
}

// Outcome is the result of a screen-level action.
type Outcome struct {
	Mode        Mode          `json:"mode"`
	Step        int           `json:"step"`
	RedirectURL string        `json:"redirect_url,omitempty"`
	Notice      *steps.Notice `json:"notice,omitempty"`
}

// Orchestrator is one checkout session. Safe for concurrent use.
type Orchestrator struct {
	cart    Cart
	catalog steps.Catalog
	seq     *steps.Sequencer
	memory  *steps.Memory
	nav     Navigator
	baseIDs []string
	logger  *slog.Logger

	mu       sync.Mutex
	mode     Mode
	redirect string
}

// New creates a session on the product screen.
func New(cart Cart, catalog steps.Catalog, opts Options) (*Orchestrator, error) {
	if len(opts.BaseProductIDs) == 0 {
		return nil, errors.New("checkout: no base products configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stepList := opts.Steps
	if len(stepList) == 0 {
		stepList = DefaultSteps(StepOptions{})
	}

	memory := &steps.Memory{}
	seq, err := steps.New(stepList, cart, catalog, steps.Options{
		Config: opts.Sequencer,
		Memory: memory,
		Logger: logger,
		Now:    opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	nav := opts.Navigator
	if nav == nil {
		nav = NavigatorFunc(func(ctx context.Context, url string) error {
			logger.Info("handing off to checkout", "url", url)
			return nil
		})
	}

	return &Orchestrator{
		cart:    cart,
		catalog: catalog,
		seq:     seq,
		memory:  memory,
		nav:     nav,
		baseIDs: append([]string(nil), opts.BaseProductIDs...),
		logger:  logger,
		mode:    ModeSelectingBaseProduct,
	}, nil
}

// Sequencer exposes the step sequence.
func (o *Orchestrator) Sequencer() *steps.Sequencer {
	return o.seq
}

// Mode returns the current screen.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

func (o *Orchestrator) setMode(m Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = m
}

func (o *Orchestrator) outcome() Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Outcome{Mode: o.mode, Step: o.seq.Current().Index, RedirectURL: o.redirect}
}

// Start restores a persisted cart and, when it holds a tree, the tree
// selection.
func (o *Orchestrator) Start(ctx context.Context) error {
	err := o.cart.Load(ctx)
	if sel, ok := steps.SelectionFromCart(o.cart.Snapshot(), o.memory.Get()); ok {
		o.memory.Remember(sel)
	}
	return err
}

// === Product screen ===

// BaseProducts loads the configured base products, skipping any that fail.
func (o *Orchestrator) BaseProducts(ctx context.Context) ([]model.Product, error) {
	results := make([]*model.Product, len(o.baseIDs))
	errs := make([]error, len(o.baseIDs))

	var g errgroup.Group
	for i, id := range o.baseIDs {
		g.Go(func() error {
			results[i], errs[i] = o.catalog.GetProduct(ctx, id)
			return nil
		})
	}
	g.Wait()

	out := make([]model.Product, 0, len(results))
	var lastErr error
	for i, p := range results {
		if errs[i] != nil {
			o.logger.Warn("loading base product failed", "product_id", o.baseIDs[i], "error", errs[i])
			lastErr = errs[i]
			continue
		}
		out = append(out, *p)
	}
	if len(out) == 0 {
		if lastErr == nil {
			lastErr = model.NewNotFoundError("base products")
		}
		return nil, lastErr
	}
	return out, nil
}

// SelectBaseProduct puts the chosen tree in the cart and enters the step
// sequence. Sizes sold by phone only and unavailable variants are refused
// before any cart write. A failed write still enters the sequence, with a
// blocking notice on the first step.
func (o *Orchestrator) SelectBaseProduct(ctx context.Context, productID, variantID string) (Outcome, error) {
	if err := model.ValidateID("product_id", productID); err != nil {
		return o.outcome(), err
	}
	if err := model.ValidateID("variant_id", variantID); err != nil {
		return o.outcome(), err
	}
	if m := o.Mode(); m != ModeSelectingBaseProduct {
		return o.outcome(), model.NewValidationError("mode", "base product is chosen on the product screen")
	}

	p, err := o.catalog.GetProduct(ctx, productID)
	if err != nil {
		return o.outcome(), err
	}
	v, ok := p.Variant(variantID)
	if !ok {
		return o.outcome(), model.NewValidationError("variant_id", "not a size of this tree")
	}
	if !v.AvailableForSale {
		return o.outcome(), model.NewValidationError("variant_id", "this size is sold out")
	}

	if sel, ok := sizing.ParseSelection(p.Name, v.Label); ok {
		if err := sizing.ValidateTree(sel.TreeType, sel.Size); err != nil {
			o.logger.Info("base product refused", "tree_type", sel.TreeType, "size", sel.Size, "error", err)
			return o.outcome(), err
		}
		o.memory.Remember(sel)
	} else {
		o.logger.Warn("base product not in size table", "product", p.Name, "variant", v.Label)
	}

	// Coming back from the first step with the same tree must not add a
	// second one.
	var werr error
	if !o.cart.Snapshot().HasLine(variantID, "") {
		werr = o.cart.EnsureLineForVariant(ctx, variantID, productID, 1)
	}
	o.setMode(ModeInStepSequence)

	out := o.outcome()
	if werr != nil {
		n := o.seq.Report(werr, true)
		out.Notice = &n
		return out, nil
	}
	if err := o.removeOtherTrees(ctx, variantID); err != nil {
		n := o.seq.Report(err, false)
		out.Notice = &n
	}
	return out, nil
}

// removeOtherTrees drops tree lines left from an earlier choice so the cart
// holds one tree.
func (o *Orchestrator) removeOtherTrees(ctx context.Context, keepVariantID string) error {
	snap := o.cart.Snapshot()
	if snap == nil {
		return nil
	}
	for _, l := range snap.Lines {
		if l.VariantID == keepVariantID || !sizing.IsTreeLine(l) {
			continue
		}
		o.logger.Info("removing replaced tree", "variant_id", l.VariantID, "line_id", l.LineID)
		if err := o.cart.RemoveLine(ctx, l.LineID); err != nil {
			return err
		}
	}
	return nil
}

// === Step sequence ===

// Products loads the current step's products.
func (o *Orchestrator) Products(ctx context.Context) (*steps.StepProducts, error) {
	if err := o.requireSequence(); err != nil {
		return nil, err
	}
	return o.seq.Products(ctx)
}

// Select picks a product on the current step.
func (o *Orchestrator) Select(ctx context.Context, productID, variantID string) (Outcome, error) {
	if err := o.requireSequence(); err != nil {
		return o.outcome(), err
	}
	_, err := o.seq.Select(ctx, productID, variantID)
	return o.outcome(), err
}

// Next advances. Accepted checkout on the summary step navigates to the
// hosted checkout, or completes the order when the cart has no checkout URL.
func (o *Orchestrator) Next(ctx context.Context) (Outcome, error) {
	if err := o.requireSequence(); err != nil {
		return o.outcome(), err
	}
	move, err := o.seq.Next(ctx)
	if err != nil || !move.Checkout {
		return o.outcome(), err
	}

	if move.CheckoutURL == "" {
		o.logger.Info("order complete without checkout url", "cart_id", o.cart.CartID())
		o.setMode(ModeOrderComplete)
		return o.outcome(), nil
	}

	if err := o.nav.Navigate(ctx, move.CheckoutURL); err != nil {
		return o.outcome(), fmt.Errorf("navigating to checkout: %w", err)
	}
	o.mu.Lock()
	o.redirect = move.CheckoutURL
	o.mu.Unlock()
	return o.outcome(), nil
}

// Back goes to the previous step, or to the product screen from the first.
func (o *Orchestrator) Back(ctx context.Context) (Outcome, error) {
	if err := o.requireSequence(); err != nil {
		return o.outcome(), err
	}
	move, err := o.seq.Prev(ctx)
	if err != nil {
		return o.outcome(), err
	}
	if move.Exited {
		o.setMode(ModeSelectingBaseProduct)
	}
	return o.outcome(), nil
}

// Jump moves to a step already reached.
func (o *Orchestrator) Jump(ctx context.Context, i int) (Outcome, error) {
	if err := o.requireSequence(); err != nil {
		return o.outcome(), err
	}
	_, err := o.seq.Jump(ctx, i)
	return o.outcome(), err
}

// SetDelivery records delivery preferences. Empty values clear.
func (o *Orchestrator) SetDelivery(date, slot, instructions string) error {
	if err := o.seq.SetDeliveryDate(date); err != nil {
		return err
	}
	return o.seq.SetDeliveryTime(slot, instructions)
}

// UpdateLine sets a cart line's quantity; zero or less removes it.
func (o *Orchestrator) UpdateLine(ctx context.Context, lineID string, qty int) error {
	return o.cart.UpdateLineQuantity(ctx, lineID, qty)
}

// RemoveLine deletes a cart line.
func (o *Orchestrator) RemoveLine(ctx context.Context, lineID string) error {
	return o.cart.RemoveLine(ctx, lineID)
}

// Dismiss removes a non-blocking notice.
func (o *Orchestrator) Dismiss(noticeID string) bool {
	return o.seq.Dismiss(noticeID)
}

// NewOrder forgets the cart and the session's progress. Background writes
// of the old order finish first so none of them lands in the new one.
func (o *Orchestrator) NewOrder(ctx context.Context) error {
	if err := o.seq.Wait(ctx); err != nil {
		return err
	}
	o.seq.Reset()
	if err := o.cart.Reset(ctx); err != nil {
		return err
	}
	o.memory.Clear()

	o.mu.Lock()
	o.mode = ModeSelectingBaseProduct
	o.redirect = ""
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) requireSequence() error {
	if o.Mode() != ModeInStepSequence {
		return model.NewValidationError("mode", "choose a tree first")
	}
	return nil
}

// === Read model ===

// State is a serializable view of the session.
type State struct {
	Mode        Mode                 `json:"mode"`
	CartID      string               `json:"cart_id,omitempty"`
	CartStatus  cartsync.Status      `json:"cart_status"`
	CartError   string               `json:"cart_error,omitempty"`
	Selection   *model.TreeSelection `json:"selection,omitempty"`
	Summary     *model.OrderSummary  `json:"summary,omitempty"`
	Sequence    steps.View           `json:"sequence"`
	RedirectURL string               `json:"redirect_url,omitempty"`
}

// State returns the session for display.
func (o *Orchestrator) State() State {
	st := State{
		Mode:       o.Mode(),
		CartID:     o.cart.CartID(),
		CartStatus: o.cart.Status(),
		CartError:  model.UserMessage(o.cart.LastError()),
		Summary:    o.cart.OrderSummary(),
		Sequence:   o.seq.View(),
	}
	if sel := o.memory.Get(); !sel.IsZero() {
		st.Selection = &sel
	}
	o.mu.Lock()
	st.RedirectURL = o.redirect
	o.mu.Unlock()
	return st
}
