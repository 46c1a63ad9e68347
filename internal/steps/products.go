package steps

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tree-checkout/internal/model"
	"tree-checkout/internal/sizing"
)

// StepProducts is what the current step offers.
type StepProducts struct {
	Step int            `json:"step"`
	Kind model.StepKind `json:"kind"`
	// Selection and Eligibility are set on resolver-driven steps.
	Selection      *model.TreeSelection `json:"selection,omitempty"`
	Eligibility    string               `json:"eligibility,omitempty"`
	Required       bool                 `json:"required"`
	CallForPricing bool                 `json:"call_for_pricing"`
	Products       []model.Product      `json:"products"`
}

const fetchFailedMessage = "Some options for this step could not be loaded. You can continue without them."

// Products loads the current step's products. Fetch failures never fail the
// step: they leave a non-blocking notice and a shorter (possibly empty) list.
// An undeterminable tree selection or a size missing from the table is
// returned as an error.
func (s *Sequencer) Products(ctx context.Context) (*StepProducts, error) {
	step := s.Current()
	out := &StepProducts{Step: step.Index, Kind: step.Kind, Products: []model.Product{}}

	switch step.Kind {
	case model.StepStand, model.StepInstallation:
		sel, err := s.selection(ctx)
		if err != nil {
			s.report(step.Index, err, false)
			return nil, err
		}
		res := sizing.Resolve(sel.TreeType, sel.Size, step.Kind)
		out.Selection = &sel
		out.Eligibility = res.Status.String()
		out.Required = res.Required
		out.CallForPricing = res.CallForPricing

		switch res.Status {
		case sizing.UnknownSize:
			err := model.NewValidationError("tree_size", fmt.Sprintf("%s %s is not in the size table", sel.TreeType, sel.Size))
			s.report(step.Index, err, false)
			return nil, err
		case sizing.NotApplicable:
			return out, nil
		}
		out.Products = s.fetchLinks(ctx, step, res.Links)

	case model.StepInsurance, model.StepAccessories:
		out.Products = s.fetchSource(ctx, step)
	}

	return out, nil
}

// selection determines the tree: a tree line in the cart wins and refreshes
// the memory, then the memory, then a bounded number of cart refreshes.
func (s *Sequencer) selection(ctx context.Context) (model.TreeSelection, error) {
	for i := 0; ; i++ {
		if sel, ok := SelectionFromCart(s.cart.Snapshot(), s.memory.Get()); ok {
			s.memory.Remember(sel)
			return sel, nil
		}
		if sel := s.memory.Get(); !sel.IsZero() {
			return sel, nil
		}
		if i >= s.cfg.SelectionRefreshes {
			return model.TreeSelection{}, model.NewSelectionUnknownError()
		}
		if _, err := s.cart.Refresh(ctx); err != nil {
			s.logger.Debug("refresh while determining tree selection failed", "attempt", i+1, "error", err)
		}
	}
}

// SelectionFromCart picks the tree the cart shows. A tree line matching
// remembered wins. With nothing remembered the most recently added tree line
// is used. A remembered selection the cart does not show yet is kept over
// any other tree line, so an older tree never replaces a newer choice.
func SelectionFromCart(snap *model.CartSnapshot, remembered model.TreeSelection) (model.TreeSelection, bool) {
	if snap == nil {
		return model.TreeSelection{}, false
	}
	var last model.TreeSelection
	found := false
	for _, l := range snap.Lines {
		sel, ok := sizing.ParseSelection(l.ProductTitle, l.VariantTitle)
		if !ok {
			continue
		}
		if sel == remembered {
			return sel, true
		}
		last, found = sel, true
	}
	if !found {
		return model.TreeSelection{}, false
	}
	if !remembered.IsZero() {
		return remembered, true
	}
	return last, true
}

// fetchLinks loads the product behind each link in parallel, keeping link
// order.
func (s *Sequencer) fetchLinks(ctx context.Context, step model.CheckoutStep, links []model.ProductLink) []model.Product {
	results := make([]*model.Product, len(links))
	errs := make([]error, len(links))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxStepProducts)
	for i, link := range links {
		handle := link.Handle()
		if handle == "" {
			errs[i] = model.NewValidationError("product_link", "not a product url")
			continue
		}
		g.Go(func() error {
			results[i], errs[i] = s.fetch(ctx, func(ctx context.Context) (*model.Product, error) {
				return s.catalog.GetProductByHandle(ctx, handle)
			})
			return nil
		})
	}
	g.Wait()

	return s.collect(step, results, errs)
}

// fetchSource loads a step's fixed product ids, falling back to its
// collection.
func (s *Sequencer) fetchSource(ctx context.Context, step model.CheckoutStep) []model.Product {
	if len(step.ProductIDs) > 0 {
		results := make([]*model.Product, len(step.ProductIDs))
		errs := make([]error, len(step.ProductIDs))

		var g errgroup.Group
		g.SetLimit(s.cfg.MaxStepProducts)
		for i, id := range step.ProductIDs {
			g.Go(func() error {
				results[i], errs[i] = s.fetch(ctx, func(ctx context.Context) (*model.Product, error) {
					return s.catalog.GetProduct(ctx, id)
				})
				return nil
			})
		}
		g.Wait()
		return s.collect(step, results, errs)
	}

	if step.CollectionID == "" {
		return []model.Product{}
	}

	var products []model.Product
	var err error
	for n := 0; n < s.cfg.ProductFetchAttempts; n++ {
		products, err = s.catalog.GetProductsByCollection(ctx, step.CollectionID)
		if err == nil || !model.Retryable(err) {
			break
		}
	}
	if err != nil {
		s.logger.Warn("loading step collection failed", "step", step.Title, "collection_id", step.CollectionID, "error", err)
		s.addFetchNotice(step.Index)
		return []model.Product{}
	}
	if len(products) > s.cfg.MaxStepProducts {
		products = products[:s.cfg.MaxStepProducts]
	}
	return products
}

// fetch reads one product, repeating only after transport failures.
func (s *Sequencer) fetch(ctx context.Context, get func(context.Context) (*model.Product, error)) (*model.Product, error) {
	var err error
	for n := 0; n < s.cfg.ProductFetchAttempts; n++ {
		var p *model.Product
		p, err = get(ctx)
		if err == nil {
			return p, nil
		}
		if !model.Retryable(err) {
			break
		}
	}
	return nil, err
}

// collect keeps fetched products in order, capped, and leaves a notice when
// anything failed.
func (s *Sequencer) collect(step model.CheckoutStep, results []*model.Product, errs []error) []model.Product {
	out := make([]model.Product, 0, len(results))
	for _, p := range results {
		if p != nil && len(out) < s.cfg.MaxStepProducts {
			out = append(out, *p)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("loading step products failed", "step", step.Title, "loaded", len(out), "error", err)
		s.addFetchNotice(step.Index)
	}
	return out
}

func (s *Sequencer) addFetchNotice(step int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addNotice(step, fetchFailedMessage, false)
}
