// Package steps sequences the buyer through the checkout steps after the tree
// is chosen: it loads each step's products, applies the step's advance policy
// and tracks per-step notices and background cart writes.
package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tree-checkout/internal/model"
)

// Cart is the part of the sync engine the sequencer drives.
type Cart interface {
	Snapshot() *model.CartSnapshot
	Refresh(ctx context.Context) (bool, error)
	EnsureLineForVariant(ctx context.Context, variantID, productID string, qty int) error
	SetNote(ctx context.Context, note string) error
}

// Catalog reads products. gateway.Gateway implements it.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
	GetProductByHandle(ctx context.Context, handle string) (*model.Product, error)
	GetProductsByCollection(ctx context.Context, collectionID string) ([]model.Product, error)
}

// Config tunes product loading and the delivery gate.
type Config struct {
	// MinDeliveryDate is the earliest accepted delivery date. Zero means
	// today.
	MinDeliveryDate time.Time
	// SelectionRefreshes bounds the cart refreshes made while the tree
	// selection cannot be determined.
	SelectionRefreshes int
	// ProductFetchAttempts bounds reads of a step's products after
	// transport failures.
	ProductFetchAttempts int
	// MaxStepProducts caps the products shown on a step.
	MaxStepProducts int
}

// DefaultConfig returns the production sequencer settings.
func DefaultConfig() Config {
	return Config{
		SelectionRefreshes:   2,
		ProductFetchAttempts: 2,
		MaxStepProducts:      4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SelectionRefreshes < 0 {
		c.SelectionRefreshes = 0
	}
	if c.ProductFetchAttempts <= 0 {
		c.ProductFetchAttempts = d.ProductFetchAttempts
	}
	if c.MaxStepProducts <= 0 {
		c.MaxStepProducts = d.MaxStepProducts
	}
	return c
}

// Options wires a Sequencer's optional collaborators.
type Options struct {
	Config Config
	// Memory is the last-known tree selection, shared with the caller that
	// records base product choices. A private one is used when nil.
	Memory *Memory
	Logger *slog.Logger
	Now    func() time.Time
}

// Move describes the outcome of a navigation.
type Move struct {
	From int `json:"from"`
	To   int `json:"to"`
	// Exited is set when Prev left the first step.
	Exited bool `json:"exited,omitempty"`
	// Checkout is set when Next was accepted on the summary step.
	Checkout    bool   `json:"checkout,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// Sequencer is the AT_STEP(i) state machine. Safe for concurrent use.
type Sequencer struct {
	steps   []model.CheckoutStep
	cart    Cart
	catalog Catalog
	memory  *Memory
	cfg     Config
	minDate time.Time
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	current     int
	reached     int
	gen         int
	delivery    Delivery
	noteWritten string
	notices     []Notice
	tasks       []*task
}

type task struct {
	Task
	done chan struct{}
}

// New builds a sequencer over a fixed step list whose last step is SUMMARY.
// Step indexes are assigned from list order.
func New(steps []model.CheckoutStep, cart Cart, catalog Catalog, opts Options) (*Sequencer, error) {
	if len(steps) == 0 {
		return nil, errors.New("steps: no steps configured")
	}
	for i, st := range steps {
		if st.Kind == model.StepSummary && i != len(steps)-1 {
			return nil, fmt.Errorf("steps: summary must be the last step, found at %d", i)
		}
	}
	if steps[len(steps)-1].Kind != model.StepSummary {
		return nil, errors.New("steps: last step must be the summary")
	}

	own := make([]model.CheckoutStep, len(steps))
	for i, st := range steps {
		st.Index = i
		st.ProductIDs = append([]string(nil), st.ProductIDs...)
		own[i] = st
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	memory := opts.Memory
	if memory == nil {
		memory = &Memory{}
	}

	minDate := opts.Config.MinDeliveryDate
	if minDate.IsZero() {
		minDate = now()
	}

	return &Sequencer{
		steps:   own,
		cart:    cart,
		catalog: catalog,
		memory:  memory,
		cfg:     opts.Config.withDefaults(),
		minDate: time.Date(minDate.Year(), minDate.Month(), minDate.Day(), 0, 0, 0, 0, time.UTC),
		logger:  logger,
		now:     now,
	}, nil
}

// Steps returns the step list.
func (s *Sequencer) Steps() []model.CheckoutStep {
	return append([]model.CheckoutStep(nil), s.steps...)
}

// Current returns the step the buyer is on.
func (s *Sequencer) Current() model.CheckoutStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps[s.current]
}

// === Navigation ===

// Next leaves the current step if its gate allows. On the summary step it
// drains pending writes, refreshes the cart and accepts checkout only for a
// non-empty cart.
func (s *Sequencer) Next(ctx context.Context) (Move, error) {
	step := s.Current()
	stay := Move{From: step.Index, To: step.Index}

	if step.Kind == model.StepSummary {
		return s.checkout(ctx, step)
	}
	if err := s.gate(step); err != nil {
		return stay, err
	}

	s.syncNote(ctx, step)
	return s.moveFrom(step.Index, step.Index+1), nil
}

// Prev goes back one step. On the first step it reports Exited and stays.
func (s *Sequencer) Prev(ctx context.Context) (Move, error) {
	step := s.Current()
	s.syncNote(ctx, step)
	if step.Index == 0 {
		return Move{From: 0, To: 0, Exited: true}, nil
	}
	return s.moveFrom(step.Index, step.Index-1), nil
}

// Jump moves to a step already reached.
func (s *Sequencer) Jump(ctx context.Context, i int) (Move, error) {
	step := s.Current()
	if i < 0 || i >= len(s.steps) {
		return Move{From: step.Index, To: step.Index}, model.NewValidationError("step", "out of range")
	}
	s.mu.Lock()
	reached := s.reached
	s.mu.Unlock()
	if i > reached {
		return Move{From: step.Index, To: step.Index}, model.NewValidationError("step", "not reached yet")
	}
	if i != step.Index {
		s.syncNote(ctx, step)
	}
	return s.moveFrom(step.Index, i), nil
}

// moveFrom changes step only if the buyer is still on from; a stale
// auto-advance never overrides a navigation that happened meanwhile.
func (s *Sequencer) moveFrom(from, to int) Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != from {
		return Move{From: from, To: s.current}
	}
	s.current = to
	s.reached = max(s.reached, to)
	return Move{From: from, To: to}
}

// CanAdvance reports whether Next would be accepted on the current step and,
// when not, why.
func (s *Sequencer) CanAdvance() (bool, string) {
	step := s.Current()
	if step.Kind == model.StepSummary {
		if s.cart.Snapshot().IsEmpty() {
			return false, model.UserMessage(model.NewNoCartError())
		}
		return true, ""
	}
	if err := s.gate(step); err != nil {
		return false, model.UserMessage(err)
	}
	return true, ""
}

func (s *Sequencer) gate(step model.CheckoutStep) error {
	if step.Kind != model.StepDeliveryDate {
		return nil
	}
	s.mu.Lock()
	date := s.delivery.Date
	s.mu.Unlock()
	if ok, reason := dateGate(date, s.minDate); !ok {
		return model.NewValidationError("delivery_date", reason)
	}
	return nil
}

func (s *Sequencer) checkout(ctx context.Context, step model.CheckoutStep) (Move, error) {
	stay := Move{From: step.Index, To: step.Index}

	if err := s.Wait(ctx); err != nil {
		return stay, model.NewTransportError("cancelled", err)
	}
	if _, err := s.cart.Refresh(ctx); err != nil && !errors.Is(err, model.ErrNotFound) {
		s.report(step.Index, err, true)
		return stay, err
	}

	snap := s.cart.Snapshot()
	if snap.IsEmpty() {
		err := model.NewNoCartError()
		s.report(step.Index, err, true)
		return stay, err
	}

	s.mu.Lock()
	s.clearBlocking(step.Index)
	s.mu.Unlock()

	s.logger.Info("checkout accepted", "cart_id", snap.ID, "lines", len(snap.Lines))
	stay.Checkout = true
	stay.CheckoutURL = snap.CheckoutURL
	return stay, nil
}

// syncNote writes the delivery note when leaving a delivery step and the
// note changed since the last successful write. Failures are non-blocking.
func (s *Sequencer) syncNote(ctx context.Context, step model.CheckoutStep) {
	if step.Kind != model.StepDeliveryDate && step.Kind != model.StepDeliveryTime {
		return
	}
	s.mu.Lock()
	note := s.delivery.Note()
	unchanged := note == s.noteWritten
	s.mu.Unlock()
	if unchanged {
		return
	}

	if err := s.cart.SetNote(ctx, note); err != nil {
		s.report(step.Index, err, false)
		return
	}
	s.mu.Lock()
	s.noteWritten = note
	s.mu.Unlock()
}

// === Selection ===

// Select adds a product variant from the current step's list and applies the
// step's advance policy:
//   - STAND awaits the verified write, then advances.
//   - INSTALLATION and INSURANCE advance at once and write in the background.
//   - ACCESSORIES writes in the background and stays.
func (s *Sequencer) Select(ctx context.Context, productID, variantID string) (Move, error) {
	step := s.Current()
	stay := Move{From: step.Index, To: step.Index}

	if err := model.ValidateID("variant_id", variantID); err != nil {
		return stay, err
	}
	if productID != "" {
		if err := model.ValidateID("product_id", productID); err != nil {
			return stay, err
		}
	}

	switch step.Kind {
	case model.StepStand:
		if err := s.cart.EnsureLineForVariant(ctx, variantID, productID, 1); err != nil {
			s.report(step.Index, err, true)
			return stay, err
		}
		s.mu.Lock()
		s.clearBlocking(step.Index)
		s.mu.Unlock()
		return s.moveFrom(step.Index, step.Index+1), nil

	case model.StepInstallation, model.StepInsurance:
		s.background(ctx, step, productID, variantID)
		return s.moveFrom(step.Index, step.Index+1), nil

	case model.StepAccessories:
		s.background(ctx, step, productID, variantID)
		return stay, nil

	default:
		return stay, model.NewValidationError("step", "this step has no products to select")
	}
}

// background starts a tracked cart write that outlives ctx's cancellation.
func (s *Sequencer) background(ctx context.Context, step model.CheckoutStep, productID, variantID string) Task {
	t := &task{
		Task: Task{
			ID:        uuid.NewString(),
			Step:      step.Index,
			VariantID: variantID,
			Status:    TaskPending,
		},
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.pruneTasks()
	s.tasks = append(s.tasks, t)
	gen := s.gen
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(t.done)
		s.mu.Lock()
		reset := s.gen != gen
		s.mu.Unlock()
		if reset {
			return
		}
		err := s.cart.EnsureLineForVariant(ctx, variantID, productID, 1)

		// The same variant is already being written. That write decides
		// this task's outcome and reports its own failure.
		if errors.Is(err, model.ErrInFlight) {
			if sib := s.earlierTask(t); sib != nil {
				<-sib.done
				s.mu.Lock()
				t.Status, t.Err = sib.Status, sib.Err
				s.mu.Unlock()
				return
			}
			s.mu.Lock()
			t.Status, t.Err = TaskFailed, model.UserMessage(err)
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case err == nil:
			t.Status = TaskDone
		default:
			t.Status = TaskFailed
			t.Err = model.UserMessage(err)
			s.logger.Warn("background cart write failed",
				"task_id", t.ID, "step", step.Title, "variant_id", variantID, "error", err)
			if s.gen == gen {
				s.addNotice(step.Index, t.Err, false)
			}
		}
	}()

	return t.Task
}

// keepFinishedTasks bounds the finished tasks kept for display.
const keepFinishedTasks = 10

// pruneTasks drops the oldest finished tasks beyond keepFinishedTasks.
// Pending tasks are always kept. Callers hold s.mu.
func (s *Sequencer) pruneTasks() {
	finished := 0
	for _, t := range s.tasks {
		if t.Status != TaskPending {
			finished++
		}
	}
	drop := finished - keepFinishedTasks
	if drop <= 0 {
		return
	}
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if drop > 0 && t.Status != TaskPending {
			drop--
			continue
		}
		kept = append(kept, t)
	}
	s.tasks = kept
}

// earlierTask returns the latest task for t's variant started before t.
func (s *Sequencer) earlierTask(t *task) *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sib *task
	for _, other := range s.tasks {
		if other == t {
			break
		}
		if other.VariantID == t.VariantID {
			sib = other
		}
	}
	return sib
}

// Wait blocks until every background write started so far has finished.
func (s *Sequencer) Wait(ctx context.Context) error {
	s.mu.Lock()
	pending := append([]*task(nil), s.tasks...)
	s.mu.Unlock()

	for _, t := range pending {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// === Notices ===

// Report attaches err to the current step as a notice.
func (s *Sequencer) Report(err error, blocking bool) Notice {
	return s.report(s.Current().Index, err, blocking)
}

func (s *Sequencer) report(step int, err error, blocking bool) Notice {
	s.logger.Warn("step error", "step", step, "blocking", blocking, "error", err)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addNotice(step, model.UserMessage(err), blocking)
}

// Reset returns to the first step and forgets delivery details, notices and
// tasks. Writes still in flight complete but no longer report.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = 0
	s.reached = 0
	s.gen++
	s.delivery = Delivery{}
	s.noteWritten = ""
	s.notices = nil
	s.tasks = nil
	s.memory.Clear()
}

// View is a serializable snapshot of the sequencer.
type View struct {
	Index           int                  `json:"index"`
	Step            model.CheckoutStep   `json:"step"`
	Steps           []model.CheckoutStep `json:"steps"`
	Reached         int                  `json:"reached"`
	CanAdvance      bool                 `json:"can_advance"`
	Blocked         string               `json:"blocked,omitempty"`
	Delivery        Delivery             `json:"delivery"`
	DeliveryNote    string               `json:"delivery_note,omitempty"`
	MinDeliveryDate string               `json:"min_delivery_date"`
	Notices         []Notice             `json:"notices"`
	Tasks           []Task               `json:"tasks"`
}

// View returns the current state for display.
func (s *Sequencer) View() View {
	ok, reason := s.CanAdvance()

	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		Index:           s.current,
		Step:            s.steps[s.current],
		Steps:           append([]model.CheckoutStep(nil), s.steps...),
		Reached:         s.reached,
		CanAdvance:      ok,
		Blocked:         reason,
		Delivery:        s.delivery,
		DeliveryNote:    s.delivery.Note(),
		MinDeliveryDate: s.minDate.Format(DateLayout),
		Notices:         append([]Notice{}, s.notices...),
		Tasks:           make([]Task, 0, len(s.tasks)),
	}
	for _, t := range s.tasks {
		v.Tasks = append(v.Tasks, t.Task)
	}
	return v
}
