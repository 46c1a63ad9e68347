// Package cartsync owns a session's cart: it mediates every mutation through
// the gateway, verifies each write by reading the cart back, and retries
// transient failures with bounded exponential backoff.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tree-checkout/internal/gateway"
	"tree-checkout/internal/model"
	"tree-checkout/internal/reconcile"
)

// Status is the engine's coarse activity state.
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusLoading Status = "LOADING"
	StatusError   Status = "ERROR"
)

// Config tunes the write protocol.
type Config struct {
	// SettleDelay is waited after every successful mutation before the
	// verifying read.
	SettleDelay time.Duration
	// MaxAttempts bounds each write, counting the first try.
	MaxAttempts int
	// BaseBackoff doubles before each retry, up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig returns the production write protocol settings.
func DefaultConfig() Config {
	return Config{
		SettleDelay: 500 * time.Millisecond,
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  4 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = c.BaseBackoff
	}
	return c
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Persister stores the cart id and last snapshot. store.CartStore
// implements it.
type Persister interface {
	Load(ctx context.Context) (string, *model.CartSnapshot, error)
	Save(ctx context.Context, cartID string, snap *model.CartSnapshot) error
	Clear(ctx context.Context) error
}

// Options wires an Engine's collaborators. Only the gateway is required.
type Options struct {
	Config Config
	Store  Persister
	Sleep  Sleeper
	Logger *slog.Logger
}

// Engine is one session's cart. Safe for concurrent use: state is guarded by
// mu and every mutation with its read-back runs under writeMu.
type Engine struct {
	gw     gateway.Gateway
	store  Persister
	cfg    Config
	sleep  Sleeper
	logger *slog.Logger

	writeMu sync.Mutex

	mu       sync.RWMutex
	cartID   string
	snapshot *model.CartSnapshot
	status   Status
	lastErr  error
	loaded   bool
	inflight map[string]struct{}
	intents  map[string]reconcile.Intent
}

// New creates an engine with no cart.
func New(gw gateway.Gateway, opts Options) *Engine {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		gw:       gw,
		store:    opts.Store,
		cfg:      opts.Config.withDefaults(),
		sleep:    sleep,
		logger:   logger,
		status:   StatusIdle,
		inflight: make(map[string]struct{}),
		intents:  make(map[string]reconcile.Intent),
	}
}

// === Read accessors ===

// CartID returns the current cart id, or "" when there is no cart.
func (e *Engine) CartID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cartID
}

// Snapshot returns a copy of the last successful read.
func (e *Engine) Snapshot() *model.CartSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.Clone()
}

// Status returns the engine's activity state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// LastError returns the error of the last failed operation, cleared by the
// next success.
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// OrderSummary projects the current snapshot. Nil without a snapshot.
func (e *Engine) OrderSummary() *model.OrderSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return model.DeriveOrderSummary(e.snapshot)
}

// CheckoutURL returns the snapshot's hosted checkout URL.
func (e *Engine) CheckoutURL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snapshot == nil {
		return ""
	}
	return e.snapshot.CheckoutURL
}

// === Lifecycle ===

// Load seeds state from persistence, once, then refreshes from the store.
// Unreadable persisted data is cleared; Load never fails the session.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.loaded {
		e.mu.Unlock()
		return nil
	}
	e.loaded = true
	e.mu.Unlock()

	if e.store == nil {
		return nil
	}

	cartID, snap, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Warn("discarding persisted cart", "error", err)
		if cerr := e.store.Clear(ctx); cerr != nil {
			e.logger.Warn("clearing persisted cart failed", "error", cerr)
		}
		return nil
	}
	if cartID == "" {
		return nil
	}

	e.mu.Lock()
	e.cartID = cartID
	e.snapshot = snap
	e.mu.Unlock()

	if _, err := e.Refresh(ctx); err != nil && !errors.Is(err, model.ErrNotFound) {
		e.logger.Warn("refreshing persisted cart failed", "cart_id", cartID, "error", err)
		return err
	}
	return nil
}

// Refresh re-reads the cart if one exists and reports whether a fresh
// snapshot was obtained. A cart the store no longer knows is dropped.
func (e *Engine) Refresh(ctx context.Context) (bool, error) {
	if e.CartID() == "" {
		return false, nil
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	snap, err := e.read(ctx)
	if err != nil {
		return false, err
	}

	e.mu.RLock()
	intents := make([]reconcile.Intent, 0, len(e.intents))
	for _, in := range e.intents {
		intents = append(intents, in)
	}
	e.mu.RUnlock()

	if drift := reconcile.Diff(intents, snap); len(drift.Missing) > 0 {
		e.logger.Debug("cart drift", "cart_id", snap.ID, "missing", len(drift.Missing))
	}
	return true, nil
}

// Reset forgets the cart and its persisted copy. Used for a new order.
func (e *Engine) Reset(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	e.cartID = ""
	e.snapshot = nil
	e.status = StatusIdle
	e.lastErr = nil
	e.intents = make(map[string]reconcile.Intent)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.Clear(ctx); err != nil {
			return fmt.Errorf("clearing persisted cart: %w", err)
		}
	}
	return nil
}

// === Mutations ===

// EnsureLineForVariant makes the cart contain variantID, creating the cart on
// first use. Success means a read after the write showed a line for the
// variant or for productID.
func (e *Engine) EnsureLineForVariant(ctx context.Context, variantID, productID string, qty int) error {
	if err := model.ValidateID("variant_id", variantID); err != nil {
		return err
	}
	if productID != "" {
		if err := model.ValidateID("product_id", productID); err != nil {
			return err
		}
	}
	if qty <= 0 {
		return model.NewValidationError("quantity", "must be at least 1")
	}

	if !e.claim("variant:" + variantID) {
		return model.NewInFlightError("variant " + variantID)
	}
	defer e.release("variant:" + variantID)

	err := e.write(ctx, writeOp{
		name: "ensure_line",
		mutate: func(ctx context.Context) error {
			return e.addOrCreate(ctx, variantID, qty)
		},
		verify: func(snap *model.CartSnapshot) bool {
			return reconcile.ContainsVariant(snap, variantID, productID)
		},
		gone: func(context.Context, error) (bool, error) {
			return true, nil
		},
	}, slog.String("variant_id", variantID))
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.intents[variantID] = reconcile.Intent{VariantID: variantID, ProductID: productID}
	e.mu.Unlock()
	return nil
}

// addOrCreate issues CreateCart or AddLine. A created cart id is adopted at
// once so no later attempt can create a second cart.
func (e *Engine) addOrCreate(ctx context.Context, variantID string, qty int) error {
	if cartID := e.CartID(); cartID != "" {
		err := e.gw.AddLine(ctx, cartID, variantID, qty)
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		e.logger.Info("cart expired, creating a new one", "cart_id", cartID)
		e.dropCart(ctx)
	}

	cartID, err := e.gw.CreateCart(ctx, variantID, qty)
	if err != nil {
		return err
	}
	if err := model.ValidateID("cart_id", cartID); err != nil {
		return model.NewRemoteValidationError([]string{"The store returned an invalid cart."})
	}

	e.mu.Lock()
	e.cartID = cartID
	e.snapshot = nil
	e.mu.Unlock()
	e.persist(ctx, cartID, nil)

	e.logger.Info("cart created", "cart_id", cartID)
	return nil
}

// UpdateLineQuantity sets a line's quantity. qty <= 0 removes the line.
func (e *Engine) UpdateLineQuantity(ctx context.Context, lineID string, qty int) error {
	if qty <= 0 {
		return e.RemoveLine(ctx, lineID)
	}
	if err := model.ValidateID("line_id", lineID); err != nil {
		return err
	}
	cartID := e.CartID()
	if cartID == "" {
		return model.NewNoCartError()
	}

	if !e.claim("line:" + lineID) {
		return model.NewInFlightError("line " + lineID)
	}
	defer e.release("line:" + lineID)

	return e.write(ctx, writeOp{
		name: "update_line",
		mutate: func(ctx context.Context) error {
			return e.gw.UpdateLine(ctx, e.CartID(), lineID, qty)
		},
		verify: func(snap *model.CartSnapshot) bool {
			return reconcile.QuantityApplied(snap, lineID, qty)
		},
		gone: func(ctx context.Context, err error) (bool, error) {
			return false, err
		},
	}, slog.String("line_id", lineID), slog.Int("quantity", qty))
}

// RemoveLine deletes a line. Removing a line that is already gone succeeds.
func (e *Engine) RemoveLine(ctx context.Context, lineID string) error {
	if err := model.ValidateID("line_id", lineID); err != nil {
		return err
	}
	if e.CartID() == "" {
		return model.NewNoCartError()
	}

	e.mu.RLock()
	line, present := e.snapshot.Line(lineID)
	e.mu.RUnlock()
	if !present {
		return nil
	}

	if !e.claim("line:" + lineID) {
		return model.NewInFlightError("line " + lineID)
	}
	defer e.release("line:" + lineID)

	err := e.write(ctx, writeOp{
		name: "remove_line",
		mutate: func(ctx context.Context) error {
			return e.gw.RemoveLine(ctx, e.CartID(), lineID)
		},
		verify: func(snap *model.CartSnapshot) bool {
			return reconcile.LineRemoved(snap, lineID)
		},
		gone: func(ctx context.Context, err error) (bool, error) {
			// Line or cart already gone: the desired end state holds.
			if e.CartID() != "" {
				e.read(ctx)
			}
			return false, nil
		},
	}, slog.String("line_id", lineID))
	if err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.intents, line.VariantID)
	e.mu.Unlock()
	return nil
}

// SetNote overwrites the cart note.
func (e *Engine) SetNote(ctx context.Context, note string) error {
	if e.CartID() == "" {
		return model.NewNoCartError()
	}
	if !e.claim("note") {
		return model.NewInFlightError("note")
	}
	defer e.release("note")

	return e.write(ctx, writeOp{
		name: "set_note",
		mutate: func(ctx context.Context) error {
			return e.gw.SetCartNote(ctx, e.CartID(), note)
		},
		verify: func(snap *model.CartSnapshot) bool {
			return snap.Note == note
		},
		gone: func(ctx context.Context, err error) (bool, error) {
			return false, model.NewNoCartError()
		},
	})
}

// === Write protocol ===

// writeOp is one verified mutation.
type writeOp struct {
	name   string
	mutate func(ctx context.Context) error
	verify func(snap *model.CartSnapshot) bool
	// gone handles a NotFound from the store; retry restarts the attempt,
	// otherwise result is returned.
	gone func(ctx context.Context, err error) (retry bool, result error)
}

// write runs op under the write lock and records the outcome.
func (e *Engine) write(ctx context.Context, op writeOp, attrs ...any) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.setStatus(StatusLoading, nil)
	err := e.attempt(ctx, op, e.logger.With(append([]any{"op", op.name}, attrs...)...))
	if err != nil {
		e.setStatus(StatusError, err)
		return err
	}
	e.setStatus(StatusIdle, nil)
	return nil
}

// attempt is the bounded loop: backoff → (re-read) → mutate → settle → read
// → verify. Only transport and consistency failures are retried.
func (e *Engine) attempt(ctx context.Context, op writeOp, log *slog.Logger) error {
	var lastErr error
	written := false

	for n := 1; n <= e.cfg.MaxAttempts; n++ {
		if n > 1 {
			delay := e.backoff(n - 1)
			log.Warn("retrying cart write", "attempt", n, "delay", delay, "error", lastErr)
			if err := e.sleep(ctx, delay); err != nil {
				return e.interrupted(lastErr, err)
			}
		}

		// A write the store acknowledged may land late; look before
		// mutating again.
		if written {
			snap, err := e.read(ctx)
			switch {
			case err == nil && op.verify(snap):
				return nil
			case errors.Is(err, model.ErrNotFound):
				retry, result := op.gone(ctx, err)
				if !retry {
					return result
				}
				written = false
			case err != nil && !model.Retryable(err):
				return err
			case err != nil:
				lastErr = err
				continue
			}
		}

		if err := op.mutate(ctx); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				retry, result := op.gone(ctx, err)
				if !retry {
					return result
				}
				lastErr = err
				continue
			}
			if !model.Retryable(err) {
				return err
			}
			lastErr = err
			continue
		}
		written = true

		if err := e.sleep(ctx, e.cfg.SettleDelay); err != nil {
			return e.interrupted(lastErr, err)
		}

		snap, err := e.read(ctx)
		switch {
		case err == nil && op.verify(snap):
			log.Debug("cart write verified", "attempt", n)
			return nil
		case err == nil:
			lastErr = model.NewConsistencyError(op.name)
		case errors.Is(err, model.ErrNotFound):
			retry, result := op.gone(ctx, err)
			if !retry {
				return result
			}
			written = false
			lastErr = err
		case !model.Retryable(err):
			return err
		default:
			lastErr = err
		}
	}

	log.Error("cart write failed", "attempts", e.cfg.MaxAttempts, "error", lastErr)
	return lastErr
}

// backoff returns the delay before retry n (1-based): base·2^(n-1), capped.
func (e *Engine) backoff(n int) time.Duration {
	d := e.cfg.BaseBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= e.cfg.MaxBackoff {
			return e.cfg.MaxBackoff
		}
	}
	return min(d, e.cfg.MaxBackoff)
}

// interrupted maps a cancelled wait. The last gateway failure, if any, is
// the more useful error.
func (e *Engine) interrupted(lastErr, waitErr error) error {
	if lastErr != nil {
		return lastErr
	}
	return model.NewTransportError("cancelled", waitErr)
}

// read fetches the cart and replaces the snapshot wholesale. A cart the store
// no longer knows is dropped before the NotFound is returned.
func (e *Engine) read(ctx context.Context) (*model.CartSnapshot, error) {
	cartID := e.CartID()
	if cartID == "" {
		return nil, model.NewNoCartError()
	}

	snap, err := e.gw.GetCart(ctx, cartID)
	if errors.Is(err, model.ErrNotFound) {
		e.logger.Info("cart no longer exists", "cart_id", cartID)
		e.dropCart(ctx)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if snap.ID == "" {
		snap.ID = cartID
	}

	e.mu.Lock()
	e.snapshot = snap.Clone()
	e.mu.Unlock()
	e.persist(ctx, cartID, snap)

	return snap, nil
}

// dropCart forgets a cart the store reported missing.
func (e *Engine) dropCart(ctx context.Context) {
	e.mu.Lock()
	e.cartID = ""
	e.snapshot = nil
	e.intents = make(map[string]reconcile.Intent)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.Clear(ctx); err != nil {
			e.logger.Warn("clearing persisted cart failed", "error", err)
		}
	}
}

func (e *Engine) persist(ctx context.Context, cartID string, snap *model.CartSnapshot) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, cartID, snap); err != nil {
		e.logger.Warn("persisting cart failed", "cart_id", cartID, "error", err)
	}
}

func (e *Engine) setStatus(s Status, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = s
	e.lastErr = err
}

// claim marks key in flight. False means a duplicate request.
func (e *Engine) claim(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[key]; busy {
		return false
	}
	e.inflight[key] = struct{}{}
	return true
}

func (e *Engine) release(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, key)
}
