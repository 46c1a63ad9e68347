// Package store persists the cart id and last-read cart so a session
// survives a page reload or a server restart.
//
// Persistence is a convenience, never a source of truth: anything that fails
// to load is discarded and the session starts without a cart.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tree-checkout/internal/model"
)

// ErrMissing is returned by KV.Get for an absent key.
var ErrMissing = errors.New("key not found")

// ErrCorrupt is returned when persisted data cannot be parsed.
var ErrCorrupt = errors.New("persisted cart is corrupt")

// KV is the minimal key-value surface the cart store needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) error
}

// === In-memory KV ===

// Memory is a process-local KV.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemory returns an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return "", ErrMissing
	}
	return v, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *Memory) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

// === Cart Store ===

// Key suffixes under a session namespace.
const (
	keyCartID   = "cart_id"
	keyCartData = "cart_data"
)

// CartStore keeps {cart id, snapshot JSON} for one session.
type CartStore struct {
	kv        KV
	namespace string
}

// NewCartStore scopes kv to a session namespace.
func NewCartStore(kv KV, namespace string) *CartStore {
	return &CartStore{kv: kv, namespace: namespace}
}

func (s *CartStore) key(suffix string) string {
	if s.namespace == "" {
		return suffix
	}
	return s.namespace + ":" + suffix
}

// Load returns the persisted cart id and snapshot. A session that never saved
// returns "", nil, nil. Unparseable data returns ErrCorrupt.
func (s *CartStore) Load(ctx context.Context) (string, *model.CartSnapshot, error) {
	cartID, err := s.kv.Get(ctx, s.key(keyCartID))
	if errors.Is(err, ErrMissing) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("reading cart id: %w", err)
	}
	if err := model.ValidateID("cart_id", cartID); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	raw, err := s.kv.Get(ctx, s.key(keyCartData))
	if errors.Is(err, ErrMissing) {
		return cartID, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("reading cart data: %w", err)
	}

	var snap model.CartSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if snap.ID != "" && snap.ID != cartID {
		return "", nil, fmt.Errorf("%w: snapshot belongs to %s", ErrCorrupt, snap.ID)
	}
	return cartID, &snap, nil
}

// Save writes the cart id and snapshot.
func (s *CartStore) Save(ctx context.Context, cartID string, snap *model.CartSnapshot) error {
	if err := s.kv.Set(ctx, s.key(keyCartID), cartID); err != nil {
		return fmt.Errorf("writing cart id: %w", err)
	}
	if snap == nil {
		return s.kv.Del(ctx, s.key(keyCartData))
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling cart: %w", err)
	}
	if err := s.kv.Set(ctx, s.key(keyCartData), string(data)); err != nil {
		return fmt.Errorf("writing cart data: %w", err)
	}
	return nil
}

// Clear removes everything persisted for the session.
func (s *CartStore) Clear(ctx context.Context) error {
	return s.kv.Del(ctx, s.key(keyCartID), s.key(keyCartData))
}
