package steps

import (
	"sync"

	"tree-checkout/internal/model"
)

// Memory is the last-known tree selection. It bridges the window between a
// base product write and the cart read that shows it, and is overwritten
// whenever the cart shows a tree line.
type Memory struct {
	mu  sync.Mutex
	sel model.TreeSelection
}

// Remember replaces the selection. Zero selections are ignored.
func (m *Memory) Remember(sel model.TreeSelection) {
	if sel.IsZero() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel = sel
}

// Get returns the selection, zero when none is known.
func (m *Memory) Get() model.TreeSelection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sel
}

// Clear forgets the selection.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel = model.TreeSelection{}
}
