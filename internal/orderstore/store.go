// Package orderstore holds the in-memory map of grid slots for one bot: the
// canonical store indexed by id, plus lookup indices by chain order id and
// by (side, state), behind a single update() entry point.
package orderstore

import (
	"fmt"
	"sync"

	"gridmm/internal/core"
	apperrors "gridmm/pkg/errors"
)

// Store is the in-memory map of grid slots for one bot. Locking hierarchy:
// Store.mu is always acquired before any individual slot's Mu — never the
// reverse. Callers that need to mutate a slot's fields take Store.mu via
// Update, which then takes the slot's own Mu for the duration of the
// mutation callback.
type Store struct {
	mu sync.RWMutex

	byID           map[string]*core.GridSlot
	byChainOrderID map[string]*core.GridSlot
	order          []string // insertion order, stable across the grid's lifetime
}

// New builds a Store from a freshly generated or restored slot list.
func New(slots []*core.GridSlot) *Store {
	s := &Store{
		byID:           make(map[string]*core.GridSlot, len(slots)),
		byChainOrderID: make(map[string]*core.GridSlot, len(slots)),
		order:          make([]string, 0, len(slots)),
	}
	for _, slot := range slots {
		s.byID[slot.ID] = slot
		s.order = append(s.order, slot.ID)
		if slot.ChainOrderID != "" {
			s.byChainOrderID[slot.ChainOrderID] = slot
		}
	}
	return s
}

// Get returns the slot for an id.
func (s *Store) Get(id string) (*core.GridSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.byID[id]
	return slot, ok
}

// ByChainOrderID returns the slot currently resting under a chain order id.
func (s *Store) ByChainOrderID(chainOrderID string) (*core.GridSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.byChainOrderID[chainOrderID]
	return slot, ok
}

// BySideState returns all slots on a side in a given state, in insertion
// order. Callers must not mutate the returned slots' fields without going
// through Update.
func (s *Store) BySideState(side core.GridSlotSide, state core.GridSlotState) []*core.GridSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.GridSlot
	for _, id := range s.order {
		slot := s.byID[id]
		slot.Mu.RLock()
		if slot.Side == side && slot.State == state {
			out = append(out, slot)
		}
		slot.Mu.RUnlock()
	}
	return out
}

// All returns every slot in insertion order.
func (s *Store) All() []*core.GridSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.GridSlot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Update is the single mutation entry point: it locks the store, locates the
// slot by id, locks the slot, runs mutate, and re-indexes byChainOrderID if
// the mutation changed it. It checks invariant 2 after mutate runs:
// ACTIVE/PARTIAL states require a non-empty ChainOrderID, VIRTUAL/FILLED
// require an empty one. On a violation it returns an error without undoing
// the mutation and without re-indexing byChainOrderID.
func (s *Store) Update(id string, mutate func(*core.GridSlot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("orderstore: no slot with id %q: %w", id, apperrors.ErrOrderNotFound)
	}

	slot.Mu.Lock()
	prevChainOrderID := slot.ChainOrderID
	mutate(slot)
	newChainOrderID := slot.ChainOrderID
	state := slot.State
	slot.Mu.Unlock()

	switch state {
	case core.SlotActive, core.SlotPartial:
		if newChainOrderID == "" {
			return fmt.Errorf("orderstore: slot %q entered state %s without a chain_order_id", id, state)
		}
	case core.SlotVirtual, core.SlotFilled:
		if newChainOrderID != "" {
			return fmt.Errorf("orderstore: slot %q in state %s must not carry a chain_order_id", id, state)
		}
	}

	if prevChainOrderID != newChainOrderID {
		if prevChainOrderID != "" {
			delete(s.byChainOrderID, prevChainOrderID)
		}
		if newChainOrderID != "" {
			s.byChainOrderID[newChainOrderID] = slot
		}
	}
	return nil
}

// Replace discards all slots and indices and installs a fresh grid,
// performed only on full regeneration.
func (s *Store) Replace(slots []*core.GridSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*core.GridSlot, len(slots))
	s.byChainOrderID = make(map[string]*core.GridSlot, len(slots))
	s.order = make([]string, 0, len(slots))
	for _, slot := range slots {
		s.byID[slot.ID] = slot
		s.order = append(s.order, slot.ID)
		if slot.ChainOrderID != "" {
			s.byChainOrderID[slot.ChainOrderID] = slot
		}
	}
}

// Len returns the number of slots currently in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
