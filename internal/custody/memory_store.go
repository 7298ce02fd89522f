package custody

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory transfer store for demo/development mode.
type MemoryStore struct {
	mu        sync.RWMutex
	transfers map[string]*Transfer
	byVerdict map[string]string // verdict ID -> transfer ID
}

// NewMemoryStore creates a new in-memory custody store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transfers: make(map[string]*Transfer),
		byVerdict: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, t *Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.transfers[t.ID] = &cp
	if t.VerdictID != "" {
		m.byVerdict[t.VerdictID] = t.ID
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transfers[id]
	if !ok {
		return nil, ErrTransferNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetByVerdict(_ context.Context, verdictID string) (*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byVerdict[verdictID]
	if !ok {
		return nil, ErrTransferNotFound
	}
	cp := *m.transfers[id]
	return &cp, nil
}

func (m *MemoryStore) ListHeld(_ context.Context) ([]*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var held []*Transfer
	for _, t := range m.transfers {
		if t.Status == StatusHeld {
			cp := *t
			held = append(held, &cp)
		}
	}
	return held, nil
}

func (m *MemoryStore) ListExpiredHeld(_ context.Context, action string, now time.Time) ([]*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var expired []*Transfer
	for _, t := range m.transfers {
		if t.Status != StatusHeld || t.Action != action {
			continue
		}
		if t.HeldUntil != nil && !t.HeldUntil.After(now) {
			cp := *t
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

func (m *MemoryStore) Settle(_ context.Context, id string, to Status, settledAt time.Time, settledBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[id]
	if !ok {
		return ErrTransferNotFound
	}
	if t.Status != StatusHeld {
		return ErrInvalidTransition
	}
	t.Status = to
	t.SettledAt = &settledAt
	t.SettledBy = settledBy
	return nil
}
