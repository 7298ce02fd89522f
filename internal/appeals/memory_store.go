package appeals

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory appeal store for demo/development mode.
type MemoryStore struct {
	mu      sync.RWMutex
	appeals map[string]*Appeal
	order   []string
}

// NewMemoryStore creates a new in-memory appeal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{appeals: make(map[string]*Appeal)}
}

func (m *MemoryStore) Create(_ context.Context, a *Appeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.appeals[a.ID] = &cp
	m.order = append(m.order, a.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Appeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.appeals[id]
	if !ok {
		return nil, ErrAppealNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListByVerdict(_ context.Context, verdictID string) ([]*Appeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Appeal
	for i := len(m.order) - 1; i >= 0; i-- {
		if a := m.appeals[m.order[i]]; a.VerdictID == verdictID {
			cp := *a
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) ListByActor(_ context.Context, actorID string, limit int) ([]*Appeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Appeal
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		if a := m.appeals[m.order[i]]; a.ActorID == actorID {
			cp := *a
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) ListPending(_ context.Context) ([]*Appeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Appeal
	for _, id := range m.order {
		if a := m.appeals[id]; a.Status == StatusPending {
			cp := *a
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) Resolve(_ context.Context, id string, to Status, resolvedBy string, resolvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appeals[id]
	if !ok {
		return ErrAppealNotFound
	}
	if a.Status != StatusPending {
		return ErrAlreadyResolved
	}
	a.Status = to
	a.ResolvedBy = resolvedBy
	a.ResolvedAt = &resolvedAt
	return nil
}
