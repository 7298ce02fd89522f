package verdict

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/helixpay/payguard/internal/fusion"
)

// MemoryStore is an in-memory verdict store for demo/development mode.
type MemoryStore struct {
	mu       sync.RWMutex
	verdicts map[string]*Verdict
	order    []string // creation order
}

// NewMemoryStore creates a new in-memory verdict store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{verdicts: make(map[string]*Verdict)}
}

func (m *MemoryStore) Create(_ context.Context, v *Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := clone(v)
	m.verdicts[v.ID] = cp
	m.order = append(m.order, v.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Verdict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.verdicts[id]
	if !ok {
		return nil, ErrVerdictNotFound
	}
	return clone(v), nil
}

func (m *MemoryStore) ListByActor(_ context.Context, actorID string, limit int) ([]*Verdict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Verdict
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		v := m.verdicts[m.order[i]]
		if v.ActorID == actorID {
			result = append(result, clone(v))
		}
	}
	return result, nil
}

func (m *MemoryStore) ListUnlabeled(_ context.Context, action fusion.Action, olderThan time.Time) ([]*Verdict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Verdict
	for _, id := range m.order {
		v := m.verdicts[id]
		if v.Annotation == nil && v.Action == action && v.CreatedAt.Before(olderThan) {
			result = append(result, clone(v))
		}
	}
	return result, nil
}

func (m *MemoryStore) ListLabeled(_ context.Context) ([]*Verdict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Verdict
	for _, id := range m.order {
		if v := m.verdicts[id]; v.Annotation != nil {
			result = append(result, clone(v))
		}
	}
	return result, nil
}

func (m *MemoryStore) ListForHealth(_ context.Context, actorID string, since time.Time) ([]*Verdict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Verdict
	for _, id := range m.order {
		v := m.verdicts[id]
		if v.ActorID == actorID && !v.CreatedAt.Before(since) {
			result = append(result, clone(v))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) AttachLabel(_ context.Context, id string, a *Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.verdicts[id]
	if !ok {
		return ErrVerdictNotFound
	}
	if v.Annotation != nil {
		return ErrAlreadyLabeled
	}
	cp := *a
	v.Annotation = &cp
	return nil
}

func (m *MemoryStore) ReplaceLabel(_ context.Context, id string, a *Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.verdicts[id]
	if !ok {
		return ErrVerdictNotFound
	}
	if v.Annotation == nil {
		return ErrNotLabeled
	}
	cp := *a
	v.Annotation = &cp
	return nil
}

func clone(v *Verdict) *Verdict {
	cp := *v
	cp.TriggeredRules = append([]string(nil), v.TriggeredRules...)
	cp.AIRedFlags = append([]string(nil), v.AIRedFlags...)
	if v.AIScore != nil {
		s := *v.AIScore
		cp.AIScore = &s
	}
	if v.AIConfidence != nil {
		c := *v.AIConfidence
		cp.AIConfidence = &c
	}
	if v.LocationSnapshot != nil {
		loc := *v.LocationSnapshot
		cp.LocationSnapshot = &loc
	}
	if v.Counterparty != nil {
		c := *v.Counterparty
		cp.Counterparty = &c
	}
	if v.Annotation != nil {
		a := *v.Annotation
		cp.Annotation = &a
	}
	return &cp
}
