package assessor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CounterStore is the shared counter backing the call budget. Counters must
// be atomically incremented and scoped to a time bucket so the budget holds
// across horizontally scaled workers, not per-process.
type CounterStore interface {
	// Incr atomically increments the counter for key, setting ttl on first
	// write, and returns the post-increment value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Budget enforces the per-minute and per-day assessment call budgets.
// The clock is injectable for tests.
type Budget struct {
	counters  CounterStore
	perMinute int
	perDay    int
	now       func() time.Time
}

// NewBudget creates a budget over the given counter store.
func NewBudget(counters CounterStore, perMinute, perDay int) *Budget {
	return &Budget{
		counters:  counters,
		perMinute: perMinute,
		perDay:    perDay,
		now:       time.Now,
	}
}

// WithClock overrides the budget clock (for tests).
func (b *Budget) WithClock(now func() time.Time) *Budget {
	b.now = now
	return b
}

// Take consumes one call from both windows, or returns a RateLimited error.
// A counter-store failure is reported as RateLimited too: when we cannot
// prove budget headroom we do not spend money on the assessor.
func (b *Budget) Take(ctx context.Context) error {
	now := b.now().UTC()

	minuteKey := fmt.Sprintf("assessor:minute:%s", now.Format("200601021504"))
	count, err := b.counters.Incr(ctx, minuteKey, 2*time.Minute)
	if err != nil {
		return &Error{Code: CodeRateLimited, Err: fmt.Errorf("counter store: %w", err)}
	}
	if count > int64(b.perMinute) {
		return &Error{Code: CodeRateLimited, Err: errors.New("per-minute budget exhausted")}
	}

	dayKey := fmt.Sprintf("assessor:day:%s", now.Format("20060102"))
	count, err = b.counters.Incr(ctx, dayKey, 25*time.Hour)
	if err != nil {
		return &Error{Code: CodeRateLimited, Err: fmt.Errorf("counter store: %w", err)}
	}
	if count > int64(b.perDay) {
		return &Error{Code: CodeRateLimited, Err: errors.New("per-day budget exhausted")}
	}

	return nil
}

// MemoryCounters is a process-local CounterStore for development and tests.
// Production deployments with more than one worker should use RedisCounters.
type MemoryCounters struct {
	mu       sync.Mutex
	counts   map[string]int64
	expiries map[string]time.Time
	now      func() time.Time
}

// NewMemoryCounters creates an in-memory counter store.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{
		counts:   make(map[string]int64),
		expiries: make(map[string]time.Time),
		now:      time.Now,
	}
}

// WithClock overrides the expiry clock (for tests).
func (m *MemoryCounters) WithClock(now func() time.Time) *MemoryCounters {
	m.now = now
	return m
}

func (m *MemoryCounters) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiry, ok := m.expiries[key]; ok && now.After(expiry) {
		delete(m.counts, key)
		delete(m.expiries, key)
	}

	if _, ok := m.counts[key]; !ok {
		m.expiries[key] = now.Add(ttl)
	}
	m.counts[key]++
	return m.counts[key], nil
}
