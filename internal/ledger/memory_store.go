package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/helixpay/payguard/internal/idgen"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
// One mutex guards every money movement, which trivially makes each
// transition atomic — including the hold-exists check, so a double release
// cannot slip through between check and apply.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]*balanceCents
	holds    map[string]int64 // reference -> held cents (against the sender)
	entries  []*Entry
}

type balanceCents struct {
	available int64
	held      int64
	updatedAt time.Time
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*balanceCents),
		holds:    make(map[string]int64),
	}
}

func (m *MemoryStore) GetBalance(_ context.Context, userID string) (*Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bal, ok := m.balances[userID]
	if !ok {
		return &Balance{UserID: userID, Available: "0.00", Held: "0.00", UpdatedAt: time.Now()}, nil
	}
	return &Balance{
		UserID:    userID,
		Available: FormatAmount(bal.available),
		Held:      FormatAmount(bal.held),
		UpdatedAt: bal.updatedAt,
	}, nil
}

func (m *MemoryStore) TopUp(_ context.Context, userID, amount, description string) error {
	cents, err := ParseAmount(amount)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.account(userID).available += cents
	m.touch(userID)
	m.append(userID, "top_up", cents, "", description)
	return nil
}

func (m *MemoryStore) Transfer(_ context.Context, senderID, recipientID, amount, reference string) error {
	cents, err := ParseAmount(amount)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sender := m.account(senderID)
	if sender.available < cents {
		return ErrInsufficientBalance
	}

	sender.available -= cents
	m.account(recipientID).available += cents
	m.touch(senderID)
	m.touch(recipientID)
	m.append(senderID, "transfer_out", cents, reference, "")
	m.append(recipientID, "transfer_in", cents, reference, "")
	return nil
}

func (m *MemoryStore) Hold(_ context.Context, senderID, amount, reference string) error {
	cents, err := ParseAmount(amount)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sender := m.account(senderID)
	if sender.available < cents {
		return ErrInsufficientBalance
	}

	sender.available -= cents
	sender.held += cents
	m.holds[reference] = cents
	m.touch(senderID)
	m.append(senderID, "hold", cents, reference, "")
	return nil
}

func (m *MemoryStore) ReleaseHold(_ context.Context, senderID, recipientID, amount, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cents, err := m.consumeHold(amount, reference)
	if err != nil {
		return err
	}

	m.account(senderID).held -= cents
	m.account(recipientID).available += cents
	m.touch(senderID)
	m.touch(recipientID)
	m.append(recipientID, "release", cents, reference, "")
	return nil
}

func (m *MemoryStore) ReturnHold(_ context.Context, senderID, amount, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cents, err := m.consumeHold(amount, reference)
	if err != nil {
		return err
	}

	sender := m.account(senderID)
	sender.held -= cents
	sender.available += cents
	m.touch(senderID)
	m.append(senderID, "return", cents, reference, "")
	return nil
}

func (m *MemoryStore) ConfiscateHold(_ context.Context, senderID, amount, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cents, err := m.consumeHold(amount, reference)
	if err != nil {
		return err
	}

	m.account(senderID).held -= cents
	m.account(SeizureAccount).available += cents
	m.touch(senderID)
	m.touch(SeizureAccount)
	m.append(SeizureAccount, "confiscation", cents, reference, "seized from "+senderID)
	return nil
}

func (m *MemoryStore) GetHistory(_ context.Context, userID string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if m.entries[i].UserID == userID {
			cp := *m.entries[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

// consumeHold validates and removes a live hold. Caller must hold m.mu.
func (m *MemoryStore) consumeHold(amount, reference string) (int64, error) {
	cents, err := ParseAmount(amount)
	if err != nil {
		return 0, err
	}
	held, ok := m.holds[reference]
	if !ok || held != cents {
		return 0, ErrHoldNotFound
	}
	delete(m.holds, reference)
	return cents, nil
}

// account returns or creates a balance record. Caller must hold m.mu.
func (m *MemoryStore) account(userID string) *balanceCents {
	bal, ok := m.balances[userID]
	if !ok {
		bal = &balanceCents{}
		m.balances[userID] = bal
	}
	return bal
}

func (m *MemoryStore) touch(userID string) {
	m.balances[userID].updatedAt = time.Now()
}

func (m *MemoryStore) append(userID, entryType string, cents int64, reference, description string) {
	m.entries = append(m.entries, &Entry{
		ID:          idgen.WithPrefix("led_"),
		UserID:      userID,
		Type:        entryType,
		Amount:      FormatAmount(cents),
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})
}
