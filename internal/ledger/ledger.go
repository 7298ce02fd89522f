// Package ledger tracks wallet balances and moves money between them.
//
// Every operation that moves money is a single atomic unit at the store
// level: a debit is never visible without its matching credit, hold, return,
// or confiscation. The custody state machine depends on that guarantee.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrAccountNotFound     = errors.New("ledger: account not found")
	ErrInvalidAmount       = errors.New("ledger: invalid amount")
	ErrHoldNotFound        = errors.New("ledger: hold not found")
)

// SeizureAccount receives confiscated funds. Money in it is platform-owned
// and auditable through the seizure entries.
const SeizureAccount = "sys_seizure"

// Entry is one row of the money-movement audit trail.
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Type        string    `json:"type"` // transfer_out, transfer_in, hold, release, return, confiscation, top_up
	Amount      string    `json:"amount"`
	Reference   string    `json:"reference,omitempty"` // transfer ID
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Balance is a user's wallet position.
type Balance struct {
	UserID    string    `json:"userId"`
	Available string    `json:"available"` // spendable
	Held      string    `json:"held"`      // parked by custody, not spendable
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists balances and applies money movements atomically.
type Store interface {
	GetBalance(ctx context.Context, userID string) (*Balance, error)
	// TopUp credits a user's available balance (external money in).
	TopUp(ctx context.Context, userID, amount, description string) error
	// Transfer debits the sender and credits the recipient in one unit.
	Transfer(ctx context.Context, senderID, recipientID, amount, reference string) error
	// Hold moves amount from the sender's available to held in one unit.
	Hold(ctx context.Context, senderID, amount, reference string) error
	// ReleaseHold moves a held amount to the recipient's available.
	ReleaseHold(ctx context.Context, senderID, recipientID, amount, reference string) error
	// ReturnHold moves a held amount back to the sender's available.
	ReturnHold(ctx context.Context, senderID, amount, reference string) error
	// ConfiscateHold moves a held amount to the seizure account and records
	// a seizure entry.
	ConfiscateHold(ctx context.Context, senderID, amount, reference string) error
	GetHistory(ctx context.Context, userID string, limit int) ([]*Entry, error)
}

// Ledger wraps a Store with amount validation.
type Ledger struct {
	store Store
}

// New creates a ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetBalance returns a user's current balance.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	return l.store.GetBalance(ctx, userID)
}

// CanSpend reports whether a user's available balance covers amount.
func (l *Ledger) CanSpend(ctx context.Context, userID, amount string) (bool, error) {
	cents, err := ParseAmount(amount)
	if err != nil {
		return false, err
	}
	bal, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	available, err := ParseAmount(bal.Available)
	if err != nil {
		return false, err
	}
	return available >= cents, nil
}

// TopUp credits external money into a user's wallet.
func (l *Ledger) TopUp(ctx context.Context, userID, amount, description string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.store.TopUp(ctx, userID, amount, description)
}

// Transfer moves money sender→recipient as one atomic unit.
func (l *Ledger) Transfer(ctx context.Context, senderID, recipientID, amount, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.store.Transfer(ctx, senderID, recipientID, amount, reference)
}

// Hold parks money from the sender's available balance.
func (l *Ledger) Hold(ctx context.Context, senderID, amount, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.store.Hold(ctx, senderID, amount, reference)
}

// ReleaseHold pays held money out to the recipient.
func (l *Ledger) ReleaseHold(ctx context.Context, senderID, recipientID, amount, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.store.ReleaseHold(ctx, senderID, recipientID, amount, reference)
}

// ReturnHold gives held money back to the sender.
func (l *Ledger) ReturnHold(ctx context.Context, senderID, amount, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.store.ReturnHold(ctx, senderID, amount, reference)
}

// ConfiscateHold seizes held money to the platform seizure account.
func (l *Ledger) ConfiscateHold(ctx context.Context, senderID, amount, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.store.ConfiscateHold(ctx, senderID, amount, reference)
}

// GetHistory returns a user's audit entries, most recent first.
func (l *Ledger) GetHistory(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.GetHistory(ctx, userID, limit)
}

func validateAmount(amount string) error {
	cents, err := ParseAmount(amount)
	if err != nil {
		return err
	}
	if cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Amount helpers (2 decimal places, integer cents underneath)

// ParseAmount converts a decimal string like "9800.50" to cents.
func ParseAmount(s string) (int64, error) {
	if s == "" {
		return 0, ErrInvalidAmount
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		return 0, ErrInvalidAmount
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	var frac int64
	if len(parts) == 2 {
		f := parts[1]
		if len(f) == 0 || len(f) > 2 {
			return 0, ErrInvalidAmount
		}
		for len(f) < 2 {
			f += "0"
		}
		frac, err = strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
	}
	return whole*100 + frac, nil
}

// FormatAmount renders cents as a 2dp decimal string.
func FormatAmount(cents int64) string {
	neg := ""
	if cents < 0 {
		neg = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", neg, cents/100, cents%100)
}
