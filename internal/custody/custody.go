package custody

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTransferNotFound  = errors.New("transfer not found")
	ErrInvalidTransition = errors.New("invalid custody transition")
)

// Status is the custody state of a transfer's money.
type Status string

const (
	StatusHeld        Status = "held"
	StatusCompleted   Status = "completed"
	StatusReturned    Status = "returned"
	StatusConfiscated Status = "confiscated"
)

// Terminal reports whether the status allows no further transitions.
func (s Status) Terminal() bool {
	return s != StatusHeld
}

// Transfer records where a transaction's money is. A transfer is either
// settled immediately (completed) or held pending review, and a held
// transfer moves to exactly one of completed, returned, or confiscated.
type Transfer struct {
	ID          string     `json:"id"`
	VerdictID   string     `json:"verdict_id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Amount      string     `json:"amount"`
	Status      Status     `json:"status"`
	Action      string     `json:"action"` // decision that created this transfer
	HeldUntil   *time.Time `json:"held_until,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
	SettledBy   string     `json:"settled_by,omitempty"`
}

// Store persists transfer custody records.
type Store interface {
	Create(ctx context.Context, t *Transfer) error
	Get(ctx context.Context, id string) (*Transfer, error)
	GetByVerdict(ctx context.Context, verdictID string) (*Transfer, error)
	ListHeld(ctx context.Context) ([]*Transfer, error)
	// ListExpiredHeld returns held transfers whose HeldUntil has passed,
	// restricted to the given action.
	ListExpiredHeld(ctx context.Context, action string, now time.Time) ([]*Transfer, error)
	// Settle moves a transfer from held to a terminal status. It returns
	// ErrInvalidTransition when the transfer is not currently held, which
	// makes every settlement exactly-once.
	Settle(ctx context.Context, id string, to Status, settledAt time.Time, settledBy string) error
}
