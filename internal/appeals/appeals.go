// Package appeals lets a user contest a fraud label. An appeal can only be
// opened once an admin has actually marked the verdict fraud, and approving
// one flips the ground truth back to legitimate and delivers any money
// still held to the recipient.
package appeals

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAppealNotFound   = errors.New("appeal not found")
	ErrNotMarkedFraud   = errors.New("verdict is not marked fraud")
	ErrAlreadyResolved  = errors.New("appeal already resolved")
	ErrAlreadyApproved  = errors.New("a previous appeal for this verdict was approved")
	ErrNotActorsVerdict = errors.New("verdict belongs to a different user")
)

// Status is the lifecycle state of an appeal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Appeal is a user's request to overturn a fraud label.
type Appeal struct {
	ID         string     `json:"id"`
	VerdictID  string     `json:"verdict_id"`
	ActorID    string     `json:"actor_id"`
	Reason     string     `json:"reason"`
	Status     Status     `json:"status"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Store persists appeals.
type Store interface {
	Create(ctx context.Context, a *Appeal) error
	Get(ctx context.Context, id string) (*Appeal, error)
	// ListByVerdict returns all appeals for a verdict, newest first.
	ListByVerdict(ctx context.Context, verdictID string) ([]*Appeal, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]*Appeal, error)
	ListPending(ctx context.Context) ([]*Appeal, error)
	// Resolve moves a pending appeal to a terminal status. Returns
	// ErrAlreadyResolved when the appeal is not pending.
	Resolve(ctx context.Context, id string, to Status, resolvedBy string, resolvedAt time.Time) error
}
