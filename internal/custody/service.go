package custody

import (
	"context"
	"fmt"
	"time"

	"github.com/helixpay/payguard/internal/fusion"
	"github.com/helixpay/payguard/internal/idgen"
	"github.com/helixpay/payguard/internal/ledger"
	"github.com/helixpay/payguard/internal/logging"
	"github.com/helixpay/payguard/internal/metrics"
	"github.com/helixpay/payguard/internal/syncutil"
)

// Service applies fraud decisions to money. It owns the mapping from a
// decision action to a ledger movement, and it is the only place a held
// transfer can be settled.
type Service struct {
	store      Store
	ledger     *ledger.Ledger
	locks      *syncutil.ShardedMutex
	reviewHold time.Duration
	blockHold  time.Duration
	now        func() time.Time
}

// NewService creates a custody service. reviewHold and blockHold are how
// long money stays held for REVIEW and BLOCK decisions respectively.
func NewService(store Store, lg *ledger.Ledger, reviewHold, blockHold time.Duration) *Service {
	return &Service{
		store:      store,
		ledger:     lg,
		locks:      &syncutil.ShardedMutex{},
		reviewHold: reviewHold,
		blockHold:  blockHold,
		now:        time.Now,
	}
}

// WithClock overrides the service clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Execute moves money according to a decision action. ALLOW and CHALLENGE
// settle immediately; REVIEW and BLOCK place the money on hold. The
// returned transfer records the outcome either way.
func (s *Service) Execute(ctx context.Context, action fusion.Action, verdictID, senderID, recipientID, amount string) (*Transfer, error) {
	t := &Transfer{
		ID:          idgen.WithPrefix("trf_"),
		VerdictID:   verdictID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      amount,
		Action:      string(action),
		CreatedAt:   s.now(),
	}

	if action.Holds() {
		until := t.CreatedAt.Add(s.holdFor(action))
		t.Status = StatusHeld
		t.HeldUntil = &until
		if err := s.ledger.Hold(ctx, senderID, amount, t.ID); err != nil {
			return nil, fmt.Errorf("hold funds: %w", err)
		}
		metrics.HeldTransfers.Inc()
	} else {
		settled := t.CreatedAt
		t.Status = StatusCompleted
		t.SettledAt = &settled
		if err := s.ledger.Transfer(ctx, senderID, recipientID, amount, t.ID); err != nil {
			return nil, fmt.Errorf("transfer funds: %w", err)
		}
	}

	if err := s.store.Create(ctx, t); err != nil {
		// Best-effort ledger undo if the record fails
		if action.Holds() {
			_ = s.ledger.ReturnHold(ctx, senderID, amount, t.ID)
			metrics.HeldTransfers.Dec()
		} else {
			_ = s.ledger.Transfer(ctx, recipientID, senderID, amount, t.ID)
		}
		return nil, fmt.Errorf("record transfer: %w", err)
	}
	metrics.CustodyTransitionsTotal.WithLabelValues(string(t.Status)).Inc()
	return t, nil
}

// Release completes a held transfer, delivering the money to the recipient.
func (s *Service) Release(ctx context.Context, transferID, settledBy string) (*Transfer, error) {
	return s.settle(ctx, transferID, StatusCompleted, settledBy, func(ctx context.Context, t *Transfer) error {
		return s.ledger.ReleaseHold(ctx, t.SenderID, t.RecipientID, t.Amount, t.ID)
	})
}

// Return sends a held transfer's money back to the sender.
func (s *Service) Return(ctx context.Context, transferID, settledBy string) (*Transfer, error) {
	return s.settle(ctx, transferID, StatusReturned, settledBy, func(ctx context.Context, t *Transfer) error {
		return s.ledger.ReturnHold(ctx, t.SenderID, t.Amount, t.ID)
	})
}

// Confiscate moves a held transfer's money to the seizure account.
func (s *Service) Confiscate(ctx context.Context, transferID, settledBy string) (*Transfer, error) {
	return s.settle(ctx, transferID, StatusConfiscated, settledBy, func(ctx context.Context, t *Transfer) error {
		return s.ledger.ConfiscateHold(ctx, t.SenderID, t.Amount, t.ID)
	})
}

// Get returns a transfer by ID.
func (s *Service) Get(ctx context.Context, transferID string) (*Transfer, error) {
	return s.store.Get(ctx, transferID)
}

// GetByVerdict returns the transfer created for a verdict, if any.
func (s *Service) GetByVerdict(ctx context.Context, verdictID string) (*Transfer, error) {
	return s.store.GetByVerdict(ctx, verdictID)
}

// ListHeld returns all currently held transfers.
func (s *Service) ListHeld(ctx context.Context) ([]*Transfer, error) {
	return s.store.ListHeld(ctx)
}

func (s *Service) settle(ctx context.Context, transferID string, to Status, settledBy string, move func(context.Context, *Transfer) error) (*Transfer, error) {
	unlock := s.locks.Lock(transferID)
	defer unlock()

	t, err := s.store.Get(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusHeld {
		return nil, fmt.Errorf("%w: transfer %s is %s", ErrInvalidTransition, transferID, t.Status)
	}

	if err := move(ctx, t); err != nil {
		return nil, err
	}

	settledAt := s.now()
	if err := s.store.Settle(ctx, transferID, to, settledAt, settledBy); err != nil {
		return nil, err
	}
	metrics.HeldTransfers.Dec()
	metrics.CustodyTransitionsTotal.WithLabelValues(string(to)).Inc()

	logging.L(ctx).Info("custody transfer settled",
		"transfer_id", transferID,
		"status", string(to),
		"settled_by", settledBy,
	)

	t.Status = to
	t.SettledAt = &settledAt
	t.SettledBy = settledBy
	return t, nil
}

func (s *Service) holdFor(action fusion.Action) time.Duration {
	if action == fusion.ActionBlock {
		return s.blockHold
	}
	return s.reviewHold
}
