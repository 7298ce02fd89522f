package appeals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helixpay/payguard/internal/custody"
	"github.com/helixpay/payguard/internal/groundtruth"
	"github.com/helixpay/payguard/internal/idgen"
	"github.com/helixpay/payguard/internal/logging"
	"github.com/helixpay/payguard/internal/syncutil"
	"github.com/helixpay/payguard/internal/verdict"
)

// Service handles the appeal lifecycle.
type Service struct {
	store       Store
	verdicts    verdict.Store
	groundtruth *groundtruth.Service
	custody     *custody.Service
	locks       *syncutil.ShardedMutex
	now         func() time.Time
}

// NewService creates an appeals service.
func NewService(store Store, verdicts verdict.Store, gt *groundtruth.Service, cust *custody.Service) *Service {
	return &Service{
		store:       store,
		verdicts:    verdicts,
		groundtruth: gt,
		custody:     cust,
		locks:       &syncutil.ShardedMutex{},
		now:         time.Now,
	}
}

// WithClock overrides the service clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit opens an appeal against a fraud-labeled verdict. Submitting again
// while one is pending returns the existing appeal instead of a duplicate,
// and a verdict whose appeal was approved cannot be appealed again.
func (s *Service) Submit(ctx context.Context, verdictID, actorID, reason string) (*Appeal, error) {
	unlock := s.locks.Lock(verdictID)
	defer unlock()

	v, err := s.verdicts.Get(ctx, verdictID)
	if err != nil {
		return nil, err
	}
	if v.ActorID != actorID {
		return nil, ErrNotActorsVerdict
	}
	if v.Annotation == nil || v.Annotation.Label != verdict.LabelFraud {
		return nil, ErrNotMarkedFraud
	}

	existing, err := s.store.ListByVerdict(ctx, verdictID)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		switch a.Status {
		case StatusPending:
			return a, nil
		case StatusApproved:
			return nil, ErrAlreadyApproved
		}
	}

	a := &Appeal{
		ID:        idgen.WithPrefix("apl_"),
		VerdictID: verdictID,
		ActorID:   actorID,
		Reason:    reason,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("appeal submitted",
		"appeal_id", a.ID,
		"verdict_id", verdictID,
		"actor_id", actorID,
	)
	return a, nil
}

// Approve overturns the fraud label: the ground truth flips to legitimate
// with the appeal as the audit reason, and any money still held for the
// verdict is delivered to the recipient. The appeal only moves to approved
// after both effects land, so a failed flip leaves it pending and the call
// can be retried; the store's pending-only resolve keeps it at most once.
func (s *Service) Approve(ctx context.Context, appealID, resolvedBy string) (*Appeal, error) {
	a, err := s.store.Get(ctx, appealID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}

	unlock := s.locks.Lock(a.VerdictID)
	defer unlock()

	reason := fmt.Sprintf("appeal %s approved", appealID)
	_, err = s.groundtruth.Revoke(ctx, a.VerdictID, verdict.LabelLegitimate, resolvedBy, reason)
	if err != nil && !errors.Is(err, groundtruth.ErrSameLabel) {
		// Already-legitimate means a prior attempt got this far; anything
		// else aborts before the appeal is resolved so it stays retryable.
		return nil, fmt.Errorf("flip ground truth: %w", err)
	}

	if err := s.releaseHeldMoney(ctx, a.VerdictID, resolvedBy); err != nil {
		return nil, err
	}

	resolvedAt := s.now()
	if err := s.store.Resolve(ctx, appealID, StatusApproved, resolvedBy, resolvedAt); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("appeal approved",
		"appeal_id", appealID,
		"verdict_id", a.VerdictID,
		"resolved_by", resolvedBy,
	)

	a.Status = StatusApproved
	a.ResolvedBy = resolvedBy
	a.ResolvedAt = &resolvedAt
	return a, nil
}

// Reject closes an appeal without touching the label or the money.
func (s *Service) Reject(ctx context.Context, appealID, resolvedBy string) (*Appeal, error) {
	a, err := s.store.Get(ctx, appealID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(a.VerdictID)
	defer unlock()

	resolvedAt := s.now()
	if err := s.store.Resolve(ctx, appealID, StatusRejected, resolvedBy, resolvedAt); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("appeal rejected",
		"appeal_id", appealID,
		"verdict_id", a.VerdictID,
		"resolved_by", resolvedBy,
	)

	a.Status = StatusRejected
	a.ResolvedBy = resolvedBy
	a.ResolvedAt = &resolvedAt
	return a, nil
}

// Get returns an appeal by ID.
func (s *Service) Get(ctx context.Context, appealID string) (*Appeal, error) {
	return s.store.Get(ctx, appealID)
}

// ListPending returns all open appeals.
func (s *Service) ListPending(ctx context.Context) ([]*Appeal, error) {
	return s.store.ListPending(ctx)
}

// ListByActor returns a user's appeals, newest first.
func (s *Service) ListByActor(ctx context.Context, actorID string, limit int) ([]*Appeal, error) {
	return s.store.ListByActor(ctx, actorID, limit)
}

// releaseHeldMoney delivers the verdict's transfer to the recipient if it
// is still held, completing the payment the fraud label stopped. A transfer
// that was already settled, or a verdict that never held money, is fine:
// there is nothing left to move.
func (s *Service) releaseHeldMoney(ctx context.Context, verdictID, resolvedBy string) error {
	t, err := s.custody.GetByVerdict(ctx, verdictID)
	if errors.Is(err, custody.ErrTransferNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up transfer: %w", err)
	}
	if t.Status != custody.StatusHeld {
		return nil
	}
	if _, err := s.custody.Release(ctx, t.ID, resolvedBy); err != nil {
		if errors.Is(err, custody.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("release held money: %w", err)
	}
	return nil
}
