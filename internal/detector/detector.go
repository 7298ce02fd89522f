// Package detector runs the fraud check pipeline: rules and geo-velocity
// evaluated synchronously, the AI assessor consulted concurrently, their
// scores fused into one decision, money moved accordingly, a verdict
// persisted. A check never fails the caller; anything unexpected degrades
// to a safe ALLOW verdict so a detection outage cannot take the wallet down.
package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helixpay/payguard/internal/assessor"
	"github.com/helixpay/payguard/internal/custody"
	"github.com/helixpay/payguard/internal/directory"
	"github.com/helixpay/payguard/internal/fusion"
	"github.com/helixpay/payguard/internal/geo"
	"github.com/helixpay/payguard/internal/ledger"
	"github.com/helixpay/payguard/internal/rules"
	"github.com/helixpay/payguard/internal/validation"
	"github.com/helixpay/payguard/internal/verdict"
)

// WithdrawalAccount receives the ledger credit for withdrawals, standing in
// for the external payout rail.
const WithdrawalAccount = "sys_withdrawal"

// Validation errors. These reject the request before any custody state or
// verdict row exists.
var (
	ErrInvalidActor        = errors.New("invalid actor ID")
	ErrInvalidAmount       = errors.New("amount must be a positive number with at most two decimal places")
	ErrInvalidKind         = errors.New("kind must be transfer, withdrawal or top_up")
	ErrInvalidIP           = errors.New("source IP is not a valid address")
	ErrUnknownActor        = errors.New("actor is not a registered user")
	ErrUnknownCounterparty = errors.New("counterparty is not a registered user")
	ErrMissingCounterparty = errors.New("transfers require a counterparty")
	ErrSelfTransfer        = errors.New("cannot transfer to yourself")
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
)

// CheckRequest is one transaction to score. Ephemeral; one per call.
type CheckRequest struct {
	ActorID        string `json:"actor_id"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
	Amount         string `json:"amount"`
	Kind           string `json:"kind"`
	SourceIP       string `json:"source_ip"`
}

// Service wires the whole pipeline together.
type Service struct {
	engine    *rules.Engine
	assessor  assessor.Assessor
	strategy  fusion.Strategy
	resolver  geo.Resolver
	directory directory.Store
	ledger    *ledger.Ledger
	custody   *custody.Service
	verdicts  verdict.Store

	aiWait time.Duration // backstop on top of the assessor's own timeout
	now    func() time.Time
}

// NewService creates a detector service.
func NewService(
	engine *rules.Engine,
	as assessor.Assessor,
	strategy fusion.Strategy,
	resolver geo.Resolver,
	dir directory.Store,
	lg *ledger.Ledger,
	cust *custody.Service,
	verdicts verdict.Store,
) *Service {
	return &Service{
		engine:    engine,
		assessor:  as,
		strategy:  strategy,
		resolver:  resolver,
		directory: dir,
		ledger:    lg,
		custody:   cust,
		verdicts:  verdicts,
		aiWait:    15 * time.Second,
		now:       time.Now,
	}
}

// WithClock overrides the service clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithAIWait overrides the backstop wait on the assessor goroutine.
func (s *Service) WithAIWait(d time.Duration) *Service {
	s.aiWait = d
	return s
}

// validate checks the request shape and the referenced users. It returns
// the parsed amount and the actor's account.
func (s *Service) validate(ctx context.Context, req *CheckRequest) (float64, *directory.Account, error) {
	if !validation.IsValidUserID(req.ActorID) {
		return 0, nil, ErrInvalidActor
	}
	if !validation.IsValidAmount(req.Amount) {
		return 0, nil, ErrInvalidAmount
	}
	if req.SourceIP != "" && !validation.IsValidIP(req.SourceIP) {
		return 0, nil, ErrInvalidIP
	}

	kind := rules.Kind(req.Kind)
	switch kind {
	case rules.KindTransfer, rules.KindWithdrawal, rules.KindTopUp:
	default:
		return 0, nil, ErrInvalidKind
	}

	account, err := s.directory.Get(ctx, req.ActorID)
	if errors.Is(err, directory.ErrUserNotFound) {
		return 0, nil, ErrUnknownActor
	}
	if err != nil {
		return 0, nil, fmt.Errorf("look up actor: %w", err)
	}

	if kind == rules.KindTransfer {
		if req.CounterpartyID == "" {
			return 0, nil, ErrMissingCounterparty
		}
		if req.CounterpartyID == req.ActorID {
			return 0, nil, ErrSelfTransfer
		}
		if _, err := s.directory.Get(ctx, req.CounterpartyID); err != nil {
			if errors.Is(err, directory.ErrUserNotFound) {
				return 0, nil, ErrUnknownCounterparty
			}
			return 0, nil, fmt.Errorf("look up counterparty: %w", err)
		}
	}

	if kind != rules.KindTopUp {
		ok, err := s.ledger.CanSpend(ctx, req.ActorID, req.Amount)
		if err != nil {
			return 0, nil, fmt.Errorf("check balance: %w", err)
		}
		if !ok {
			return 0, nil, ErrInsufficientBalance
		}
	}

	cents, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return 0, nil, ErrInvalidAmount
	}
	return float64(cents) / 100, account, nil
}

// IsValidationError reports whether err is a rejected-request error rather
// than an internal failure.
func IsValidationError(err error) bool {
	for _, v := range []error{
		ErrInvalidActor, ErrInvalidAmount, ErrInvalidKind, ErrInvalidIP,
		ErrUnknownActor, ErrUnknownCounterparty, ErrMissingCounterparty,
		ErrSelfTransfer, ErrInsufficientBalance,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
