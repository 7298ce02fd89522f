// Package assessor integrates the external AI risk assessor.
//
// The assessor is a black-box collaborator: given a transaction with user
// context it returns a risk score, a confidence, reasoning, and red flags.
// Every failure mode (rate limit, disabled, transport error, timeout) maps to
// a typed error the fraud pipeline treats as "score unavailable" — an
// assessor outage must never become a wallet outage.
package assessor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies assessor failures.
type ErrorCode string

const (
	CodeRateLimited ErrorCode = "RATE_LIMITED"
	CodeDisabled    ErrorCode = "DISABLED"
	CodeAPIError    ErrorCode = "API_ERROR"
)

// Error is the typed assessor failure handed back to the pipeline.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("assessor: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("assessor: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the error code, defaulting to API_ERROR for untyped errors.
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeAPIError
}

// Input is the payload sent to the assessor.
type Input struct {
	ActorID        string     `json:"actorId"`
	CounterpartyID string     `json:"counterpartyId,omitempty"`
	Amount         float64    `json:"amount"`
	Kind           string     `json:"kind"`
	AccountAgeDays int        `json:"accountAgeDays"`
	Recent         []RecentTx `json:"recentTransactions"`
}

// RecentTx is one historical transaction included for context.
type RecentTx struct {
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Assessment is the assessor's answer.
type Assessment struct {
	RiskScore         int      `json:"riskScore"`  // 0-100
	Confidence        int      `json:"confidence"` // 0-100
	Reasoning         string   `json:"reasoning"`
	RedFlags          []string `json:"redFlags"`
	RecommendedChecks []string `json:"recommendedChecks"`
}

// Assessor is the external collaborator contract.
type Assessor interface {
	Assess(ctx context.Context, input *Input) (*Assessment, error)
}

// Disabled is an Assessor that always reports itself unavailable. Used when
// no assessor endpoint is configured: the pipeline runs rules-only.
type Disabled struct{}

func (Disabled) Assess(context.Context, *Input) (*Assessment, error) {
	return nil, &Error{Code: CodeDisabled}
}
