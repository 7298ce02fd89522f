package assessor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/helixpay/payguard/internal/circuitbreaker"
)

const breakerKey = "assessor"

// HTTPAssessor calls a remote risk assessment service over JSON/HTTP.
// One attempt per check: on timeout the call is abandoned, not retried, and
// the pipeline falls back to rules-only scoring.
type HTTPAssessor struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.Breaker
	budget  *Budget
}

// NewHTTPAssessor creates an assessor client with a hard per-call timeout.
func NewHTTPAssessor(url, apiKey string, timeout time.Duration) *HTTPAssessor {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &HTTPAssessor{
		url:     url,
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

// WithBreaker overrides the default circuit breaker.
func (a *HTTPAssessor) WithBreaker(b *circuitbreaker.Breaker) *HTTPAssessor {
	a.breaker = b
	return a
}

// WithBudget attaches a shared call budget checked before every request.
func (a *HTTPAssessor) WithBudget(b *Budget) *HTTPAssessor {
	a.budget = b
	return a
}

// Assess sends one assessment request. The budget is consumed before the
// call; a tripped breaker reports Disabled so the caller doesn't burn the
// timeout waiting on a service known to be down.
func (a *HTTPAssessor) Assess(ctx context.Context, input *Input) (*Assessment, error) {
	if a.budget != nil {
		if err := a.budget.Take(ctx); err != nil {
			return nil, err
		}
	}

	if !a.breaker.Allow(breakerKey) {
		return nil, &Error{Code: CodeDisabled, Err: errors.New("circuit open")}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	assessment, err := a.call(ctx, input)
	if err != nil {
		a.breaker.RecordFailure(breakerKey)
		return nil, err
	}

	a.breaker.RecordSuccess(breakerKey)
	return assessment, nil
}

func (a *HTTPAssessor) call(ctx context.Context, input *Input) (*Assessment, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, &Error{Code: CodeAPIError, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: CodeAPIError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &Error{Code: CodeAPIError, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Code: CodeRateLimited, Err: fmt.Errorf("remote returned 429")}
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &Error{Code: CodeDisabled, Err: fmt.Errorf("remote returned 503")}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Code: CodeAPIError, Err: fmt.Errorf("remote returned %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Code: CodeAPIError, Err: err}
	}

	var assessment Assessment
	if err := json.Unmarshal(raw, &assessment); err != nil {
		return nil, &Error{Code: CodeAPIError, Err: fmt.Errorf("malformed response: %w", err)}
	}

	assessment.RiskScore = clamp(assessment.RiskScore)
	assessment.Confidence = clamp(assessment.Confidence)
	return &assessment, nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
