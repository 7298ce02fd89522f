// Package rules implements the deterministic fraud scoring rules.
//
// The engine is intentionally stateless: it reads the evaluation context
// assembled by the caller (recent transactions, account age, geo signal) and
// never performs I/O of its own. Each rule fires independently on a simple
// predicate and contributes a fixed weight; the score is the capped sum.
package rules

import (
	"time"

	"github.com/helixpay/payguard/internal/geo"
)

// MaxScore caps the summed rule weights.
const MaxScore = 100

// Kind classifies a money movement request.
type Kind string

const (
	KindTransfer   Kind = "transfer"
	KindWithdrawal Kind = "withdrawal"
	KindTopUp      Kind = "top_up"
)

// Transaction is the request under evaluation.
type Transaction struct {
	ActorID        string
	CounterpartyID string
	Amount         float64
	Kind           Kind
}

// RecentTx is one historical transaction used by the velocity rules.
type RecentTx struct {
	Amount    float64
	CreatedAt time.Time
}

// Account carries the actor attributes the rules read.
type Account struct {
	CreatedAt time.Time
}

// EvalContext bundles everything a rule may inspect. The recent-transaction
// lookup is the caller's only I/O; rules themselves stay pure.
type EvalContext struct {
	Tx      Transaction
	Account Account
	Recent  []RecentTx // most recent first
	Geo     *geo.Signal
	Now     time.Time
}

// Rule fires on a single predicate and contributes a fixed weight.
type Rule interface {
	Name() string
	Weight() int
	Fires(ec *EvalContext) bool
}

// Triggered records one fired rule on an evaluation result.
type Triggered struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// Result is the outcome of one engine evaluation.
type Result struct {
	Score     int         `json:"score"`
	Triggered []Triggered `json:"triggered"`
}

// Engine evaluates all registered rules and sums the fired weights.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine with the given rules.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		&RapidFireRule{},
		&NearThresholdRule{},
		&NewAccountHighValueRule{},
		&RoundAmountRule{},
		&DormantBurstRule{},
		&ImpossibleTravelRule{},
	}
}

// Evaluate runs every rule and returns the capped score. A panicking rule
// counts as not fired; one bad rule must never abort the overall check.
func (e *Engine) Evaluate(ec *EvalContext) *Result {
	if ec.Now.IsZero() {
		ec.Now = time.Now()
	}

	result := &Result{}
	for _, rule := range e.rules {
		if fires(rule, ec) {
			result.Triggered = append(result.Triggered, Triggered{
				Name:   rule.Name(),
				Weight: rule.Weight(),
			})
			result.Score += rule.Weight()
		}
	}

	if result.Score > MaxScore {
		result.Score = MaxScore
	}
	return result
}

// fires isolates a single rule evaluation behind a recover.
func fires(rule Rule, ec *EvalContext) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			fired = false
		}
	}()
	return rule.Fires(ec)
}
