package verdict

import (
	"context"
	"errors"
	"time"

	"github.com/helixpay/payguard/internal/fusion"
	"github.com/helixpay/payguard/internal/geo"
)

var (
	ErrVerdictNotFound = errors.New("verdict not found")
	ErrAlreadyLabeled  = errors.New("verdict already labeled")
	ErrNotLabeled      = errors.New("verdict has no label")
)

// DetectionMethod records which scoring paths contributed to a verdict.
type DetectionMethod string

const (
	MethodRulesAndAI DetectionMethod = "rules+ai"
	MethodRulesOnly  DetectionMethod = "rules_only"
	MethodError      DetectionMethod = "error"
)

// Label is a ground-truth outcome assigned after the fact.
type Label string

const (
	LabelFraud      Label = "fraud"
	LabelLegitimate Label = "legitimate"
)

// ConfusionClass places a labeled verdict in the confusion matrix.
// It is always derived from action and label, never set directly.
type ConfusionClass string

const (
	TruePositive  ConfusionClass = "TP"
	FalsePositive ConfusionClass = "FP"
	TrueNegative  ConfusionClass = "TN"
	FalseNegative ConfusionClass = "FN"
)

// Classify derives the confusion class for an action/label pair. BLOCK and
// REVIEW count as "flagged"; ALLOW and CHALLENGE count as "passed".
func Classify(action fusion.Action, label Label) ConfusionClass {
	flagged := action == fusion.ActionBlock || action == fusion.ActionReview
	fraud := label == LabelFraud
	switch {
	case flagged && fraud:
		return TruePositive
	case flagged && !fraud:
		return FalsePositive
	case !flagged && !fraud:
		return TrueNegative
	default:
		return FalseNegative
	}
}

// Annotation is the ground-truth label appended to a verdict. At most one
// per verdict; revoking replaces it and keeps the audit fields.
type Annotation struct {
	Label          Label          `json:"label"`
	ConfusionClass ConfusionClass `json:"confusion_class"`
	VerifiedBy     string         `json:"verified_by"`
	VerifiedAt     time.Time      `json:"verified_at"`
	RevokedFrom    Label          `json:"revoked_from,omitempty"`
	RevokeReason   string         `json:"revoke_reason,omitempty"`
}

// CounterpartySnapshot captures what was known about the recipient at
// decision time.
type CounterpartySnapshot struct {
	UserID         string `json:"user_id"`
	AccountAgeDays int    `json:"account_age_days"`
}

// Verdict is the immutable record of one fraud check. Ground-truth and
// appeal annotations are appended later; everything else never changes.
type Verdict struct {
	ID              string           `json:"id"`
	ActorID         string           `json:"actor_id"`
	Amount          string           `json:"amount"`
	Kind            string           `json:"kind"`
	RuleScore       int              `json:"rule_score"`
	TriggeredRules  []string         `json:"triggered_rules"`
	AIScore         *int             `json:"ai_score,omitempty"`
	AIConfidence    *int             `json:"ai_confidence,omitempty"`
	AIReasoning     string           `json:"ai_reasoning,omitempty"`
	AIRedFlags      []string         `json:"ai_red_flags,omitempty"`
	FinalScore      int              `json:"final_score"`
	RiskLevel       fusion.RiskLevel `json:"risk_level"`
	Action          fusion.Action    `json:"action"`
	DetectionMethod DetectionMethod  `json:"detection_method"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
	CreatedAt       time.Time        `json:"created_at"`

	LocationSnapshot *geo.Location         `json:"location_snapshot,omitempty"`
	Counterparty     *CounterpartySnapshot `json:"counterparty_snapshot,omitempty"`

	Annotation *Annotation `json:"ground_truth,omitempty"`
}

// Labeled reports whether a ground-truth label has been attached.
func (v *Verdict) Labeled() bool {
	return v.Annotation != nil
}

// Store persists verdicts and their appended annotations.
type Store interface {
	Create(ctx context.Context, v *Verdict) error
	Get(ctx context.Context, id string) (*Verdict, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]*Verdict, error)
	// ListUnlabeled returns unlabeled verdicts with the given action created
	// before the cutoff.
	ListUnlabeled(ctx context.Context, action fusion.Action, olderThan time.Time) ([]*Verdict, error)
	// ListLabeled returns every verdict carrying a ground-truth annotation.
	ListLabeled(ctx context.Context) ([]*Verdict, error)
	// ListForHealth returns an actor's verdicts created at or after since,
	// newest first.
	ListForHealth(ctx context.Context, actorID string, since time.Time) ([]*Verdict, error)
	// AttachLabel adds the first annotation to a verdict. Returns
	// ErrAlreadyLabeled if one exists.
	AttachLabel(ctx context.Context, id string, a *Annotation) error
	// ReplaceLabel swaps an existing annotation during a revoke. Returns
	// ErrNotLabeled if the verdict is unlabeled.
	ReplaceLabel(ctx context.Context, id string, a *Annotation) error
}
