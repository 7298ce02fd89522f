// Package fusion combines the rule score and the AI assessment into one
// final score and maps it onto the custody action.
package fusion

import (
	"math"
)

// Confidence bands for the default weighted strategy.
const (
	lowConfidence  = 20 // below this the AI answer is ignored
	midConfidence  = 50 // 50/50 averaging starts here
	highConfidence = 80 // confidence-weighted blending starts here
)

// Strategy combines a rule score and an AI score into a fused raw score.
// aiConfidence is 0-100; all inputs are pre-validated to [0,100].
type Strategy interface {
	Name() string
	Combine(ruleScore, aiScore, aiConfidence float64) float64
}

// Fuse applies the strategy and returns a rounded score clamped to [0,100].
// When the AI assessment is unavailable the rule score passes through
// untouched regardless of strategy.
func Fuse(ruleScore int, aiScore, aiConfidence int, aiUnavailable bool, s Strategy) int {
	if aiUnavailable {
		return clampRound(float64(ruleScore))
	}
	return clampRound(s.Combine(float64(ruleScore), float64(aiScore), float64(aiConfidence)))
}

func clampRound(v float64) int {
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

// Weighted is the default strategy: the AI's weight scales with its own
// confidence in itself.
type Weighted struct{}

func (Weighted) Name() string { return "weighted" }

func (Weighted) Combine(ruleScore, aiScore, aiConfidence float64) float64 {
	switch {
	case aiConfidence < lowConfidence:
		return ruleScore
	case aiConfidence >= highConfidence:
		c := aiConfidence / 100
		return ruleScore*(1-c) + aiScore*c
	case aiConfidence >= midConfidence:
		return (ruleScore + aiScore) / 2
	default:
		return ruleScore*0.7 + aiScore*0.3
	}
}

// Max is the conservative strategy: whichever provider is more alarmed wins.
type Max struct{}

func (Max) Name() string { return "max" }

func (Max) Combine(ruleScore, aiScore, aiConfidence float64) float64 {
	if aiConfidence < lowConfidence {
		return ruleScore
	}
	return math.Max(ruleScore, aiScore)
}

// Min is the permissive strategy: a transaction is only risky if both
// providers agree it is.
type Min struct{}

func (Min) Name() string { return "min" }

func (Min) Combine(ruleScore, aiScore, aiConfidence float64) float64 {
	if aiConfidence < lowConfidence {
		return ruleScore
	}
	return math.Min(ruleScore, aiScore)
}

// Consensus averages agreeing providers but forces a manual-review score
// when they diverge beyond the threshold.
type Consensus struct {
	// Threshold is the |ruleScore-aiScore| gap that counts as disagreement.
	Threshold float64
	// DisagreementScore is returned on disagreement; 60 lands in REVIEW.
	DisagreementScore float64
}

// NewConsensus creates a consensus strategy with the given gap threshold.
func NewConsensus(threshold int) *Consensus {
	return &Consensus{Threshold: float64(threshold), DisagreementScore: 60}
}

func (*Consensus) Name() string { return "consensus" }

func (c *Consensus) Combine(ruleScore, aiScore, aiConfidence float64) float64 {
	if aiConfidence < lowConfidence {
		return ruleScore
	}
	if math.Abs(ruleScore-aiScore) > c.Threshold {
		return c.DisagreementScore
	}
	return (ruleScore + aiScore) / 2
}

// ForName returns the strategy for a config name, defaulting to Weighted.
func ForName(name string, consensusThreshold int) Strategy {
	switch name {
	case "max":
		return Max{}
	case "min":
		return Min{}
	case "consensus":
		return NewConsensus(consensusThreshold)
	default:
		return Weighted{}
	}
}
