package fusion

// Action is the custody decision derived from the final score.
type Action string

const (
	ActionAllow     Action = "ALLOW"
	ActionChallenge Action = "CHALLENGE"
	ActionReview    Action = "REVIEW"
	ActionBlock     Action = "BLOCK"
)

// RiskLevel is the coarse display bucket. It never drives custody decisions.
type RiskLevel string

const (
	LevelMinimal  RiskLevel = "MINIMAL"
	LevelLow      RiskLevel = "LOW"
	LevelMedium   RiskLevel = "MEDIUM"
	LevelHigh     RiskLevel = "HIGH"
	LevelCritical RiskLevel = "CRITICAL"
)

// ActionForScore maps a final score onto an action. Lower-inclusive bands:
// [0,40) ALLOW, [40,60) CHALLENGE, [60,80) REVIEW, [80,100] BLOCK.
func ActionForScore(score int) Action {
	switch {
	case score < 40:
		return ActionAllow
	case score < 60:
		return ActionChallenge
	case score < 80:
		return ActionReview
	default:
		return ActionBlock
	}
}

// LevelForScore maps a final score onto the display risk level. The bands
// are offset from the action bands on purpose: a low-end REVIEW (60-69)
// shows as MEDIUM, which is what the review-backlog sweep keys on.
func LevelForScore(score int) RiskLevel {
	switch {
	case score < 20:
		return LevelMinimal
	case score < 40:
		return LevelLow
	case score < 70:
		return LevelMedium
	case score < 85:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// LevelBelow reports whether a comes before b in the risk ordering.
func LevelBelow(a, b RiskLevel) bool {
	return levelRank(a) < levelRank(b)
}

func levelRank(l RiskLevel) int {
	switch l {
	case LevelMinimal:
		return 0
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	default:
		return 4
	}
}

// Holds reports whether an action parks the money in custody rather than
// moving it to the recipient.
func (a Action) Holds() bool {
	return a == ActionReview || a == ActionBlock
}
