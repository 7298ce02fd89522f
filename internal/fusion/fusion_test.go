package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightedBands(t *testing.T) {
	w := Weighted{}

	// conf < 20: AI ignored entirely.
	assert.InDelta(t, 50.0, w.Combine(50, 90, 10), 0.001)

	// conf >= 80: confidence-weighted blend, c = 0.85.
	assert.InDelta(t, 50*0.15+75*0.85, w.Combine(50, 75, 85), 0.001)

	// 50 <= conf < 80: straight average.
	assert.InDelta(t, 60.0, w.Combine(40, 80, 60), 0.001)

	// 20 <= conf < 50: 70/30.
	assert.InDelta(t, 40*0.7+80*0.3, w.Combine(40, 80, 30), 0.001)
}

func TestFuseHighConfidenceBlend(t *testing.T) {
	// ruleScore=50, AI 75 at confidence 85: fused ≈ 50×0.15 + 75×0.85 ≈ 71.
	got := Fuse(50, 75, 85, false, Weighted{})
	assert.Equal(t, 71, got)
	assert.Equal(t, ActionReview, ActionForScore(got))
}

func TestFuseAIUnavailablePassesRuleScore(t *testing.T) {
	for _, s := range []Strategy{Weighted{}, Max{}, Min{}, NewConsensus(40)} {
		got := Fuse(50, 90, 99, true, s)
		assert.Equal(t, 50, got, "strategy %s", s.Name())
	}
}

func TestFuseAlwaysInRange(t *testing.T) {
	strategies := []Strategy{Weighted{}, Max{}, Min{}, NewConsensus(40)}
	for _, s := range strategies {
		for rule := 0; rule <= 100; rule += 25 {
			for ai := 0; ai <= 100; ai += 25 {
				for conf := 0; conf <= 100; conf += 20 {
					got := Fuse(rule, ai, conf, false, s)
					assert.GreaterOrEqual(t, got, 0, "strategy %s", s.Name())
					assert.LessOrEqual(t, got, 100, "strategy %s", s.Name())
				}
			}
		}
	}
}

func TestMaxAndMin(t *testing.T) {
	assert.InDelta(t, 80.0, Max{}.Combine(30, 80, 90), 0.001)
	assert.InDelta(t, 30.0, Min{}.Combine(30, 80, 90), 0.001)

	// Low confidence falls back to rules for both.
	assert.InDelta(t, 30.0, Max{}.Combine(30, 80, 5), 0.001)
	assert.InDelta(t, 30.0, Min{}.Combine(30, 80, 5), 0.001)
}

func TestConsensus(t *testing.T) {
	c := NewConsensus(40)

	// Agreement: average.
	assert.InDelta(t, 50.0, c.Combine(40, 60, 90), 0.001)

	// Divergence beyond threshold: forced review score.
	assert.InDelta(t, 60.0, c.Combine(10, 95, 90), 0.001)
}

func TestActionForScoreStepFunction(t *testing.T) {
	tests := []struct {
		score int
		want  Action
	}{
		{0, ActionAllow},
		{39, ActionAllow},
		{40, ActionChallenge},
		{59, ActionChallenge},
		{60, ActionReview},
		{79, ActionReview},
		{80, ActionBlock},
		{100, ActionBlock},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ActionForScore(tt.score), "score %d", tt.score)
	}
}

func TestActionMonotonic(t *testing.T) {
	order := map[Action]int{ActionAllow: 0, ActionChallenge: 1, ActionReview: 2, ActionBlock: 3}
	prev := ActionAllow
	for score := 0; score <= 100; score++ {
		cur := ActionForScore(score)
		assert.GreaterOrEqual(t, order[cur], order[prev], "score %d", score)
		prev = cur
	}
}

func TestLevelForScore(t *testing.T) {
	assert.Equal(t, LevelMinimal, LevelForScore(10))
	assert.Equal(t, LevelLow, LevelForScore(25))
	assert.Equal(t, LevelMedium, LevelForScore(45))
	assert.Equal(t, LevelMedium, LevelForScore(65))
	assert.Equal(t, LevelHigh, LevelForScore(70))
	assert.Equal(t, LevelCritical, LevelForScore(90))
}

func TestLevelBelow(t *testing.T) {
	assert.True(t, LevelBelow(LevelMedium, LevelHigh))
	assert.True(t, LevelBelow(LevelMinimal, LevelCritical))
	assert.False(t, LevelBelow(LevelHigh, LevelHigh))
	assert.False(t, LevelBelow(LevelCritical, LevelLow))
}

func TestHolds(t *testing.T) {
	assert.False(t, ActionAllow.Holds())
	assert.False(t, ActionChallenge.Holds())
	assert.True(t, ActionReview.Holds())
	assert.True(t, ActionBlock.Holds())
}

func TestForName(t *testing.T) {
	assert.Equal(t, "max", ForName("max", 40).Name())
	assert.Equal(t, "min", ForName("min", 40).Name())
	assert.Equal(t, "consensus", ForName("consensus", 40).Name())
	assert.Equal(t, "weighted", ForName("weighted", 40).Name())
	assert.Equal(t, "weighted", ForName("anything-else", 40).Name())
}
