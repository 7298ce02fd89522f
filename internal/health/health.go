// Package health computes a per-user risk health score from their verdict
// history. Old verdicts decay exponentially, so a user's standing
// regenerates over time instead of punishing them forever for one bad week.
package health

import (
	"context"
	"math"
	"time"

	"github.com/helixpay/payguard/internal/verdict"
)

// Calculator holds the decay tuning. The zero value is not usable;
// call NewCalculator for the production defaults.
type Calculator struct {
	LookbackDays     int     // history window
	HalfLifeDays     float64 // weight halves every this many days
	FloorWeight      float64 // old verdicts never fully vanish
	RecentCount      int     // how many most-recent verdicts get boosted
	RecentBoost      float64 // boost multiplier
	MinVerdicts      int     // below this, fall back to a capped simple average
	SimpleAverageCap float64

	verdicts verdict.Store
	now      func() time.Time
}

// NewCalculator creates a calculator with production defaults.
func NewCalculator(verdicts verdict.Store) *Calculator {
	return &Calculator{
		LookbackDays:     180,
		HalfLifeDays:     60,
		FloorWeight:      0.05,
		RecentCount:      10,
		RecentBoost:      1.5,
		MinVerdicts:      5,
		SimpleAverageCap: 30,
		verdicts:         verdicts,
		now:              time.Now,
	}
}

// WithClock overrides the calculator clock for tests.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Score is a user's current health, with enough context to explain it.
type Score struct {
	UserID       string    `json:"user_id"`
	Health       float64   `json:"health"`
	VerdictCount int       `json:"verdict_count"`
	Method       string    `json:"method"` // "weighted" or "simple_average"
	ComputedAt   time.Time `json:"computed_at"`
}

// Compute returns a user's health score in [0,100]. Higher means riskier.
// Verdicts later labeled legitimate are excluded: confirmed-clean history
// should not count against anyone.
func (c *Calculator) Compute(ctx context.Context, userID string) (*Score, error) {
	now := c.now()
	since := now.AddDate(0, 0, -c.LookbackDays)

	history, err := c.verdicts.ListForHealth(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	// history arrives newest first
	scored := history[:0:0]
	for _, v := range history {
		if v.Annotation != nil && v.Annotation.Label == verdict.LabelLegitimate {
			continue
		}
		scored = append(scored, v)
	}

	s := &Score{UserID: userID, VerdictCount: len(scored), ComputedAt: now}
	if len(scored) == 0 {
		s.Method = "weighted"
		return s, nil
	}

	if len(scored) < c.MinVerdicts {
		s.Method = "simple_average"
		s.Health = math.Min(c.simpleAverage(scored), c.SimpleAverageCap)
		return s, nil
	}

	s.Method = "weighted"
	s.Health = c.weighted(scored, now)
	return s, nil
}

func (c *Calculator) simpleAverage(vs []*verdict.Verdict) float64 {
	var sum float64
	for _, v := range vs {
		sum += float64(v.FinalScore)
	}
	return sum / float64(len(vs))
}

func (c *Calculator) weighted(vs []*verdict.Verdict, now time.Time) float64 {
	var weightedSum, weightSum float64
	for i, v := range vs {
		ageDays := now.Sub(v.CreatedAt).Hours() / 24
		w := math.Max(math.Exp(-ageDays*math.Ln2/c.HalfLifeDays), c.FloorWeight)
		if i < c.RecentCount {
			w *= c.RecentBoost
		}
		weightedSum += float64(v.FinalScore) * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return math.Min(math.Max(weightedSum/weightSum, 0), 100)
}
