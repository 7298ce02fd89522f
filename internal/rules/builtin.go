package rules

import (
	"math"
	"time"
)

// Rule thresholds. Amounts are in wallet units.
const (
	rapidFireWindow = 60 * time.Second
	rapidFireCount  = 5

	reportingThreshold = 10000 // regulatory reporting threshold
	nearThresholdBand  = 1000  // amounts within this band below the threshold

	newAccountAge   = 7 * 24 * time.Hour
	newAccountValue = 1000

	roundAmountFloor = 1000

	dormantGap         = 30 * 24 * time.Hour
	dormantBurstWindow = 10 * time.Minute
	dormantBurstCount  = 3
)

// RapidFireRule fires when the actor has made rapidFireCount or more
// transactions inside a rolling 60-second window.
type RapidFireRule struct{}

func (r *RapidFireRule) Name() string { return "rapid-fire" }
func (r *RapidFireRule) Weight() int  { return 25 }

func (r *RapidFireRule) Fires(ec *EvalContext) bool {
	cutoff := ec.Now.Add(-rapidFireWindow)
	count := 1 // the transaction under evaluation
	for _, tx := range ec.Recent {
		if tx.CreatedAt.After(cutoff) {
			count++
		}
	}
	return count >= rapidFireCount
}

// NearThresholdRule fires on amounts sitting just below the regulatory
// reporting threshold, the classic structuring band.
type NearThresholdRule struct{}

func (r *NearThresholdRule) Name() string { return "near-threshold" }
func (r *NearThresholdRule) Weight() int  { return 20 }

func (r *NearThresholdRule) Fires(ec *EvalContext) bool {
	amount := ec.Tx.Amount
	return amount >= reportingThreshold-nearThresholdBand && amount < reportingThreshold
}

// NewAccountHighValueRule fires when a young account moves a large amount.
type NewAccountHighValueRule struct{}

func (r *NewAccountHighValueRule) Name() string { return "new-account-high-value" }
func (r *NewAccountHighValueRule) Weight() int  { return 30 }

func (r *NewAccountHighValueRule) Fires(ec *EvalContext) bool {
	if ec.Account.CreatedAt.IsZero() {
		return false
	}
	age := ec.Now.Sub(ec.Account.CreatedAt)
	return age < newAccountAge && ec.Tx.Amount > newAccountValue
}

// RoundAmountRule fires on conspicuously round amounts; mules tend to move
// exact thousands while organic payments rarely are.
type RoundAmountRule struct{}

func (r *RoundAmountRule) Name() string { return "round-amount" }
func (r *RoundAmountRule) Weight() int  { return 10 }

func (r *RoundAmountRule) Fires(ec *EvalContext) bool {
	amount := ec.Tx.Amount
	return amount >= roundAmountFloor && math.Mod(amount, 1000) == 0
}

// DormantBurstRule fires when a long-dormant account suddenly produces a
// burst of transfers.
type DormantBurstRule struct{}

func (r *DormantBurstRule) Name() string { return "dormant-burst" }
func (r *DormantBurstRule) Weight() int  { return 15 }

func (r *DormantBurstRule) Fires(ec *EvalContext) bool {
	burstCutoff := ec.Now.Add(-dormantBurstWindow)
	gapCutoff := ec.Now.Add(-dormantGap)

	burst := 1 // the transaction under evaluation
	for _, tx := range ec.Recent {
		if tx.CreatedAt.After(burstCutoff) {
			burst++
		} else if tx.CreatedAt.After(gapCutoff) {
			// Activity between the burst and the gap window: not dormant.
			return false
		}
	}
	return burst >= dormantBurstCount && !ec.Account.CreatedAt.After(gapCutoff)
}

// ImpossibleTravelRule folds the geo-velocity signal into the score: the
// source IP implies travel no human could have made since the last check.
type ImpossibleTravelRule struct{}

func (r *ImpossibleTravelRule) Name() string { return "impossible-travel" }
func (r *ImpossibleTravelRule) Weight() int  { return 25 }

func (r *ImpossibleTravelRule) Fires(ec *EvalContext) bool {
	return ec.Geo != nil && ec.Geo.Suspicious
}
