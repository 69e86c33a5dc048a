package alerting

import (
	"time"

	"github.com/shopspring/decimal"

	"morpho-rate-alerts/internal/fetcher"
	"morpho-rate-alerts/internal/storage"
)

// Direction names the threshold edge that was crossed.
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Rule is the per-market alert configuration.
type Rule struct {
	MarketKey string
	ChainID   int
	Threshold decimal.Decimal
}

// Decision is the outcome of evaluating one snapshot against the previous state.
type Decision struct {
	Notify    bool
	Direction Direction
	Message   string
	IsAbove   bool
	State     storage.AlertState
}

// Evaluate applies the edge trigger: a notification fires only when the rate
// crosses the threshold (>= counts as above) relative to the previous state.
// The returned state always reflects the current observation.
func Evaluate(rule Rule, snap fetcher.MarketSnapshot, prev storage.AlertState, now time.Time) Decision {
	isAbove := snap.BorrowAPY.GreaterThanOrEqual(rule.Threshold)

	decision := Decision{
		IsAbove: isAbove,
		State:   storage.AlertState{WasAbove: isAbove},
	}

	switch {
	case isAbove && !prev.WasAbove:
		decision.Direction = DirectionAbove
	case !isAbove && prev.WasAbove:
		decision.Direction = DirectionBelow
	default:
		return decision
	}

	decision.Notify = true
	decision.Message = RenderMessage(decision.Direction, rule, snap, now)
	return decision
}
