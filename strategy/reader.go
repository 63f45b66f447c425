package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mwfarley/yieldsim/exposure"
	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/risk"
)

// reader is the shared risk/exposure view every policy composes with its
// variant-specific target computation.
type reader struct {
	p Params
}

// critical reports the aggregate critical flag, the single emergency
// trigger policies are allowed to act on.
func (r reader) critical(m risk.Metrics) bool { return m.Critical }

// pairDrift measures how far a hedge pair sits from delta-neutral:
// |long + hedge| relative to the larger leg. An empty pair never drifts.
func (r reader) pairDrift(e exposure.Snapshot, longAsset, hedgeAsset string) (decimal.Decimal, bool) {
	longQty := e.Delta(longAsset)
	hedgeQty := e.Delta(hedgeAsset)

	denom := decimal.Max(longQty.Abs(), hedgeQty.Abs())
	if !denom.IsPositive() {
		return decimal.Zero, false
	}
	ratio := longQty.Add(hedgeQty).Abs().Div(denom)
	return ratio, ratio.GreaterThan(r.p.DeltaDriftTolerance)
}

// allocationDrift measures how far a bucket value sits from the capital
// target, relative to the target.
func (r reader) allocationDrift(current decimal.Decimal) (decimal.Decimal, bool) {
	if !r.p.Capital.IsPositive() {
		return decimal.Zero, false
	}
	dev := current.Sub(r.p.Capital).Abs().Div(r.p.Capital)
	return dev, dev.GreaterThan(r.p.AllocationTolerance)
}

// price looks up the point-in-time price for venue/asset; a missing quote
// propagates as a data-consistency failure.
func (r reader) price(md market.Snapshot, venueName, asset string) (decimal.Decimal, error) {
	q, err := md.Quote(venueName, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("strategy: %w", err)
	}
	if !q.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("strategy: non-positive price for %s/%s", venueName, asset)
	}
	return q.Price, nil
}

// keep filters dust actions below the configured minimum size.
func (r reader) keep(a Action) bool {
	if a.Delta.IsZero() {
		return false
	}
	if r.p.MinActionSize.IsPositive() && a.Delta.Abs().LessThan(r.p.MinActionSize) {
		return false
	}
	return true
}

// appendIf appends a when it survives the dust filter.
func (r reader) appendIf(actions []Action, a Action) []Action {
	if r.keep(a) {
		return append(actions, a)
	}
	return actions
}
