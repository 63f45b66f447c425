// Package exposure maps position snapshots into net economic exposure:
// directional delta per asset, valued in the reference asset, segregated
// into lending, staking and basis-hedge buckets.
package exposure

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/position"
	"github.com/mwfarley/yieldsim/venue"
)

// Snapshot is the derived exposure view for one timestamp. It has no
// mutation path of its own; it exists only as a function of a position
// snapshot and market data.
type Snapshot struct {
	time   time.Time
	deltas map[string]decimal.Decimal // asset -> net signed quantity

	// NetValue is the reference-asset value of the net directional delta.
	NetValue decimal.Decimal

	// Gross is the sum of absolute position values, used as the
	// denominator for drift ratios.
	Gross decimal.Decimal

	// Segregated buckets, all in reference-asset value.
	Lending decimal.Decimal // collateral supplied minus debt owed
	Staking decimal.Decimal // spot balances earning a staking rate
	Basis   decimal.Decimal // signed perp/margin exposure
}

func (s Snapshot) Time() time.Time { return s.time }

// Delta returns the net signed quantity for an asset; zero when flat.
func (s Snapshot) Delta(asset string) decimal.Decimal {
	return s.deltas[asset]
}

// Assets lists every asset with a non-zero net delta, sorted.
func (s Snapshot) Assets() []string {
	out := make([]string, 0, len(s.deltas))
	for a := range s.deltas {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Convert derives the exposure snapshot for pos. It is a pure function of
// its inputs: the same position snapshot and market data always produce
// the same exposure, which is what step-replay debugging relies on.
//
// Sign conventions: spot, collateral and (signed) margin quantities count
// toward delta as held; debt counts against it. Every balance needs a
// price at this timestamp; a missing quote is a data hole, not a zero.
func Convert(pos position.Snapshot, md market.Snapshot) (Snapshot, error) {
	out := Snapshot{
		time:     pos.Time(),
		deltas:   make(map[string]decimal.Decimal),
		NetValue: decimal.Zero,
		Gross:    decimal.Zero,
		Lending:  decimal.Zero,
		Staking:  decimal.Zero,
		Basis:    decimal.Zero,
	}

	for _, k := range pos.Keys() {
		qty := pos.Balance(k)

		q, err := md.Quote(k.Venue, k.Asset)
		if err != nil {
			return Snapshot{}, fmt.Errorf("exposure at %s: %w", pos.Time().Format(time.RFC3339), err)
		}

		signedQty := qty
		if k.Kind == venue.Debt {
			signedQty = qty.Neg()
		}
		value := signedQty.Mul(q.Price)

		d := out.deltas[k.Asset].Add(signedQty)
		if d.IsZero() {
			delete(out.deltas, k.Asset)
		} else {
			out.deltas[k.Asset] = d
		}

		out.NetValue = out.NetValue.Add(value)
		out.Gross = out.Gross.Add(value.Abs())

		switch k.Kind {
		case venue.Collateral, venue.Debt:
			out.Lending = out.Lending.Add(value)
		case venue.Margin:
			out.Basis = out.Basis.Add(value)
		case venue.Spot:
			if q.StakingAPR.IsPositive() {
				out.Staking = out.Staking.Add(value)
			}
		}
	}

	return out, nil
}
