package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mwfarley/yieldsim/venue"
)

var bpsDenominator = decimal.NewFromInt(10000)

// SimAdapter fills every instruction at its reference price, adjusted by
// configured slippage, and charges a proportional fee. It is fully
// deterministic, which is what backtest reproducibility rests on.
type SimAdapter struct {
	family      venue.Family
	slippageBps decimal.Decimal
	feeBps      decimal.Decimal
}

func NewSimAdapter(family venue.Family, slippageBps, feeBps decimal.Decimal) *SimAdapter {
	return &SimAdapter{family: family, slippageBps: slippageBps, feeBps: feeBps}
}

func (a *SimAdapter) Family() venue.Family { return a.family }

// Submit fills the full delta. Buys pay up by the slippage, sells receive
// less; fees are charged on filled notional.
func (a *SimAdapter) Submit(_ context.Context, ins venue.Instruction) (venue.Result, error) {
	slip := ins.Price.Mul(a.slippageBps).Div(bpsDenominator)
	fill := ins.Price
	if ins.Delta.IsPositive() {
		fill = fill.Add(slip)
	} else {
		fill = fill.Sub(slip)
	}

	fee := ins.Delta.Abs().Mul(fill).Mul(a.feeBps).Div(bpsDenominator)

	return venue.Result{
		InstructionID: ins.ID,
		Venue:         ins.Venue,
		Asset:         ins.Asset,
		Kind:          ins.Kind,
		Status:        venue.Filled,
		Requested:     ins.Delta,
		Filled:        ins.Delta,
		Price:         fill,
		Fee:           fee,
	}, nil
}
