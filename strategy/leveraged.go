package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mwfarley/yieldsim/exposure"
	"github.com/mwfarley/yieldsim/finmath"
	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/risk"
	"github.com/mwfarley/yieldsim/venue"
)

// leveragedPolicy runs the looped staking book: LST collateral, borrowed
// debt restaked into more collateral. It steers the book's LTV toward the
// dynamic target and unwinds on the critical flag.
type leveragedPolicy struct {
	reader
	target decimal.Decimal
}

func newLeveragedPolicy(p Params) (*leveragedPolicy, error) {
	if p.Venue == "" || p.StakedAsset == "" || p.DebtAsset == "" {
		return nil, fmt.Errorf("%s: venue, staked asset and debt asset are required", EthLeveraged)
	}
	target, err := finmath.DynamicLTVTarget(p.MaxLTV, p.MaxExpectedPriceMove, p.SafetyBuffer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EthLeveraged, err)
	}
	return &leveragedPolicy{reader: reader{p: p}, target: target}, nil
}

func (s *leveragedPolicy) Mode() Mode { return EthLeveraged }

func (s *leveragedPolicy) Decide(m risk.Metrics, e exposure.Snapshot, md market.Snapshot, ts time.Time) (Decision, error) {
	d := Decision{Time: ts, Mode: EthLeveraged}

	book, ok := m.ByVenue(s.p.Venue)
	if !ok {
		return d, nil
	}

	if s.critical(m) {
		actions, err := s.steerLTV(md, book, 0, "margin-critical")
		if err != nil {
			return Decision{}, err
		}
		d.Actions = actions
		return finish(d), nil
	}

	cur := decimal.Zero
	if book.HasDebt {
		cur = book.LTV
	}
	if cur.Sub(s.target).Abs().LessThanOrEqual(s.p.LTVDriftTolerance) {
		return d, nil
	}

	actions, err := s.steerLTV(md, book, 1, "ltv-drift")
	if err != nil {
		return Decision{}, err
	}
	d.Actions = actions
	return finish(d), nil
}

// steerLTV emits the debt adjustment that moves the book's LTV to the
// dynamic target, plus the matching collateral leg: borrowed value is
// restaked, repaid value is unstaked.
func (s *leveragedPolicy) steerLTV(md market.Snapshot, book risk.PositionRisk, priority int, rationale string) ([]Action, error) {
	// Solve for debt d' with collateral adjusting by the same value v:
	// d' = target * (collateral + v), v = d' - debt.
	// => d' = target * (collateral - debt) / (1 - target)
	one := decimal.NewFromInt(1)
	desired := s.target.Mul(book.CollateralValue.Sub(book.DebtValue)).Div(one.Sub(s.target))
	diff := desired.Sub(book.DebtValue)
	if diff.IsZero() {
		return nil, nil
	}

	debtPx, err := s.price(md, s.p.Venue, s.p.DebtAsset)
	if err != nil {
		return nil, err
	}
	stakedPx, err := s.price(md, s.p.Venue, s.p.StakedAsset)
	if err != nil {
		return nil, err
	}

	var actions []Action
	actions = s.appendIf(actions, Action{
		Venue:     s.p.Venue,
		Asset:     s.p.DebtAsset,
		Kind:      venue.Debt,
		Delta:     diff.Div(debtPx),
		Priority:  priority,
		Rationale: rationale,
	})
	actions = s.appendIf(actions, Action{
		Venue:     s.p.Venue,
		Asset:     s.p.StakedAsset,
		Kind:      venue.Collateral,
		Delta:     diff.Div(stakedPx),
		Priority:  priority,
		Rationale: rationale,
	})
	return actions, nil
}
