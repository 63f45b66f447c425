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

// marketNeutralPolicy runs a staked long leg hedged flat with a perp
// short, with the long leg optionally levered against borrowed stables.
// Triggers: delta drift re-hedges the perp leg; LTV drift (leveraged
// variant only) steers the loan; the critical flag unwinds both legs.
type marketNeutralPolicy struct {
	reader
	leveraged bool
	target    decimal.Decimal // dynamic LTV target, leveraged variant only
}

func newMarketNeutralPolicy(leveraged bool, p Params) (*marketNeutralPolicy, error) {
	mode := UsdtMarketNeutralNoLeverage
	if leveraged {
		mode = UsdtMarketNeutral
	}
	if p.Venue == "" || p.HedgeVenue == "" || p.StakedAsset == "" || p.HedgeAsset == "" {
		return nil, fmt.Errorf("%s: venue, hedge venue, staked asset and hedge asset are required", mode)
	}

	s := &marketNeutralPolicy{reader: reader{p: p}, leveraged: leveraged}
	if leveraged {
		if p.DebtAsset == "" {
			return nil, fmt.Errorf("%s: debt asset is required", mode)
		}
		target, err := finmath.DynamicLTVTarget(p.MaxLTV, p.MaxExpectedPriceMove, p.SafetyBuffer)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", mode, err)
		}
		s.target = target
	}
	return s, nil
}

func (s *marketNeutralPolicy) Mode() Mode {
	if s.leveraged {
		return UsdtMarketNeutral
	}
	return UsdtMarketNeutralNoLeverage
}

func (s *marketNeutralPolicy) Decide(m risk.Metrics, e exposure.Snapshot, md market.Snapshot, ts time.Time) (Decision, error) {
	d := Decision{Time: ts, Mode: s.Mode()}

	stakedQty := e.Delta(s.p.StakedAsset)
	perpQty := e.Delta(s.p.HedgeAsset)

	if s.critical(m) {
		frac := s.p.CriticalDeleverage
		d.Actions = s.appendIf(d.Actions, Action{
			Venue:     s.p.Venue,
			Asset:     s.p.StakedAsset,
			Kind:      venue.Spot,
			Delta:     stakedQty.Mul(frac).Neg(),
			Priority:  0,
			Rationale: "margin-critical",
		})
		d.Actions = s.appendIf(d.Actions, Action{
			Venue:     s.p.HedgeVenue,
			Asset:     s.p.HedgeAsset,
			Kind:      venue.Margin,
			Delta:     perpQty.Mul(frac).Neg(),
			Priority:  0,
			Rationale: "margin-critical",
		})
		if s.leveraged {
			if book, ok := m.ByVenue(s.p.Venue); ok && book.HasDebt {
				repay, err := s.repayHalf(md, book)
				if err != nil {
					return Decision{}, err
				}
				d.Actions = append(d.Actions, repay...)
			}
		}
		return finish(d), nil
	}

	if _, drifted := s.pairDrift(e, s.p.StakedAsset, s.p.HedgeAsset); drifted {
		adjust := stakedQty.Add(perpQty).Neg()
		d.Actions = s.appendIf(d.Actions, Action{
			Venue:     s.p.HedgeVenue,
			Asset:     s.p.HedgeAsset,
			Kind:      venue.Margin,
			Delta:     adjust,
			Priority:  1,
			Rationale: "delta-drift",
		})
	}

	if s.leveraged {
		if book, ok := m.ByVenue(s.p.Venue); ok && book.HasDebt {
			if book.LTV.Sub(s.target).Abs().GreaterThan(s.p.LTVDriftTolerance) {
				steer, err := s.steerLoan(md, book)
				if err != nil {
					return Decision{}, err
				}
				d.Actions = append(d.Actions, steer...)
			}
		}
	}

	return finish(d), nil
}

// steerLoan adjusts the stable loan so the book's LTV returns to target,
// with the borrowed/repaid value flowing through the staked leg.
func (s *marketNeutralPolicy) steerLoan(md market.Snapshot, book risk.PositionRisk) ([]Action, error) {
	desired := s.target.Mul(book.CollateralValue)
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
		Priority:  1,
		Rationale: "ltv-drift",
	})
	actions = s.appendIf(actions, Action{
		Venue:     s.p.Venue,
		Asset:     s.p.StakedAsset,
		Kind:      venue.Spot,
		Delta:     diff.Div(stakedPx),
		Priority:  1,
		Rationale: "ltv-drift",
	})
	return actions, nil
}

// repayHalf cuts the outstanding loan by the deleverage fraction.
func (s *marketNeutralPolicy) repayHalf(md market.Snapshot, book risk.PositionRisk) ([]Action, error) {
	debtPx, err := s.price(md, s.p.Venue, s.p.DebtAsset)
	if err != nil {
		return nil, err
	}
	repayValue := book.DebtValue.Mul(s.p.CriticalDeleverage)

	var actions []Action
	actions = s.appendIf(actions, Action{
		Venue:     s.p.Venue,
		Asset:     s.p.DebtAsset,
		Kind:      venue.Debt,
		Delta:     repayValue.Div(debtPx).Neg(),
		Priority:  0,
		Rationale: "margin-critical",
	})
	return actions, nil
}
