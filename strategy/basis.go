package strategy

import (
	"fmt"
	"time"

	"github.com/mwfarley/yieldsim/exposure"
	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/risk"
	"github.com/mwfarley/yieldsim/venue"
)

// basisPolicy runs a spot long against a perp short, capturing the funding
// spread. Rebalance triggers: delta drift between the legs, and the
// critical flag, which cuts both legs by the deleverage fraction.
type basisPolicy struct {
	reader
	mode Mode
}

func newBasisPolicy(mode Mode, p Params) (*basisPolicy, error) {
	if p.Venue == "" || p.HedgeVenue == "" {
		return nil, fmt.Errorf("%s: spot and hedge venues are required", mode)
	}
	if p.Asset == "" || p.HedgeAsset == "" {
		return nil, fmt.Errorf("%s: asset and hedge asset are required", mode)
	}
	return &basisPolicy{reader: reader{p: p}, mode: mode}, nil
}

func (s *basisPolicy) Mode() Mode { return s.mode }

func (s *basisPolicy) Decide(m risk.Metrics, e exposure.Snapshot, md market.Snapshot, ts time.Time) (Decision, error) {
	d := Decision{Time: ts, Mode: s.mode}

	spotQty := e.Delta(s.p.Asset)
	perpQty := e.Delta(s.p.HedgeAsset)

	if s.critical(m) {
		// Emergency: shed the configured fraction of both legs to restore
		// margin headroom. Opposite signs unwind both.
		frac := s.p.CriticalDeleverage
		d.Actions = s.appendIf(d.Actions, Action{
			Venue:     s.p.Venue,
			Asset:     s.p.Asset,
			Kind:      venue.Spot,
			Delta:     spotQty.Mul(frac).Neg(),
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
		return finish(d), nil
	}

	if _, drifted := s.pairDrift(e, s.p.Asset, s.p.HedgeAsset); !drifted {
		return d, nil
	}

	// Re-hedge: move the perp leg to exactly offset the spot leg.
	adjust := spotQty.Add(perpQty).Neg()
	d.Actions = s.appendIf(d.Actions, Action{
		Venue:     s.p.HedgeVenue,
		Asset:     s.p.HedgeAsset,
		Kind:      venue.Margin,
		Delta:     adjust,
		Priority:  1,
		Rationale: "delta-drift",
	})
	return finish(d), nil
}
