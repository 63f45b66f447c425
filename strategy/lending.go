package strategy

import (
	"fmt"
	"time"

	"github.com/mwfarley/yieldsim/exposure"
	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/risk"
	"github.com/mwfarley/yieldsim/venue"
)

// lendingPolicy keeps a single unleveraged supply position at the target
// capital value. No debt, no hedge: the only trigger is allocation drift.
type lendingPolicy struct {
	reader
	mode Mode
}

func newLendingPolicy(mode Mode, p Params) (*lendingPolicy, error) {
	if p.Venue == "" || p.Asset == "" {
		return nil, fmt.Errorf("%s: venue and asset are required", mode)
	}
	if !p.Capital.IsPositive() {
		return nil, fmt.Errorf("%s: capital must be positive", mode)
	}
	return &lendingPolicy{reader: reader{p: p}, mode: mode}, nil
}

func (s *lendingPolicy) Mode() Mode { return s.mode }

func (s *lendingPolicy) Decide(m risk.Metrics, e exposure.Snapshot, md market.Snapshot, ts time.Time) (Decision, error) {
	d := Decision{Time: ts, Mode: s.mode}

	if _, drifted := s.allocationDrift(e.Lending); !drifted {
		return d, nil
	}

	px, err := s.price(md, s.p.Venue, s.p.Asset)
	if err != nil {
		return Decision{}, err
	}

	qty := s.p.Capital.Sub(e.Lending).Div(px)
	d.Actions = s.appendIf(d.Actions, Action{
		Venue:     s.p.Venue,
		Asset:     s.p.Asset,
		Kind:      venue.Collateral,
		Delta:     qty,
		Priority:  1,
		Rationale: "allocation-drift",
	})
	return finish(d), nil
}

// stakingPolicy holds an unleveraged LST position at the target capital
// value. Identical trigger structure to lending, but the leg is a spot
// staking balance.
type stakingPolicy struct {
	reader
}

func newStakingPolicy(p Params) (*stakingPolicy, error) {
	if p.Venue == "" || p.StakedAsset == "" {
		return nil, fmt.Errorf("%s: venue and staked asset are required", EthStakingOnly)
	}
	if !p.Capital.IsPositive() {
		return nil, fmt.Errorf("%s: capital must be positive", EthStakingOnly)
	}
	return &stakingPolicy{reader: reader{p: p}}, nil
}

func (s *stakingPolicy) Mode() Mode { return EthStakingOnly }

func (s *stakingPolicy) Decide(m risk.Metrics, e exposure.Snapshot, md market.Snapshot, ts time.Time) (Decision, error) {
	d := Decision{Time: ts, Mode: EthStakingOnly}

	if _, drifted := s.allocationDrift(e.Staking); !drifted {
		return d, nil
	}

	px, err := s.price(md, s.p.Venue, s.p.StakedAsset)
	if err != nil {
		return Decision{}, err
	}

	qty := s.p.Capital.Sub(e.Staking).Div(px)
	d.Actions = s.appendIf(d.Actions, Action{
		Venue:     s.p.Venue,
		Asset:     s.p.StakedAsset,
		Kind:      venue.Spot,
		Delta:     qty,
		Priority:  1,
		Rationale: "allocation-drift",
	})
	return finish(d), nil
}
