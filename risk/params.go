// Package risk turns position and exposure snapshots into per-position
// LTV/margin/health metrics and run-level warning/critical flags. The
// threshold policy is table-driven: every venue's parameters come from run
// configuration, so the same assessor serves every strategy variant.
package risk

import (
	"github.com/shopspring/decimal"

	"github.com/mwfarley/yieldsim/finmath"
	"github.com/mwfarley/yieldsim/venue"
)

// VenueParams is the risk parameter row for one venue.
type VenueParams struct {
	Family venue.Family

	// On-chain lending parameters.
	MaxLTV               decimal.Decimal
	LiquidationThreshold decimal.Decimal
	LiquidationBonus     decimal.Decimal
	CloseFactor          decimal.Decimal

	// Centralized margin parameters.
	MaintenanceMargin decimal.Decimal
}

// Rules maps venue parameters onto the math library's liquidation table.
func (p VenueParams) Rules() finmath.VenueRules {
	mech := finmath.OnChainLending
	if p.Family == venue.CEX {
		mech = finmath.CentralizedMargin
	}
	return finmath.VenueRules{
		Mechanism:            mech,
		MaintenanceMargin:    p.MaintenanceMargin,
		LiquidationThreshold: p.LiquidationThreshold,
		CloseFactor:          p.CloseFactor,
		LiquidationBonus:     p.LiquidationBonus,
	}
}

// Params is the full risk parameter table for a run, loaded once at run
// construction and immutable after.
type Params struct {
	Venues map[string]VenueParams

	// Health-factor thresholds for lending venues.
	WarningHealthFactor  decimal.Decimal // e.g. 1.30
	CriticalHealthFactor decimal.Decimal // e.g. 1.10

	// Margin-ratio thresholds for centralized venues, expressed as
	// multiples of the venue's maintenance margin.
	WarningMarginMultiple  decimal.Decimal // e.g. 2.0
	CriticalMarginMultiple decimal.Decimal // e.g. 1.25
}
