package finmath

import "github.com/shopspring/decimal"

// Mechanism selects which liquidation rules apply to a venue.
type Mechanism int8

const (
	// CentralizedMargin venues wipe the full posted margin once the
	// maintenance-margin ratio is breached.
	CentralizedMargin Mechanism = iota

	// OnChainLending venues liquidate a fixed close-factor fraction of the
	// outstanding debt plus a liquidation bonus.
	OnChainLending
)

// VenueRules is the per-venue liquidation parameter table. Values come
// from run configuration, never from code.
type VenueRules struct {
	Mechanism            Mechanism
	MaintenanceMargin    decimal.Decimal // e.g. 0.10
	LiquidationThreshold decimal.Decimal // e.g. 0.825
	CloseFactor          decimal.Decimal // e.g. 0.50
	LiquidationBonus     decimal.Decimal // e.g. 0.05
}

// LiquidationPosition is the slice of position state the liquidation rules
// need. Values are in the reference asset.
type LiquidationPosition struct {
	CollateralValue decimal.Decimal
	DebtValue       decimal.Decimal
	MarginPosted    decimal.Decimal
	MarginRatio     decimal.Decimal
}

// LiquidationOutcome reports what a liquidation event would cost.
type LiquidationOutcome struct {
	Liquidated       bool
	MarginLost       decimal.Decimal
	DebtRepaid       decimal.Decimal
	CollateralSeized decimal.Decimal
}

// SimulateLiquidation applies the venue's liquidation rules to a position.
// Deterministic: the same position and rules always produce the same
// outcome.
func SimulateLiquidation(p LiquidationPosition, rules VenueRules) LiquidationOutcome {
	switch rules.Mechanism {
	case CentralizedMargin:
		if p.MarginRatio.LessThan(rules.MaintenanceMargin) {
			return LiquidationOutcome{
				Liquidated: true,
				MarginLost: p.MarginPosted,
				DebtRepaid: decimal.Zero,
			}
		}
		return LiquidationOutcome{}

	case OnChainLending:
		if p.DebtValue.IsZero() {
			return LiquidationOutcome{}
		}
		hf, err := HealthFactor(p.CollateralValue, rules.LiquidationThreshold, p.DebtValue)
		if err != nil || hf.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return LiquidationOutcome{}
		}
		repaid := p.DebtValue.Mul(rules.CloseFactor)
		seized := repaid.Mul(decimal.NewFromInt(1).Add(rules.LiquidationBonus))
		return LiquidationOutcome{
			Liquidated:       true,
			DebtRepaid:       repaid,
			CollateralSeized: seized,
		}

	default:
		return LiquidationOutcome{}
	}
}
