package risk

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mwfarley/yieldsim/exposure"
	"github.com/mwfarley/yieldsim/finmath"
	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/position"
	"github.com/mwfarley/yieldsim/venue"
)

// ErrUnknownVenue means a position exists at a venue the risk parameter
// table has no row for. The table comes from configuration, so this is a
// configuration error and fatal.
var ErrUnknownVenue = errors.New("risk: venue missing from parameter table")

// Flag grades a position's distance to liquidation.
type Flag int8

const (
	FlagNone Flag = iota
	FlagWarning
	FlagCritical
)

func (f Flag) String() string {
	switch f {
	case FlagWarning:
		return "warning"
	case FlagCritical:
		return "critical"
	default:
		return "none"
	}
}

// PositionRisk is the assessed state of one venue's book.
type PositionRisk struct {
	Venue string

	CollateralValue decimal.Decimal
	DebtValue       decimal.Decimal

	// Lending metrics; valid when HasDebt.
	HasDebt      bool
	LTV          decimal.Decimal
	HealthFactor decimal.Decimal

	// Margin metrics; valid when HasMargin.
	HasMargin   bool
	Notional    decimal.Decimal
	MarginRatio decimal.Decimal

	// LiquidationDistance is the relative adverse price move that would
	// make the position liquidatable; zero when already liquidatable.
	LiquidationDistance decimal.Decimal

	// Liquidation is what the venue's liquidation rules would cost if they
	// fired at these values. Liquidated stays false while the book holds
	// above the venue's threshold.
	Liquidation finmath.LiquidationOutcome

	Flag Flag
}

// Metrics is the run-level risk view for one timestamp. SnapshotTime and
// MarketTime record exactly which inputs produced these numbers.
type Metrics struct {
	Time         time.Time
	SnapshotTime time.Time
	MarketTime   time.Time

	Positions []PositionRisk // sorted by venue

	// Exposure context at assessment time, carried for the ledger.
	NetExposure   decimal.Decimal
	GrossExposure decimal.Decimal

	Warning  bool
	Critical bool
}

// ByVenue returns the assessed book for a venue, if it has one.
func (m Metrics) ByVenue(name string) (PositionRisk, bool) {
	for _, p := range m.Positions {
		if p.Venue == name {
			return p, true
		}
	}
	return PositionRisk{}, false
}

// Assess computes per-venue risk metrics and aggregates the warning and
// critical flags. The critical flag is the only emergency-rebalance
// trigger strategy policies are allowed to read.
func Assess(pos position.Snapshot, expo exposure.Snapshot, md market.Snapshot, params Params) (Metrics, error) {
	books := make(map[string]*bookState)

	for _, k := range pos.Keys() {
		qty := pos.Balance(k)
		q, err := md.Quote(k.Venue, k.Asset)
		if err != nil {
			return Metrics{}, fmt.Errorf("assess: %w", err)
		}

		b := books[k.Venue]
		if b == nil {
			b = &bookState{}
			books[k.Venue] = b
		}

		value := qty.Mul(q.Price)
		switch k.Kind {
		case venue.Collateral:
			b.collateral = b.collateral.Add(value)
		case venue.Debt:
			b.debt = b.debt.Add(value)
		case venue.Margin:
			b.notional = b.notional.Add(value.Abs())
		}
	}

	m := Metrics{
		Time:          pos.Time(),
		SnapshotTime:  pos.Time(),
		MarketTime:    md.Time(),
		NetExposure:   expo.NetValue,
		GrossExposure: expo.Gross,
	}

	venues := make([]string, 0, len(books))
	for v := range books {
		venues = append(venues, v)
	}
	sort.Strings(venues)

	for _, v := range venues {
		b := books[v]
		vp, ok := params.Venues[v]
		if !ok {
			return Metrics{}, fmt.Errorf("venue %q: %w", v, ErrUnknownVenue)
		}

		pr, err := assessBook(v, b, vp, params)
		if err != nil {
			return Metrics{}, err
		}
		if pr.Flag >= FlagWarning {
			m.Warning = true
		}
		if pr.Flag == FlagCritical {
			m.Critical = true
		}
		m.Positions = append(m.Positions, pr)
	}

	return m, nil
}

type bookState struct {
	collateral decimal.Decimal
	debt       decimal.Decimal
	notional   decimal.Decimal
}

func assessBook(name string, b *bookState, vp VenueParams, params Params) (PositionRisk, error) {
	pr := PositionRisk{
		Venue:           name,
		CollateralValue: b.collateral,
		DebtValue:       b.debt,
	}

	one := decimal.NewFromInt(1)

	if b.debt.IsPositive() {
		pr.HasDebt = true

		ltv, err := finmath.LoanToValue(b.debt, b.collateral, one)
		if err != nil {
			// Debt with zero collateral: insolvent, treat as critical with
			// zero distance rather than failing the run.
			pr.Flag = FlagCritical
			pr.LiquidationDistance = decimal.Zero
			return pr, nil
		}
		pr.LTV = ltv

		hf, err := finmath.HealthFactor(b.collateral, vp.LiquidationThreshold, b.debt)
		if err != nil {
			return PositionRisk{}, fmt.Errorf("venue %q health factor: %w", name, err)
		}
		pr.HealthFactor = hf

		// Relative collateral price drop that brings the health factor to
		// one: 1 - 1/HF.
		if hf.GreaterThan(one) {
			pr.LiquidationDistance = one.Sub(one.Div(hf))
		}

		switch {
		case hf.LessThanOrEqual(params.CriticalHealthFactor):
			pr.Flag = FlagCritical
		case hf.LessThanOrEqual(params.WarningHealthFactor):
			pr.Flag = FlagWarning
		}
	}

	if b.notional.IsPositive() {
		pr.HasMargin = true
		pr.Notional = b.notional

		ratio, err := finmath.MarginRatio(b.collateral, b.notional)
		if err != nil {
			return PositionRisk{}, fmt.Errorf("venue %q margin ratio: %w", name, err)
		}
		pr.MarginRatio = ratio

		// Distance to the maintenance threshold in relative terms.
		dist := ratio.Sub(vp.MaintenanceMargin)
		if dist.IsNegative() {
			dist = decimal.Zero
		}
		if !pr.HasDebt || dist.LessThan(pr.LiquidationDistance) {
			pr.LiquidationDistance = dist
		}

		warnAt := vp.MaintenanceMargin.Mul(params.WarningMarginMultiple)
		critAt := vp.MaintenanceMargin.Mul(params.CriticalMarginMultiple)
		switch {
		case ratio.LessThanOrEqual(critAt):
			pr.Flag = FlagCritical
		case ratio.LessThanOrEqual(warnAt) && pr.Flag < FlagWarning:
			pr.Flag = FlagWarning
		}
	}

	switch {
	case vp.Family == venue.CEX && pr.HasMargin:
		pr.Liquidation = finmath.SimulateLiquidation(finmath.LiquidationPosition{
			MarginPosted: b.collateral,
			MarginRatio:  pr.MarginRatio,
		}, vp.Rules())
	case vp.Family != venue.CEX && pr.HasDebt:
		pr.Liquidation = finmath.SimulateLiquidation(finmath.LiquidationPosition{
			CollateralValue: b.collateral,
			DebtValue:       b.debt,
		}, vp.Rules())
	}

	return pr, nil
}
