package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwfarley/yieldsim/exposure"
	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/position"
	"github.com/mwfarley/yieldsim/risk"
	"github.com/mwfarley/yieldsim/venue"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var ts = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func riskParams() risk.Params {
	return risk.Params{
		Venues: map[string]risk.VenueParams{
			"aave": {
				Family:               venue.OnChain,
				MaxLTV:               dec("0.80"),
				LiquidationThreshold: dec("0.825"),
				CloseFactor:          dec("0.50"),
				LiquidationBonus:     dec("0.05"),
			},
			"lido": {
				Family: venue.OnChain,
			},
			"binance": {
				Family:            venue.CEX,
				MaintenanceMargin: dec("0.10"),
			},
		},
		WarningHealthFactor:    dec("1.30"),
		CriticalHealthFactor:   dec("1.10"),
		WarningMarginMultiple:  dec("2.0"),
		CriticalMarginMultiple: dec("1.25"),
	}
}

// pipeline runs convert+assess over a hand-built book so policies are
// tested against the same inputs the orchestrator would hand them.
func pipeline(t *testing.T, balances map[position.Key]decimal.Decimal, quotes map[market.Key]market.Quote) (risk.Metrics, exposure.Snapshot, market.Snapshot) {
	t.Helper()

	pos := position.NewSnapshot(ts, balances)
	md := market.NewSnapshot(ts, quotes)

	e, err := exposure.Convert(pos, md)
	require.NoError(t, err)
	m, err := risk.Assess(pos, e, md, riskParams())
	require.NoError(t, err)
	return m, e, md
}

func TestForModeClosedSet(t *testing.T) {
	t.Parallel()

	_, err := ForMode(Mode("grid-bot"), Params{})
	require.Error(t, err)

	// Every declared mode constructs with suitable params.
	full := Params{
		Venue:                "aave",
		HedgeVenue:           "binance",
		Asset:                "ETH",
		StakedAsset:          "stETH",
		DebtAsset:            "USDC",
		HedgeAsset:           "ETH-PERP",
		Capital:              dec("10000"),
		MaxLTV:               dec("0.80"),
		MaxExpectedPriceMove: dec("0.10"),
		SafetyBuffer:         dec("0.05"),
		DeltaDriftTolerance:  dec("0.02"),
		LTVDriftTolerance:    dec("0.05"),
		AllocationTolerance:  dec("0.02"),
	}
	for _, mode := range Modes() {
		p, err := ForMode(mode, full)
		require.NoError(t, err, "mode %s", mode)
		assert.Equal(t, mode, p.Mode())
	}
}

func TestLeveragedRejectsMisconfiguredSafetyMargin(t *testing.T) {
	t.Parallel()

	_, err := ForMode(EthLeveraged, Params{
		Venue:                "aave",
		StakedAsset:          "stETH",
		DebtAsset:            "ETH",
		MaxLTV:               dec("0.30"),
		MaxExpectedPriceMove: dec("0.25"),
		SafetyBuffer:         dec("0.10"),
	})
	require.Error(t, err, "negative dynamic target is a fatal configuration error")
}

func TestPureLendingHoldsOnTarget(t *testing.T) {
	t.Parallel()

	p, err := ForMode(PureLending, Params{
		Venue:               "aave",
		Asset:               "USDC",
		Capital:             dec("10000"),
		AllocationTolerance: dec("0.01"),
	})
	require.NoError(t, err)

	m, e, md := pipeline(t,
		map[position.Key]decimal.Decimal{
			{Venue: "aave", Asset: "USDC", Kind: venue.Collateral}: dec("10000"),
		},
		map[market.Key]market.Quote{
			{Venue: "aave", Asset: "USDC"}: {Price: dec("1"), SupplyAPR: dec("0.03")},
		})

	d, err := p.Decide(m, e, md, ts)
	require.NoError(t, err)
	assert.Empty(t, d.Actions, "on-target book must not rebalance")
}

func TestPureLendingTopsUpAfterDrift(t *testing.T) {
	t.Parallel()

	p, err := ForMode(PureLending, Params{
		Venue:               "aave",
		Asset:               "USDC",
		Capital:             dec("10000"),
		AllocationTolerance: dec("0.01"),
	})
	require.NoError(t, err)

	m, e, md := pipeline(t,
		map[position.Key]decimal.Decimal{
			{Venue: "aave", Asset: "USDC", Kind: venue.Collateral}: dec("9000"),
		},
		map[market.Key]market.Quote{
			{Venue: "aave", Asset: "USDC"}: {Price: dec("1")},
		})

	d, err := p.Decide(m, e, md, ts)
	require.NoError(t, err)
	require.Len(t, d.Actions, 1)

	a := d.Actions[0]
	assert.Equal(t, "aave", a.Venue)
	assert.Equal(t, venue.Collateral, a.Kind)
	assert.True(t, a.Delta.Equal(dec("1000")), "delta %s", a.Delta)
	assert.Equal(t, "allocation-drift", a.Rationale)
}

func TestBasisRehedgesOnDeltaDrift(t *testing.T) {
	t.Parallel()

	p, err := ForMode(BtcBasis, Params{
		Venue:               "binance",
		HedgeVenue:          "binance",
		Asset:               "BTC",
		HedgeAsset:          "BTC-PERP",
		Capital:             dec("60000"),
		DeltaDriftTolerance: dec("0.02"),
	})
	require.NoError(t, err)

	// Hedge short is light: 1 spot vs -0.8 perp.
	m, e, md := pipeline(t,
		map[position.Key]decimal.Decimal{
			{Venue: "binance", Asset: "BTC", Kind: venue.Spot}:        dec("1"),
			{Venue: "binance", Asset: "BTC-PERP", Kind: venue.Margin}: dec("-0.8"),
			{Venue: "binance", Asset: "USDT", Kind: venue.Collateral}: dec("30000"),
		},
		map[market.Key]market.Quote{
			{Venue: "binance", Asset: "BTC"}:      {Price: dec("60000")},
			{Venue: "binance", Asset: "BTC-PERP"}: {Price: dec("60000"), FundingRate: dec("0.0001")},
			{Venue: "binance", Asset: "USDT"}:     {Price: dec("1")},
		})

	d, err := p.Decide(m, e, md, ts)
	require.NoError(t, err)
	require.Len(t, d.Actions, 1)

	a := d.Actions[0]
	assert.Equal(t, venue.Margin, a.Kind)
	assert.True(t, a.Delta.Equal(dec("-0.2")), "delta %s", a.Delta)
	assert.Equal(t, "delta-drift", a.Rationale)
}

func TestBasisHoldsWhenHedged(t *testing.T) {
	t.Parallel()

	p, err := ForMode(EthBasis, Params{
		Venue:               "binance",
		HedgeVenue:          "binance",
		Asset:               "ETH",
		HedgeAsset:          "ETH-PERP",
		DeltaDriftTolerance: dec("0.02"),
	})
	require.NoError(t, err)

	m, e, md := pipeline(t,
		map[position.Key]decimal.Decimal{
			{Venue: "binance", Asset: "ETH", Kind: venue.Spot}:        dec("10"),
			{Venue: "binance", Asset: "ETH-PERP", Kind: venue.Margin}: dec("-10"),
			{Venue: "binance", Asset: "USDT", Kind: venue.Collateral}: dec("15000"),
		},
		map[market.Key]market.Quote{
			{Venue: "binance", Asset: "ETH"}:      {Price: dec("3000")},
			{Venue: "binance", Asset: "ETH-PERP"}: {Price: dec("3000")},
			{Venue: "binance", Asset: "USDT"}:     {Price: dec("1")},
		})

	d, err := p.Decide(m, e, md, ts)
	require.NoError(t, err)
	assert.Empty(t, d.Actions, "offsetting legs must not rebalance")
}

func TestBasisCriticalCutsBothLegs(t *testing.T) {
	t.Parallel()

	p, err := ForMode(BtcBasis, Params{
		Venue:               "binance",
		HedgeVenue:          "binance",
		Asset:               "BTC",
		HedgeAsset:          "BTC-PERP",
		DeltaDriftTolerance: dec("0.02"),
	})
	require.NoError(t, err)

	// Margin ratio 7200/60000 = 0.12 <= 0.125 -> critical.
	m, e, md := pipeline(t,
		map[position.Key]decimal.Decimal{
			{Venue: "binance", Asset: "BTC", Kind: venue.Spot}:        dec("1"),
			{Venue: "binance", Asset: "BTC-PERP", Kind: venue.Margin}: dec("-1"),
			{Venue: "binance", Asset: "USDT", Kind: venue.Collateral}: dec("7200"),
		},
		map[market.Key]market.Quote{
			{Venue: "binance", Asset: "BTC"}:      {Price: dec("60000")},
			{Venue: "binance", Asset: "BTC-PERP"}: {Price: dec("60000")},
			{Venue: "binance", Asset: "USDT"}:     {Price: dec("1")},
		})
	require.True(t, m.Critical)

	d, err := p.Decide(m, e, md, ts)
	require.NoError(t, err)
	require.Len(t, d.Actions, 2)

	for _, a := range d.Actions {
		assert.Equal(t, 0, a.Priority)
		assert.Equal(t, "margin-critical", a.Rationale)
	}
	// Half of each leg, opposite signs.
	assert.True(t, d.Actions[0].Delta.Equal(dec("-0.5")), "spot cut %s", d.Actions[0].Delta)
	assert.True(t, d.Actions[1].Delta.Equal(dec("0.5")), "perp cut %s", d.Actions[1].Delta)
}

func TestLeveragedBootstrapsTowardTarget(t *testing.T) {
	t.Parallel()

	// Dynamic target = 0.80 - 0.10 - 0.05 = 0.65.
	p, err := ForMode(EthLeveraged, Params{
		Venue:                "aave",
		StakedAsset:          "stETH",
		DebtAsset:            "ETH",
		MaxLTV:               dec("0.80"),
		MaxExpectedPriceMove: dec("0.10"),
		SafetyBuffer:         dec("0.05"),
		LTVDriftTolerance:    dec("0.05"),
	})
	require.NoError(t, err)

	m, e, md := pipeline(t,
		map[position.Key]decimal.Decimal{
			{Venue: "aave", Asset: "stETH", Kind: venue.Collateral}: dec("10"),
			{Venue: "aave", Asset: "ETH", Kind: venue.Debt}:         dec("1"),
		},
		map[market.Key]market.Quote{
			{Venue: "aave", Asset: "stETH"}: {Price: dec("3000"), SupplyAPR: dec("0.035")},
			{Venue: "aave", Asset: "ETH"}:   {Price: dec("3000"), BorrowAPR: dec("0.025")},
		})

	d, err := p.Decide(m, e, md, ts)
	require.NoError(t, err)
	require.Len(t, d.Actions, 2)

	// LTV 3000/30000 = 0.10, far below target: borrow and restake.
	var debtAction, collAction Action
	for _, a := range d.Actions {
		switch a.Kind {
		case venue.Debt:
			debtAction = a
		case venue.Collateral:
			collAction = a
		}
	}
	assert.True(t, debtAction.Delta.IsPositive(), "borrow more: %s", debtAction.Delta)
	assert.True(t, collAction.Delta.IsPositive(), "restake proceeds: %s", collAction.Delta)
	assert.Equal(t, "ltv-drift", debtAction.Rationale)
}

func TestLeveragedHoldsInsideTolerance(t *testing.T) {
	t.Parallel()

	p, err := ForMode(EthLeveraged, Params{
		Venue:                "aave",
		StakedAsset:          "stETH",
		DebtAsset:            "ETH",
		MaxLTV:               dec("0.80"),
		MaxExpectedPriceMove: dec("0.10"),
		SafetyBuffer:         dec("0.05"),
		LTVDriftTolerance:    dec("0.05"),
	})
	require.NoError(t, err)

	// LTV = 19500/30000 = 0.65 == target.
	m, e, md := pipeline(t,
		map[position.Key]decimal.Decimal{
			{Venue: "aave", Asset: "stETH", Kind: venue.Collateral}: dec("10"),
			{Venue: "aave", Asset: "ETH", Kind: venue.Debt}:         dec("6.5"),
		},
		map[market.Key]market.Quote{
			{Venue: "aave", Asset: "stETH"}: {Price: dec("3000")},
			{Venue: "aave", Asset: "ETH"}:   {Price: dec("3000")},
		})

	d, err := p.Decide(m, e, md, ts)
	require.NoError(t, err)
	assert.Empty(t, d.Actions)
}

func TestMarketNeutralCriticalUnwindsEverything(t *testing.T) {
	t.Parallel()

	p, err := ForMode(UsdtMarketNeutral, Params{
		Venue:                "lido",
		HedgeVenue:           "binance",
		StakedAsset:          "stETH",
		DebtAsset:            "USDC",
		HedgeAsset:           "ETH-PERP",
		MaxLTV:               dec("0.80"),
		MaxExpectedPriceMove: dec("0.10"),
		SafetyBuffer:         dec("0.05"),
		DeltaDriftTolerance:  dec("0.02"),
		LTVDriftTolerance:    dec("0.05"),
	})
	require.NoError(t, err)

	// Critical margin at the hedge venue: 1500/30000 = 0.05 < 0.125.
	m, e, md := pipeline(t,
		map[position.Key]decimal.Decimal{
			{Venue: "lido", Asset: "stETH", Kind: venue.Spot}:          dec("10"),
			{Venue: "binance", Asset: "ETH-PERP", Kind: venue.Margin}:  dec("-10"),
			{Venue: "binance", Asset: "USDT", Kind: venue.Collateral}:  dec("1500"),
		},
		map[market.Key]market.Quote{
			{Venue: "lido", Asset: "stETH"}:       {Price: dec("3000"), StakingAPR: dec("0.035")},
			{Venue: "binance", Asset: "ETH-PERP"}: {Price: dec("3000")},
			{Venue: "binance", Asset: "USDT"}:     {Price: dec("1")},
		})
	require.True(t, m.Critical)

	d, err := p.Decide(m, e, md, ts)
	require.NoError(t, err)
	require.Len(t, d.Actions, 2)

	assert.True(t, d.Actions[0].Delta.Equal(dec("5")), "perp buyback %s", d.Actions[0].Delta)
	assert.True(t, d.Actions[1].Delta.Equal(dec("-5")), "staked cut %s", d.Actions[1].Delta)
	for _, a := range d.Actions {
		assert.Equal(t, "margin-critical", a.Rationale)
	}
}

func TestDecisionsAreDeterministic(t *testing.T) {
	t.Parallel()

	p, err := ForMode(BtcBasis, Params{
		Venue:               "binance",
		HedgeVenue:          "binance",
		Asset:               "BTC",
		HedgeAsset:          "BTC-PERP",
		DeltaDriftTolerance: dec("0.02"),
	})
	require.NoError(t, err)

	m, e, md := pipeline(t,
		map[position.Key]decimal.Decimal{
			{Venue: "binance", Asset: "BTC", Kind: venue.Spot}:        dec("1"),
			{Venue: "binance", Asset: "BTC-PERP", Kind: venue.Margin}: dec("-0.8"),
			{Venue: "binance", Asset: "USDT", Kind: venue.Collateral}: dec("30000"),
		},
		map[market.Key]market.Quote{
			{Venue: "binance", Asset: "BTC"}:      {Price: dec("60000")},
			{Venue: "binance", Asset: "BTC-PERP"}: {Price: dec("60000")},
			{Venue: "binance", Asset: "USDT"}:     {Price: dec("1")},
		})

	a, err := p.Decide(m, e, md, ts)
	require.NoError(t, err)
	b, err := p.Decide(m, e, md, ts)
	require.NoError(t, err)

	require.Equal(t, len(a.Actions), len(b.Actions))
	for i := range a.Actions {
		assert.Equal(t, a.Actions[i].Venue, b.Actions[i].Venue)
		assert.Equal(t, a.Actions[i].Rationale, b.Actions[i].Rationale)
		assert.True(t, a.Actions[i].Delta.Equal(b.Actions[i].Delta))
	}
}
