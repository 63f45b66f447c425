package exposure

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/position"
	"github.com/mwfarley/yieldsim/venue"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func basisBook(t *testing.T) (position.Snapshot, market.Snapshot) {
	t.Helper()

	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	pos := position.NewSnapshot(ts, map[position.Key]decimal.Decimal{
		{Venue: "binance", Asset: "BTC", Kind: venue.Spot}:        dec("1"),
		{Venue: "binance", Asset: "BTC-PERP", Kind: venue.Margin}: dec("-1"),
		{Venue: "aave", Asset: "USDC", Kind: venue.Collateral}:    dec("10000"),
		{Venue: "aave", Asset: "USDC", Kind: venue.Debt}:          dec("4000"),
		{Venue: "lido", Asset: "stETH", Kind: venue.Spot}:         dec("2"),
	})

	md := market.NewSnapshot(ts, map[market.Key]market.Quote{
		{Venue: "binance", Asset: "BTC"}:      {Price: dec("60000")},
		{Venue: "binance", Asset: "BTC-PERP"}: {Price: dec("60000"), FundingRate: dec("0.0001")},
		{Venue: "aave", Asset: "USDC"}:        {Price: dec("1"), SupplyAPR: dec("0.03"), BorrowAPR: dec("0.05")},
		{Venue: "lido", Asset: "stETH"}:       {Price: dec("3000"), StakingAPR: dec("0.035")},
	})

	return pos, md
}

func TestConvertBuckets(t *testing.T) {
	t.Parallel()

	pos, md := basisBook(t)

	e, err := Convert(pos, md)
	require.NoError(t, err)

	// Deltas are per asset; the spot and perp legs stay separate so hedge
	// drift can compare them.
	assert.True(t, e.Delta("BTC").Equal(dec("1")))
	assert.True(t, e.Delta("BTC-PERP").Equal(dec("-1")))
	assert.True(t, e.Delta("stETH").Equal(dec("2")))
	assert.True(t, e.Delta("USDC").Equal(dec("6000")))

	// Lending: 10000 supplied - 4000 borrowed.
	assert.True(t, e.Lending.Equal(dec("6000")), "lending %s", e.Lending)
	// Staking: 2 stETH at 3000.
	assert.True(t, e.Staking.Equal(dec("6000")), "staking %s", e.Staking)
	// Basis: short one perp at 60000.
	assert.True(t, e.Basis.Equal(dec("-60000")), "basis %s", e.Basis)

	// Net: 60000 - 60000 + 6000 + 6000 = 12000.
	assert.True(t, e.NetValue.Equal(dec("12000")), "net %s", e.NetValue)
	// Gross: 60000 + 60000 + 10000 + 4000 + 6000 = 140000.
	assert.True(t, e.Gross.Equal(dec("140000")), "gross %s", e.Gross)

	assert.Equal(t, []string{"BTC", "BTC-PERP", "USDC", "stETH"}, e.Assets())
}

func TestConvertIsPure(t *testing.T) {
	t.Parallel()

	pos, md := basisBook(t)

	a, err := Convert(pos, md)
	require.NoError(t, err)
	b, err := Convert(pos, md)
	require.NoError(t, err)

	assert.True(t, a.NetValue.Equal(b.NetValue))
	assert.True(t, a.Gross.Equal(b.Gross))
	assert.True(t, a.Lending.Equal(b.Lending))
	assert.True(t, a.Staking.Equal(b.Staking))
	assert.True(t, a.Basis.Equal(b.Basis))
	assert.Equal(t, a.Assets(), b.Assets())
}

func TestConvertMissingQuoteFails(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	pos := position.NewSnapshot(ts, map[position.Key]decimal.Decimal{
		{Venue: "binance", Asset: "BTC", Kind: venue.Spot}: dec("1"),
	})
	md := market.NewSnapshot(ts, nil)

	_, err := Convert(pos, md)
	require.ErrorIs(t, err, market.ErrNoData)
}
