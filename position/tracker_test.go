package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/venue"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func flatSnapshot(ts time.Time) market.Snapshot {
	return market.NewSnapshot(ts, map[market.Key]market.Quote{
		{Venue: "aave", Asset: "USDC"}: {
			Price:     dec("1"),
			SupplyAPR: dec("0.05"),
			BorrowAPR: dec("0.08"),
		},
	})
}

func TestTrackerFirstIngestUsesInitialBalances(t *testing.T) {
	t.Parallel()

	k := Key{Venue: "aave", Asset: "USDC", Kind: venue.Collateral}
	tr := NewTracker(map[Key]decimal.Decimal{k: dec("10000")})

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	snap, err := tr.Ingest(nil, flatSnapshot(t0), t0)
	require.NoError(t, err)

	assert.True(t, snap.Balance(k).Equal(dec("10000")))
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, t0, snap.Time())
}

func TestTrackerRejectsStaleTimestamp(t *testing.T) {
	t.Parallel()

	k := Key{Venue: "aave", Asset: "USDC", Kind: venue.Collateral}
	tr := NewTracker(map[Key]decimal.Decimal{k: dec("10000")})

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := tr.Ingest(nil, flatSnapshot(t0), t0)
	require.NoError(t, err)

	// Same timestamp.
	_, err = tr.Ingest(nil, flatSnapshot(t0), t0)
	require.ErrorIs(t, err, ErrStaleTimestamp)

	// Earlier timestamp.
	_, err = tr.Ingest(nil, flatSnapshot(t0), t0.Add(-time.Hour))
	require.ErrorIs(t, err, ErrStaleTimestamp)

	// Ledger untouched after rejections.
	assert.Len(t, tr.History(), 1)
}

func TestTrackerAppliesFills(t *testing.T) {
	t.Parallel()

	k := Key{Venue: "binance", Asset: "BTC", Kind: venue.Spot}
	tr := NewTracker(map[Key]decimal.Decimal{k: dec("1")})

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	md := market.NewSnapshot(t0, nil)
	_, err := tr.Ingest(nil, md, t0)
	require.NoError(t, err)

	results := []venue.Result{
		{
			InstructionID: "ins-000001",
			Venue:         "binance",
			Asset:         "BTC",
			Kind:          venue.Spot,
			Status:        venue.Filled,
			Requested:     dec("0.5"),
			Filled:        dec("0.5"),
		},
		{
			InstructionID: "ins-000002",
			Venue:         "binance",
			Asset:         "BTC-PERP",
			Kind:          venue.Margin,
			Status:        venue.Failed,
			Requested:     dec("-0.5"),
			Filled:        decimal.Zero,
			Reason:        "venue unavailable",
		},
	}

	t1 := t0.Add(time.Hour)
	snap, err := tr.Ingest(results, market.NewSnapshot(t1, nil), t1)
	require.NoError(t, err)

	assert.True(t, snap.Balance(k).Equal(dec("1.5")))
	// Failed result with zero fill leaves no margin position behind.
	assert.Equal(t, 1, snap.Len())
}

func TestTrackerAccruesInterest(t *testing.T) {
	t.Parallel()

	coll := Key{Venue: "aave", Asset: "USDC", Kind: venue.Collateral}
	debt := Key{Venue: "aave", Asset: "USDC", Kind: venue.Debt}
	tr := NewTracker(map[Key]decimal.Decimal{
		coll: dec("10000"),
		debt: dec("4000"),
	})

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := tr.Ingest(nil, flatSnapshot(t0), t0)
	require.NoError(t, err)

	// One year forward: 5% supply on collateral, 8% borrow on debt.
	t1 := t0.Add(365 * 24 * time.Hour)
	snap, err := tr.Ingest(nil, flatSnapshot(t1), t1)
	require.NoError(t, err)

	assert.True(t, snap.Balance(coll).Equal(dec("10500")), "collateral %s", snap.Balance(coll))
	assert.True(t, snap.Balance(debt).Equal(dec("4320")), "debt %s", snap.Balance(debt))
}

func TestHistoryIsOrderedAndRestartable(t *testing.T) {
	t.Parallel()

	k := Key{Venue: "aave", Asset: "USDC", Kind: venue.Collateral}
	tr := NewTracker(map[Key]decimal.Decimal{k: dec("100")})

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := t0.Add(time.Duration(i) * time.Hour)
		_, err := tr.Ingest(nil, market.NewSnapshot(ts, nil), ts)
		require.NoError(t, err)
	}

	first := tr.History()
	second := tr.History()
	require.Len(t, first, 5)
	require.Len(t, second, 5)

	for i := range first {
		assert.True(t, first[i].Equal(second[i]))
		if i > 0 {
			assert.True(t, first[i].Time().After(first[i-1].Time()))
		}
	}

	// Mutating the returned slice must not affect the tracker.
	first[0] = Snapshot{}
	assert.True(t, tr.History()[0].Equal(second[0]))
}

func TestSnapshotKeysDeterministic(t *testing.T) {
	t.Parallel()

	balances := map[Key]decimal.Decimal{
		{Venue: "binance", Asset: "BTC", Kind: venue.Spot}:       dec("1"),
		{Venue: "aave", Asset: "USDC", Kind: venue.Debt}:         dec("5"),
		{Venue: "aave", Asset: "USDC", Kind: venue.Collateral}:   dec("7"),
		{Venue: "binance", Asset: "BTC-PERP", Kind: venue.Margin}: dec("-1"),
	}

	s := NewSnapshot(time.Now(), balances)
	keys := s.Keys()
	require.Len(t, keys, 4)

	assert.Equal(t, Key{Venue: "aave", Asset: "USDC", Kind: venue.Collateral}, keys[0])
	assert.Equal(t, Key{Venue: "aave", Asset: "USDC", Kind: venue.Debt}, keys[1])
	assert.Equal(t, Key{Venue: "binance", Asset: "BTC", Kind: venue.Spot}, keys[2])
	assert.Equal(t, Key{Venue: "binance", Asset: "BTC-PERP", Kind: venue.Margin}, keys[3])
}
