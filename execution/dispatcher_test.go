package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/strategy"
	"github.com/mwfarley/yieldsim/venue"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// flakyAdapter fails transiently a set number of times, then fills.
type flakyAdapter struct {
	failures int
	calls    int
}

func (a *flakyAdapter) Family() venue.Family { return venue.CEX }

func (a *flakyAdapter) Submit(_ context.Context, ins venue.Instruction) (venue.Result, error) {
	a.calls++
	if a.calls <= a.failures {
		return venue.Result{}, venue.Transient(ins.Venue, errors.New("venue busy"))
	}
	return venue.Result{
		InstructionID: ins.ID,
		Venue:         ins.Venue,
		Asset:         ins.Asset,
		Kind:          ins.Kind,
		Status:        venue.Filled,
		Requested:     ins.Delta,
		Filled:        ins.Delta,
		Price:         ins.Price,
	}, nil
}

// brokenAdapter always fails permanently.
type brokenAdapter struct{ calls int }

func (a *brokenAdapter) Family() venue.Family { return venue.CEX }

func (a *brokenAdapter) Submit(_ context.Context, ins venue.Instruction) (venue.Result, error) {
	a.calls++
	return venue.Result{}, venue.Permanent(ins.Venue, errors.New("order rejected"))
}

func testDecision() strategy.Decision {
	return strategy.Decision{
		Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Mode: strategy.BtcBasis,
		Actions: []strategy.Action{
			{Venue: "binance", Asset: "BTC-PERP", Kind: venue.Margin, Delta: dec("-0.2"), Priority: 1, Rationale: "delta-drift"},
		},
	}
}

func testMarket() market.Snapshot {
	return market.NewSnapshot(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), map[market.Key]market.Quote{
		{Venue: "binance", Asset: "BTC-PERP"}: {Price: dec("60000")},
	})
}

func newTestDispatcher(adapter venue.Adapter, retries int) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(
		map[venue.Family]venue.Adapter{venue.CEX: adapter},
		map[string]venue.Family{"binance": venue.CEX},
		Config{Timeout: time.Second, MaxRetries: retries, BackoffBase: 10 * time.Millisecond},
	)
	var slept []time.Duration
	d.sleep = func(w time.Duration) { slept = append(slept, w) }
	return d, &slept
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	adapter := &flakyAdapter{failures: 2}
	d, slept := newTestDispatcher(adapter, 3)

	results, err := d.Dispatch(context.Background(), testDecision(), testMarket())
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, venue.Filled, results[0].Status)
	assert.Equal(t, 3, adapter.calls)
	// Exponential backoff between attempts: base, 2*base.
	require.Len(t, *slept, 2)
	assert.Equal(t, 10*time.Millisecond, (*slept)[0])
	assert.Equal(t, 20*time.Millisecond, (*slept)[1])
}

func TestDispatchExhaustsRetriesIntoFailedResult(t *testing.T) {
	t.Parallel()

	adapter := &flakyAdapter{failures: 10}
	d, _ := newTestDispatcher(adapter, 2)

	results, err := d.Dispatch(context.Background(), testDecision(), testMarket())
	require.NoError(t, err, "instruction failure must not abort the dispatch")
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, venue.Failed, r.Status)
	assert.True(t, r.Filled.IsZero())
	assert.Contains(t, r.Reason, "venue busy")
	assert.Equal(t, 3, adapter.calls, "initial attempt plus two retries")
}

func TestDispatchPermanentErrorFailsFast(t *testing.T) {
	t.Parallel()

	adapter := &brokenAdapter{}
	d, slept := newTestDispatcher(adapter, 5)

	results, err := d.Dispatch(context.Background(), testDecision(), testMarket())
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, venue.Failed, results[0].Status)
	assert.Equal(t, 1, adapter.calls, "permanent errors must not be retried")
	assert.Empty(t, *slept)
}

func TestDispatchUnknownVenueIsConfigurationError(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(&flakyAdapter{}, 0)

	dd := testDecision()
	dd.Actions[0].Venue = "kraken"

	_, err := d.Dispatch(context.Background(), dd, testMarket())
	require.ErrorIs(t, err, ErrNoAdapter)
}

func TestDispatchMissingQuoteAbortsTimestamp(t *testing.T) {
	t.Parallel()

	adapter := &flakyAdapter{}
	d, _ := newTestDispatcher(adapter, 0)

	// The decision targets binance/BTC-PERP but the snapshot has no quote
	// for it. The action must never reach the adapter with a zero price.
	empty := market.NewSnapshot(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), nil)

	results, err := d.Dispatch(context.Background(), testDecision(), empty)
	require.ErrorIs(t, err, market.ErrNoData)
	assert.Empty(t, results)
	assert.Zero(t, adapter.calls)
}

func TestDispatchInstructionIDsAreSequential(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(&flakyAdapter{}, 0)

	dd := testDecision()
	dd.Actions = append(dd.Actions, strategy.Action{
		Venue: "binance", Asset: "BTC-PERP", Kind: venue.Margin, Delta: dd.Actions[0].Delta.Neg(),
	})

	results, err := d.Dispatch(context.Background(), dd, testMarket())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ins-000001", results[0].InstructionID)
	assert.Equal(t, "ins-000002", results[1].InstructionID)
}

func TestDispatchHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, _ := newTestDispatcher(&flakyAdapter{}, 0)
	_, err := d.Dispatch(ctx, testDecision(), testMarket())
	require.ErrorIs(t, err, context.Canceled)
}

func TestSimAdapterDeterministicFills(t *testing.T) {
	t.Parallel()

	a := NewSimAdapter(venue.CEX, dec("10"), dec("5")) // 10bps slip, 5bps fee

	ins := venue.Instruction{
		ID:    "ins-000001",
		Venue: "binance",
		Asset: "BTC",
		Kind:  venue.Spot,
		Delta: dec("1"),
		Price: dec("60000"),
	}

	r1, err := a.Submit(context.Background(), ins)
	require.NoError(t, err)
	r2, err := a.Submit(context.Background(), ins)
	require.NoError(t, err)

	// Buy pays up: 60000 * 1.001 = 60060.
	assert.True(t, r1.Price.Equal(dec("60060")), "price %s", r1.Price)
	// Fee: 60060 * 0.0005 = 30.03.
	assert.True(t, r1.Fee.Equal(dec("30.03")), "fee %s", r1.Fee)
	assert.True(t, r1.Price.Equal(r2.Price))
	assert.True(t, r1.Fee.Equal(r2.Fee))

	// Sell receives less.
	ins.Delta = dec("-1")
	r3, err := a.Submit(context.Background(), ins)
	require.NoError(t, err)
	assert.True(t, r3.Price.Equal(dec("59940")), "price %s", r3.Price)
	assert.True(t, r3.Filled.Equal(dec("-1")))
}
