package position

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mwfarley/yieldsim/finmath"
	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/venue"
)

// ErrStaleTimestamp is returned when Ingest is called with a timestamp
// that is not strictly greater than the previous snapshot's.
var ErrStaleTimestamp = errors.New("position: stale timestamp")

// Tracker owns the balance ledger for one run. It is not safe for
// concurrent use; the orchestrator is its only caller.
type Tracker struct {
	initial map[Key]decimal.Decimal
	history []Snapshot
}

// NewTracker seeds the ledger with the run's initial balances. The first
// Ingest turns them into the first snapshot.
func NewTracker(initial map[Key]decimal.Decimal) *Tracker {
	cp := make(map[Key]decimal.Decimal, len(initial))
	for k, q := range initial {
		cp[k] = q
	}
	return &Tracker{initial: cp}
}

// Ingest advances the ledger to ts: it accrues interest on the prior
// balances for the elapsed time, applies the fills from the previous
// timestamp's execution results, and appends the resulting snapshot.
//
// ts must be strictly greater than the previous snapshot's timestamp.
func (t *Tracker) Ingest(results []venue.Result, md market.Snapshot, ts time.Time) (Snapshot, error) {
	prev, havePrev := t.Last()
	if havePrev && !ts.After(prev.Time()) {
		return Snapshot{}, fmt.Errorf("ingest at %s, last snapshot at %s: %w",
			ts.Format(time.RFC3339), prev.Time().Format(time.RFC3339), ErrStaleTimestamp)
	}

	next := make(map[Key]decimal.Decimal)
	if havePrev {
		elapsed := ts.Sub(prev.Time())
		for _, k := range prev.Keys() {
			next[k] = accrue(k, prev.Balance(k), md, elapsed)
		}
	} else {
		for k, q := range t.initial {
			next[k] = q
		}
	}

	for _, r := range results {
		if r.Filled.IsZero() {
			continue
		}
		k := Key{Venue: r.Venue, Asset: r.Asset, Kind: r.Kind}
		next[k] = next[k].Add(r.Filled)
	}

	snap := NewSnapshot(ts, next)
	t.history = append(t.history, snap)
	return snap, nil
}

// accrue grows a balance by the rate the venue pays or charges on its
// kind: borrow APR on debt, supply APR on collateral, staking APR on spot.
// Perp margin balances are position sizes and do not accrue. Balances
// without a quote at this timestamp are carried unchanged.
func accrue(k Key, qty decimal.Decimal, md market.Snapshot, elapsed time.Duration) decimal.Decimal {
	q, err := md.Quote(k.Venue, k.Asset)
	if err != nil {
		return qty
	}

	var apr decimal.Decimal
	switch k.Kind {
	case venue.Debt:
		apr = q.BorrowAPR
	case venue.Collateral:
		apr = q.SupplyAPR
	case venue.Spot:
		apr = q.StakingAPR
	default:
		return qty
	}

	return qty.Mul(finmath.AccrualFactor(apr, elapsed))
}

// Last returns the most recent snapshot, if any.
func (t *Tracker) Last() (Snapshot, bool) {
	if len(t.history) == 0 {
		return Snapshot{}, false
	}
	return t.history[len(t.history)-1], true
}

// History returns the ordered snapshot ledger. The slice is a copy and can
// be iterated any number of times; snapshots themselves are immutable.
func (t *Tracker) History() []Snapshot {
	out := make([]Snapshot, len(t.history))
	copy(out, t.history)
	return out
}
