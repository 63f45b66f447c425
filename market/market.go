// Package market provides point-in-time price, funding-rate and protocol
// rate lookups keyed by timestamp, venue and asset. A Snapshot exposes only
// data observed at its own timestamp, which is what keeps backtests free of
// look-ahead.
package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoData is returned when a quote or snapshot is requested for a
// timestamp/venue/asset the provider has no data for. Missing data for a
// required timestamp is a data-consistency failure and aborts the run.
var ErrNoData = errors.New("market: no data")

// Key identifies a quote stream.
type Key struct {
	Venue string
	Asset string
}

// Quote is one point-in-time observation for a (venue, asset) pair.
// Rates are annualized (APR); FundingRate is the perp funding rate for the
// current interval, positive when longs pay shorts.
type Quote struct {
	Price       decimal.Decimal
	FundingRate decimal.Decimal
	SupplyAPR   decimal.Decimal
	BorrowAPR   decimal.Decimal
	StakingAPR  decimal.Decimal
}

// Snapshot is the immutable market view for a single timestamp.
type Snapshot struct {
	time   time.Time
	quotes map[Key]Quote
}

// NewSnapshot copies quotes so callers cannot mutate the snapshot later.
func NewSnapshot(ts time.Time, quotes map[Key]Quote) Snapshot {
	cp := make(map[Key]Quote, len(quotes))
	for k, q := range quotes {
		cp[k] = q
	}
	return Snapshot{time: ts, quotes: cp}
}

func (s Snapshot) Time() time.Time { return s.time }

// Quote returns the observation for venue/asset at this snapshot's
// timestamp, or ErrNoData.
func (s Snapshot) Quote(venue, asset string) (Quote, error) {
	q, ok := s.quotes[Key{Venue: venue, Asset: asset}]
	if !ok {
		return Quote{}, fmt.Errorf("%s/%s at %s: %w", venue, asset, s.time.Format(time.RFC3339), ErrNoData)
	}
	return q, nil
}

// Provider hands the orchestrator its timestamp series and per-timestamp
// snapshots. Implementations must be deterministic and must never leak
// data from a later timestamp into an earlier snapshot.
type Provider interface {
	Timestamps() []time.Time
	At(ts time.Time) (Snapshot, error)
}
