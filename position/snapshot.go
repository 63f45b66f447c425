// Package position maintains the authoritative per-venue, per-asset
// balance ledger. One immutable Snapshot is produced per timestamp;
// execution results are the only input that changes balances between
// timestamps (plus deterministic interest accrual).
package position

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mwfarley/yieldsim/venue"
)

// Key identifies one balance bucket.
type Key struct {
	Venue string
	Asset string
	Kind  venue.Kind
}

// Snapshot is the immutable balance state at a single timestamp.
type Snapshot struct {
	time     time.Time
	balances map[Key]decimal.Decimal
}

// NewSnapshot copies balances and drops zero entries so snapshots with the
// same economic state compare equal regardless of construction path.
func NewSnapshot(ts time.Time, balances map[Key]decimal.Decimal) Snapshot {
	cp := make(map[Key]decimal.Decimal, len(balances))
	for k, q := range balances {
		if q.IsZero() {
			continue
		}
		cp[k] = q
	}
	return Snapshot{time: ts, balances: cp}
}

func (s Snapshot) Time() time.Time { return s.time }

// Balance returns the signed quantity for a key; zero when absent.
func (s Snapshot) Balance(k Key) decimal.Decimal {
	return s.balances[k]
}

// Keys returns every non-zero balance key in a deterministic order
// (venue, asset, kind). Deterministic iteration is what keeps two
// identical runs producing identical ledgers.
func (s Snapshot) Keys() []Key {
	keys := make([]Key, 0, len(s.balances))
	for k := range s.balances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Venue != b.Venue {
			return a.Venue < b.Venue
		}
		if a.Asset != b.Asset {
			return a.Asset < b.Asset
		}
		return a.Kind < b.Kind
	})
	return keys
}

// Len returns the number of non-zero balances.
func (s Snapshot) Len() int { return len(s.balances) }

// Equal reports whether two snapshots carry the same timestamp and the
// same balances.
func (s Snapshot) Equal(o Snapshot) bool {
	if !s.time.Equal(o.time) || len(s.balances) != len(o.balances) {
		return false
	}
	for k, q := range s.balances {
		if !q.Equal(o.balances[k]) {
			return false
		}
	}
	return true
}
