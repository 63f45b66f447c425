// Package strategy implements the decision engine: one policy per strategy
// mode, all sharing the same input contract (risk metrics + exposure +
// market data) and emitting decisions in the same schema. The variant set
// is closed; selection happens once at run configuration and never changes
// for the run's lifetime.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mwfarley/yieldsim/exposure"
	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/risk"
	"github.com/mwfarley/yieldsim/venue"
)

// Mode names one strategy variant.
type Mode string

const (
	PureLending                 Mode = "pure-lending"
	BtcBasis                    Mode = "btc-basis"
	EthBasis                    Mode = "eth-basis"
	EthLeveraged                Mode = "eth-leveraged"
	EthStakingOnly              Mode = "eth-staking"
	UsdtMarketNeutral           Mode = "usdt-market-neutral"
	UsdtMarketNeutralNoLeverage Mode = "usdt-market-neutral-no-leverage"
)

// Modes lists every supported variant.
func Modes() []Mode {
	return []Mode{
		PureLending,
		BtcBasis,
		EthBasis,
		EthLeveraged,
		EthStakingOnly,
		UsdtMarketNeutral,
		UsdtMarketNeutralNoLeverage,
	}
}

// Action is one intended position change.
type Action struct {
	Venue     string
	Asset     string
	Kind      venue.Kind
	Delta     decimal.Decimal // signed quantity change
	Priority  int             // 0 = emergency, higher = later
	Rationale string          // e.g. "delta-drift", "ltv-drift", "margin-critical"
}

// Decision is the ordered action list for one timestamp. An empty action
// list is a valid decision (hold).
type Decision struct {
	Time    time.Time
	Mode    Mode
	Actions []Action
}

// Policy maps risk and exposure state into a decision. Implementations
// hold only their configuration; all per-timestamp state arrives through
// the arguments, never through component references.
type Policy interface {
	Mode() Mode
	Decide(m risk.Metrics, e exposure.Snapshot, md market.Snapshot, ts time.Time) (Decision, error)
}

// Params configures a policy. Not every field applies to every mode; the
// per-mode constructors validate what they need.
type Params struct {
	Venue      string // lending/staking venue
	HedgeVenue string // perp venue for hedged modes

	Asset       string // underlying (BTC, ETH, USDC, ...)
	StakedAsset string // LST held as collateral (stETH, ...)
	DebtAsset   string // borrowed asset for leveraged modes
	HedgeAsset  string // perp contract (BTC-PERP, ...)

	// Capital is the target reference-asset value of the primary leg.
	Capital decimal.Decimal

	// Dynamic LTV target inputs for leveraged modes.
	MaxLTV               decimal.Decimal
	MaxExpectedPriceMove decimal.Decimal
	SafetyBuffer         decimal.Decimal

	// Drift tolerances.
	DeltaDriftTolerance decimal.Decimal // |net|/gross fraction
	LTVDriftTolerance   decimal.Decimal // absolute LTV deviation
	AllocationTolerance decimal.Decimal // relative deviation from Capital

	// CriticalDeleverage is the fraction of exposure cut on a critical
	// flag (default one half).
	CriticalDeleverage decimal.Decimal

	// MinActionSize drops dust rebalances below this quantity.
	MinActionSize decimal.Decimal
}

func (p Params) withDefaults() Params {
	if p.CriticalDeleverage.IsZero() {
		p.CriticalDeleverage = decimal.RequireFromString("0.5")
	}
	return p
}

// ForMode builds the policy for a mode. The set is closed: unknown modes
// are configuration errors.
func ForMode(mode Mode, p Params) (Policy, error) {
	p = p.withDefaults()
	switch mode {
	case PureLending:
		return newLendingPolicy(PureLending, p)
	case EthStakingOnly:
		return newStakingPolicy(p)
	case BtcBasis:
		return newBasisPolicy(BtcBasis, p)
	case EthBasis:
		return newBasisPolicy(EthBasis, p)
	case EthLeveraged:
		return newLeveragedPolicy(p)
	case UsdtMarketNeutral:
		return newMarketNeutralPolicy(true, p)
	case UsdtMarketNeutralNoLeverage:
		return newMarketNeutralPolicy(false, p)
	default:
		return nil, fmt.Errorf("unknown strategy mode %q (supported: %v)", mode, Modes())
	}
}

// finish fixes the action order: emergencies first, then by venue/asset so
// identical inputs always serialize identically.
func finish(d Decision) Decision {
	sort.SliceStable(d.Actions, func(i, j int) bool {
		a, b := d.Actions[i], d.Actions[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Venue != b.Venue {
			return a.Venue < b.Venue
		}
		return a.Asset < b.Asset
	})
	return d
}
