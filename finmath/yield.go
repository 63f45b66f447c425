package finmath

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// yieldScale is the number of decimal places yield conversions are
	// rounded to, using banker's rounding. Chosen so APR<->APY round-trips
	// stay within 1e-9.
	yieldScale = 12

	// powPrecision is the internal precision used for fractional powers.
	powPrecision = 24
)

var (
	one           = decimal.NewFromInt(1)
	secondsInYear = decimal.NewFromInt(365 * 24 * 3600)
)

// APRToAPY converts a nominal annual rate compounded periodsPerYear times
// into an effective annual rate: (1 + apr/n)^n - 1.
func APRToAPY(apr decimal.Decimal, periodsPerYear int64) (decimal.Decimal, error) {
	if periodsPerYear <= 0 {
		return decimal.Zero, fmt.Errorf("periods per year %d: %w", periodsPerYear, ErrBadTarget)
	}
	n := decimal.NewFromInt(periodsPerYear)
	grown, err := one.Add(apr.Div(n)).PowWithPrecision(n, powPrecision)
	if err != nil {
		return decimal.Zero, fmt.Errorf("apr to apy: %w", err)
	}
	return grown.Sub(one).RoundBank(yieldScale), nil
}

// APYToAPR inverts APRToAPY: n * ((1 + apy)^(1/n) - 1).
func APYToAPR(apy decimal.Decimal, periodsPerYear int64) (decimal.Decimal, error) {
	if periodsPerYear <= 0 {
		return decimal.Zero, fmt.Errorf("periods per year %d: %w", periodsPerYear, ErrBadTarget)
	}
	n := decimal.NewFromInt(periodsPerYear)
	root, err := one.Add(apy).PowWithPrecision(one.Div(n), powPrecision)
	if err != nil {
		return decimal.Zero, fmt.Errorf("apy to apr: %w", err)
	}
	return root.Sub(one).Mul(n).RoundBank(yieldScale), nil
}

// AccrualFactor returns the simple-interest growth factor for holding a
// position at the given annual rate for elapsed wall time:
// 1 + apr * elapsed/year. Simple accrual per step keeps backtests
// deterministic regardless of step size; compounding emerges from applying
// the factor every timestamp.
func AccrualFactor(apr decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 || apr.IsZero() {
		return one
	}
	seconds := decimal.NewFromInt(int64(elapsed / time.Second))
	return one.Add(apr.Mul(seconds).Div(secondsInYear))
}

// RateComponent is one position's contribution to a blended rate.
type RateComponent struct {
	Value decimal.Decimal // position value in the reference asset
	Rate  decimal.Decimal // annual rate earned on that value
}

// BlendedRate returns the value-weighted average rate across positions,
// banker's-rounded to the yield scale.
func BlendedRate(components []RateComponent) (decimal.Decimal, error) {
	total := decimal.Zero
	weighted := decimal.Zero
	for _, c := range components {
		total = total.Add(c.Value)
		weighted = weighted.Add(c.Value.Mul(c.Rate))
	}
	if total.IsZero() {
		return decimal.Zero, fmt.Errorf("blended rate over zero total value: %w", ErrDivisionByZero)
	}
	return weighted.Div(total).RoundBank(yieldScale), nil
}
