// Package finmath implements the pure risk and yield math used across the
// pipeline: loan-to-value and health-factor ratios, liquidation outcomes
// and APR/APY conversions. All arithmetic is fixed-precision decimal; no
// function here touches a float.
package finmath

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrDivisionByZero is returned when a ratio's denominator (collateral
	// value, debt, notional, total weight) is zero.
	ErrDivisionByZero = errors.New("finmath: division by zero")

	// ErrBadTarget is returned when a derived target falls outside its
	// valid range. It signals a misconfigured safety margin and must be
	// treated as fatal, never clamped.
	ErrBadTarget = errors.New("finmath: target out of range")
)

// LoanToValue returns debt / (collateral * price).
func LoanToValue(debt, collateral, price decimal.Decimal) (decimal.Decimal, error) {
	value := collateral.Mul(price)
	if value.IsZero() {
		return decimal.Zero, fmt.Errorf("collateral value is zero: %w", ErrDivisionByZero)
	}
	return debt.Div(value), nil
}

// DynamicLTVTarget computes the operating LTV target:
//
//	maxLTV - maxExpectedPriceMove - safetyBuffer
//
// The result must land in [0, maxLTV). Anything else means the configured
// safety margin does not fit under the venue's maximum and is an error.
func DynamicLTVTarget(maxLTV, maxExpectedPriceMove, safetyBuffer decimal.Decimal) (decimal.Decimal, error) {
	target := maxLTV.Sub(maxExpectedPriceMove).Sub(safetyBuffer)
	if target.IsNegative() {
		return decimal.Zero, fmt.Errorf(
			"ltv target %s < 0 (max=%s move=%s buffer=%s): %w",
			target, maxLTV, maxExpectedPriceMove, safetyBuffer, ErrBadTarget)
	}
	if !target.LessThan(maxLTV) {
		return decimal.Zero, fmt.Errorf(
			"ltv target %s >= max ltv %s: %w", target, maxLTV, ErrBadTarget)
	}
	return target, nil
}

// HealthFactor returns collateralValue * liquidationThreshold / debtValue.
// A health factor below one denotes a liquidatable position.
func HealthFactor(collateralValue, liquidationThreshold, debtValue decimal.Decimal) (decimal.Decimal, error) {
	if debtValue.IsZero() {
		return decimal.Zero, fmt.Errorf("debt value is zero: %w", ErrDivisionByZero)
	}
	return collateralValue.Mul(liquidationThreshold).Div(debtValue), nil
}

// MarginRatio returns equity / notional for a margined venue position.
func MarginRatio(equity, notional decimal.Decimal) (decimal.Decimal, error) {
	if notional.IsZero() {
		return decimal.Zero, fmt.Errorf("notional is zero: %w", ErrDivisionByZero)
	}
	return equity.Div(notional), nil
}
