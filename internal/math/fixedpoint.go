package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	AmountConfig = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000} // token amounts, liquidity, credit
	PriceConfig  = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000} // prices, NAV per share
	ValueConfig  = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000} // pool value, share amounts
	RateConfig   = DecimalConfig{DecimalPrecision: 5, Scale: 100_000}       // fee/funding/deviation rates
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota // Floor
	RoundUp                       // Ceil, used where truncation must favor the pool
)

// DivideInt128 performs numerator / denominator with rounding.
// Operands are expected non-negative; RoundUp bumps any non-zero remainder.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()
	if roundingMode == RoundUp && remainder.Sign() != 0 {
		result++
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

// MulDiv computes a * b / denominator with the given rounding mode.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denominator, roundingMode)
	putInt128(num)
	return result
}

// CmpProducts compares a1*b1 against a2*b2 exactly, returning -1, 0, or 1.
// Used where a ratio comparison must not lose precision to division.
func CmpProducts(a1, b1, a2, b2 int64) int {
	lhs := MultiplyInt128(a1, b1)
	rhs := MultiplyInt128(a2, b2)
	result := lhs.Cmp(rhs)
	putInt128(lhs)
	putInt128(rhs)
	return result
}

// MulRate applies a RateConfig-scaled rate to an amount.
// Fee-bearing computations round toward the pool: callers pass RoundUp for
// fees charged to accounts and RoundDown for payouts.
func MulRate(amount, rate int64, roundingMode RoundingMode) int64 {
	return MulDiv(amount, rate, RateConfig.Scale, roundingMode)
}

// Value converts an asset amount to quote value at the given price.
// Floors: pool valuation never rounds in the depositor's favor.
func Value(amount, price int64) int64 {
	return MulDiv(amount, price, PriceConfig.Scale, RoundDown)
}

// AmountFromValue converts a quote value back to an asset amount at the
// given price, flooring so a withdrawal never exceeds proportional value.
func AmountFromValue(value, price int64) int64 {
	return MulDiv(value, PriceConfig.Scale, price, RoundDown)
}

// Utilization returns credit / (spotLiquidity + credit) at RateConfig scale,
// floored. Zero when the pool holds nothing or nothing is lent out.
func Utilization(spotLiquidity, credit int64) int64 {
	total := spotLiquidity + credit
	if total <= 0 || credit <= 0 {
		return 0
	}
	return MulDiv(credit, RateConfig.Scale, total, RoundDown)
}
