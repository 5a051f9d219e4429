package math

import (
	"errors"
	"math/big"
	"sync"
)

// ErrDivideByZero is returned by every division helper when the divisor is zero.
var ErrDivideByZero = errors.New("divide by zero")

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision uint8  // Number of decimal places
	Scale            uint64 // 10^DecimalPrecision
}

var (
	// Standard configs
	PriceConfig = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // Oracle prices
	USDConfig   = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // USD notionals
	RateConfig  = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // Funding/rollover rates
)

// Precision is the shared accumulator scale: rates and per-collateral /
// per-size accumulators are carried as integers scaled by 10^6.
const Precision uint64 = 1_000_000

// normalizer keeps four extra digits of headroom through the
// multiply-then-divide chains in MultiplyWithDecimals/DivideWithDecimals.
const normalizer uint64 = 10_000

// wideIntPool holds big.Ints for intermediate calculations so the hot path
// does not allocate.
var wideIntPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getWide() *big.Int {
	return wideIntPool.Get().(*big.Int)
}

func putWide(v *big.Int) {
	v.SetUint64(0) // Clear before returning to pool
	wideIntPool.Put(v)
}

// SafeMulDiv computes floor(x*y/z) with a wide intermediate so the x*y
// product cannot overflow. Fails with ErrDivideByZero when z == 0.
func SafeMulDiv(x, y, z uint64) (uint64, error) {
	if z == 0 {
		return 0, ErrDivideByZero
	}
	return MulDiv(x, y, z), nil
}

// MulDiv is SafeMulDiv for callers whose divisor is already known non-zero.
// Panics on a zero divisor — a zero constant divisor is a programming error,
// not a runtime condition.
func MulDiv(x, y, z uint64) uint64 {
	if z == 0 {
		panic("MulDiv: zero divisor")
	}

	product := getWide()
	tmp := getWide()

	product.SetUint64(x)
	tmp.SetUint64(y)
	product.Mul(product, tmp)

	tmp.SetUint64(z)
	product.Quo(product, tmp)

	result := product.Uint64()

	putWide(product)
	putWide(tmp)

	return result
}

// Pow10 returns 10^n as u64. n must be <= 19.
func Pow10(n uint8) uint64 {
	result := uint64(1)
	for i := uint8(0); i < n; i++ {
		result *= 10
	}
	return result
}

// ChangeDecimals rescales a fixed-point value from one decimal count to
// another. Reducing decimals truncates toward zero — this is a deliberate,
// lossy, one-directional rounding policy; it never rounds up.
func ChangeDecimals(num uint64, from, to uint8) uint64 {
	if from == to {
		return num
	}
	if to > from {
		return num * Pow10(to-from)
	}
	return num / Pow10(from-to)
}

// MultiplyWithDecimals multiplies two fixed-point values of (possibly)
// different scales and returns the product at resultDec decimals. The
// intermediate product rides the normalizer grid so the chain keeps four
// extra digits through the divides. Wide intermediates throughout.
func MultiplyWithDecimals(x uint64, xDec uint8, y uint64, yDec uint8, resultDec uint8) uint64 {
	product := getWide()
	tmp := getWide()

	// x * y * normalizer / (10^xDec * 10^yDec), then off the normalizer
	// grid onto resultDec.
	product.SetUint64(x)
	tmp.SetUint64(y)
	product.Mul(product, tmp)
	tmp.SetUint64(normalizer)
	product.Mul(product, tmp)
	tmp.SetUint64(Pow10(xDec))
	product.Quo(product, tmp)
	tmp.SetUint64(Pow10(yDec))
	product.Quo(product, tmp)

	tmp.SetUint64(Pow10(resultDec))
	product.Mul(product, tmp)
	tmp.SetUint64(normalizer)
	product.Quo(product, tmp)

	result := product.Uint64()

	putWide(product)
	putWide(tmp)

	return result
}

// DivideWithDecimals divides a fixed-point value by another and returns the
// quotient at resultDec decimals. Fails with ErrDivideByZero when y == 0.
// Property: DivideWithDecimals(MultiplyWithDecimals(a, b), b) ≈ a up to
// floor-rounding loss, not exact equality.
func DivideWithDecimals(x uint64, xDec uint8, y uint64, yDec uint8, resultDec uint8) (uint64, error) {
	if y == 0 {
		return 0, ErrDivideByZero
	}

	quotient := getWide()
	tmp := getWide()

	// x * 10^yDec * normalizer / (y * 10^xDec), then off the normalizer grid.
	quotient.SetUint64(x)
	tmp.SetUint64(Pow10(yDec))
	quotient.Mul(quotient, tmp)
	tmp.SetUint64(normalizer)
	quotient.Mul(quotient, tmp)
	tmp.SetUint64(y)
	quotient.Quo(quotient, tmp)
	tmp.SetUint64(Pow10(xDec))
	quotient.Quo(quotient, tmp)

	tmp.SetUint64(Pow10(resultDec))
	quotient.Mul(quotient, tmp)
	tmp.SetUint64(normalizer)
	quotient.Quo(quotient, tmp)

	result := quotient.Uint64()

	putWide(quotient)
	putWide(tmp)

	return result, nil
}

// Sqrt returns floor(sqrt(x)) via integer Newton iteration.
func Sqrt(x uint64) uint64 {
	if x < 2 {
		return x
	}

	guess := x
	next := (guess + x/guess) / 2
	for next < guess {
		guess = next
		next = (guess + x/guess) / 2
	}
	return guess
}

func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func Max(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
