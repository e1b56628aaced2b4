package fixedpoint

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept when an integer amount is
// projected onto a decimal.
const Precision int32 = 36

var ten = big.NewInt(10)

// ScaleFromDecimals returns 10^decimals.
func ScaleFromDecimals(decimals uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

// Scale divides amount by scale. A zero or nil scale is treated as 1.
func Scale(amount, scale *big.Int) decimal.Decimal {
	a := decimal.NewFromBigInt(amount, 0)
	if scale == nil || scale.Sign() == 0 {
		return a
	}
	return a.DivRound(decimal.NewFromBigInt(scale, 0), Precision)
}

// Ratio divides two integers as decimals.
func Ratio(num, den *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), Precision)
}

// Clone returns a copy of x, or zero for nil.
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// CloneAll deep-copies a slice of amounts.
func CloneAll(xs []*big.Int) []*big.Int {
	out := make([]*big.Int, len(xs))
	for i, x := range xs {
		out[i] = Clone(x)
	}
	return out
}

// MulRound multiplies two decimals and rounds to Precision fractional digits.
func MulRound(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Round(Precision)
}
