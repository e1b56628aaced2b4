// Package dayvolume packs a day counter and a volume into one integer so that
// ranking by the integer ranks by day first and volume second.
package dayvolume

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Granularity is the fixed-point resolution of the scaled and USD keys.
const Granularity = 1_000_000

var (
	// TwoPow256 is the day multiplier. Any uint256 volume fits below it.
	TwoPow256   = new(big.Int).Lsh(big.NewInt(1), 256)
	granularity = big.NewInt(Granularity)
	granDec     = decimal.NewFromInt(Granularity)
)

// JoinDayAndVolume returns day*2^256 + volume.
func JoinDayAndVolume(day, volume *big.Int) *big.Int {
	k := new(big.Int).Mul(day, TwoPow256)
	return k.Add(k, volume)
}

// JoinDayAndScaledVolume returns day*2^256*1e6 + volume*1e6/scale.
func JoinDayAndScaledVolume(day, volume, scale *big.Int) *big.Int {
	k := new(big.Int).Mul(day, TwoPow256)
	k.Mul(k, granularity)
	v := new(big.Int).Mul(volume, granularity)
	if scale != nil && scale.Sign() != 0 {
		v.Quo(v, scale)
	}
	return k.Add(k, v)
}

// JoinDayAndUSDVolume returns day*2^256*1e6 + floor(usd*1e6).
func JoinDayAndUSDVolume(day *big.Int, usd decimal.Decimal) *big.Int {
	k := new(big.Int).Mul(day, TwoPow256)
	k.Mul(k, granularity)
	return k.Add(k, usd.Mul(granDec).Floor().BigInt())
}

// SplitDayAndVolume inverts JoinDayAndVolume for non-negative volumes.
func SplitDayAndVolume(key *big.Int) (day, volume *big.Int) {
	day, volume = new(big.Int), new(big.Int)
	day.DivMod(key, TwoPow256, volume)
	return day, volume
}
