package dayvolume

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestJoinDayAndVolume(t *testing.T) {
	got := JoinDayAndVolume(big.NewInt(2), big.NewInt(5))
	want := new(big.Int).Lsh(big.NewInt(2), 256)
	want.Add(want, big.NewInt(5))
	assert.Equal(t, 0, got.Cmp(want))

	day, vol := SplitDayAndVolume(got)
	assert.Equal(t, int64(2), day.Int64())
	assert.Equal(t, int64(5), vol.Int64())
}

func TestJoinDayAndScaledVolume(t *testing.T) {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	vol := new(big.Int).Mul(big.NewInt(3), scale)
	got := JoinDayAndScaledVolume(big.NewInt(0), vol, scale)
	assert.Equal(t, int64(3_000_000), got.Int64())

	day1 := JoinDayAndScaledVolume(big.NewInt(1), big.NewInt(0), scale)
	want := new(big.Int).Mul(TwoPow256, big.NewInt(Granularity))
	assert.Equal(t, 0, day1.Cmp(want))
}

func TestJoinDayAndUSDVolumeFloors(t *testing.T) {
	got := JoinDayAndUSDVolume(big.NewInt(0), decimal.RequireFromString("12.3456789"))
	assert.Equal(t, int64(12_345_678), got.Int64())
}

func TestMaxVolumeStaysBelowNextDay(t *testing.T) {
	maxUint256 := new(big.Int).Sub(TwoPow256, big.NewInt(1))
	today := JoinDayAndVolume(big.NewInt(7), maxUint256)
	tomorrow := JoinDayAndVolume(big.NewInt(8), big.NewInt(0))
	require.Equal(t, -1, today.Cmp(tomorrow))
}

func TestKeysOrderByDayThenVolume(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d1 := rapid.Int64Range(0, 1<<20).Draw(t, "d1")
		d2 := rapid.Int64Range(0, 1<<20).Draw(t, "d2")
		v1 := new(big.Int).SetUint64(rapid.Uint64().Draw(t, "v1"))
		v2 := new(big.Int).SetUint64(rapid.Uint64().Draw(t, "v2"))

		k1 := JoinDayAndVolume(big.NewInt(d1), v1)
		k2 := JoinDayAndVolume(big.NewInt(d2), v2)

		want := 0
		switch {
		case d1 < d2:
			want = -1
		case d1 > d2:
			want = 1
		default:
			want = v1.Cmp(v2)
		}
		if got := k1.Cmp(k2); got != want {
			t.Fatalf("cmp(%d/%s, %d/%s) = %d, want %d", d1, v1, d2, v2, got, want)
		}
	})
}
