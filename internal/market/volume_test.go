package market

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alanyoungcy/omenindexer/internal/dayvolume"
	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// 2020-09-13T12:26:40Z, hour of day 12.
const created int64 = 1_600_000_000

func newMarket(t testing.TB) *domain.Market {
	t.Helper()
	m := &domain.Market{ID: "0xm"}
	require.NoError(t, InitVolume(m, created, big.NewInt(1)))
	return m
}

func trade(t testing.TB, m *domain.Market, amount int64, ts int64) {
	t.Helper()
	require.NoError(t, IncreaseVolume(m, big.NewInt(amount), decimal.NewFromInt(amount), ts, big.NewInt(1)))
}

func TestInitVolume(t *testing.T) {
	m := newMarket(t)
	hour := created / 3600
	assert.Equal(t, hour, m.LastActiveHour)
	assert.Equal(t, hour/24, m.LastActiveDay)
	assert.Len(t, m.CollateralVolumeBeforeLastActiveDayByHour, 24)
	assert.Len(t, m.USDVolumeBeforeLastActiveDayByHour, 24)
	assert.Len(t, m.Sort24HourVolume, 24)
	assert.Equal(t, int64(0), m.CollateralVolume.Int64())

	day, vol := dayvolume.SplitDayAndVolume(m.LastActiveDayAndRunningDailyVolume)
	assert.Equal(t, hour/24, day.Int64())
	assert.Equal(t, int64(0), vol.Int64())
}

func TestIncreaseVolumeSameHour(t *testing.T) {
	m := newMarket(t)
	trade(t, m, 5, created+10)
	trade(t, m, 7, created+20)

	assert.Equal(t, int64(12), m.CollateralVolume.Int64())
	assert.Equal(t, int64(12), m.RunningDailyVolume.Int64())
	assert.True(t, m.USDVolume.Equal(decimal.NewFromInt(12)))
	assert.True(t, m.ScaledCollateralVolume.Equal(decimal.NewFromInt(12)))
	for _, v := range m.CollateralVolumeBeforeLastActiveDayByHour {
		assert.Equal(t, int64(0), v.Int64())
	}
}

func TestIncreaseVolumeRollsOffAfterADay(t *testing.T) {
	m := newMarket(t)
	trade(t, m, 5, created+3600)
	trade(t, m, 3, created+2*3600)

	// 23 hours after the first trade it is still inside the window.
	trade(t, m, 1, created+24*3600)
	assert.Equal(t, int64(9), m.RunningDailyVolume.Int64())

	// One hour later the first trade's hour has fallen out.
	trade(t, m, 1, created+25*3600)
	assert.Equal(t, int64(5), m.RunningDailyVolume.Int64())
	assert.Equal(t, int64(10), m.CollateralVolume.Int64())
}

func TestIncreaseVolumeFlattensAfterLongGap(t *testing.T) {
	m := newMarket(t)
	trade(t, m, 5, created+3600)
	trade(t, m, 3, created+2*3600)

	trade(t, m, 2, created+32*3600)

	for i, v := range m.CollateralVolumeBeforeLastActiveDayByHour {
		assert.Equalf(t, int64(8), v.Int64(), "slot %d", i)
		assert.Truef(t, m.USDVolumeBeforeLastActiveDayByHour[i].Equal(decimal.NewFromInt(8)), "usd slot %d", i)
	}
	assert.Equal(t, int64(10), m.CollateralVolume.Int64())
	assert.Equal(t, int64(2), m.RunningDailyVolume.Int64())
	assert.True(t, m.USDRunningDailyVolume.Equal(decimal.NewFromInt(2)))
}

func TestIncreaseVolumeDropsLastActiveHourAfterADay(t *testing.T) {
	m := newMarket(t)
	trade(t, m, 10, created+3600)
	trade(t, m, 1, created+3*3600)

	// Same hour of day as the first trade, one day later: only the hours
	// after it remain in the window.
	trade(t, m, 1, created+25*3600)
	assert.Equal(t, int64(2), m.RunningDailyVolume.Int64())

	// The slot for the quiet hour in between holds the volume at its start.
	quiet := (created/3600 + 2) % 24
	assert.Equal(t, int64(10), m.CollateralVolumeBeforeLastActiveDayByHour[quiet].Int64())
}

func TestIncreaseVolumeRejectsEarlierHour(t *testing.T) {
	m := newMarket(t)
	trade(t, m, 5, created+2*3600)
	before, err := json.Marshal(m)
	require.NoError(t, err)

	err = IncreaseVolume(m, big.NewInt(1), decimal.NewFromInt(1), created+3600, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInvariant)

	after, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestIncreaseVolumeRejectsBadRing(t *testing.T) {
	m := newMarket(t)
	m.CollateralVolumeBeforeLastActiveDayByHour = m.CollateralVolumeBeforeLastActiveDayByHour[:23]
	err := IncreaseVolume(m, big.NewInt(1), decimal.Zero, created, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInvariant)
	assert.Equal(t, int64(0), m.CollateralVolume.Int64())

	err = IncreaseVolume(newMarket(t), big.NewInt(1), decimal.Zero, -1, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInvariant)
}

func TestSortKeysStepBackAtCurrentHour(t *testing.T) {
	m := newMarket(t)
	ts := created + 3600
	trade(t, m, 4, ts)

	hour := ts / 3600
	day, hid := hour/24, hour%24
	for k, key := range m.Sort24HourVolume {
		gotDay := new(big.Int).Quo(key, new(big.Int).Mul(dayvolume.TwoPow256, big.NewInt(dayvolume.Granularity)))
		want := day
		if int64(k) >= hid {
			want = day - 1
		}
		assert.Equalf(t, want, gotDay.Int64(), "key %d", k)
	}

	// The key read one hour before the current hour of day only counts the
	// current hour.
	prev := (hid + 23) % 24
	want := dayvolume.JoinDayAndUSDVolume(big.NewInt(day), decimal.NewFromInt(4))
	if prev >= hid {
		want = dayvolume.JoinDayAndUSDVolume(big.NewInt(day-1), decimal.NewFromInt(4))
	}
	assert.Equal(t, 0, m.Sort24HourVolume[prev].Cmp(want))
}

// windowModel recomputes the rolling volume from the full trade history:
// the sum of every trade in the current hour and the 23 hours before it.
type windowModel struct {
	trades []struct{ hour, amount int64 }
}

func (w *windowModel) add(hour, amount int64) int64 {
	w.trades = append(w.trades, struct{ hour, amount int64 }{hour, amount})

	var sum int64
	for _, tr := range w.trades {
		if tr.hour > hour-24 {
			sum += tr.amount
		}
	}
	return sum
}

func TestRunningDailyVolumeMatchesHistory(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := &domain.Market{ID: "0xm"}
		if err := InitVolume(m, created, big.NewInt(1)); err != nil {
			t.Fatalf("init: %v", err)
		}
		model := &windowModel{}

		ts := created
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			ts += rapid.Int64Range(0, 40*3600).Draw(t, "gap")
			amount := rapid.Int64Range(0, 1_000_000).Draw(t, "amount")
			prev := new(big.Int).Set(m.CollateralVolume)

			if err := IncreaseVolume(m, big.NewInt(amount), decimal.NewFromInt(amount), ts, big.NewInt(1)); err != nil {
				t.Fatalf("increase volume: %v", err)
			}
			want := model.add(ts/3600, amount)

			if m.CollateralVolume.Cmp(prev) < 0 {
				t.Fatalf("collateral volume decreased from %s to %s", prev, m.CollateralVolume)
			}
			if m.RunningDailyVolume.Int64() != want {
				t.Fatalf("step %d: running daily volume %s, want %d", i, m.RunningDailyVolume, want)
			}
			if !m.USDRunningDailyVolume.Equal(decimal.NewFromInt(want)) {
				t.Fatalf("step %d: usd running daily volume %s, want %d", i, m.USDRunningDailyVolume, want)
			}
		}
	})
}
