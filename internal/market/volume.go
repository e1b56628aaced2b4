package market

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/omenindexer/internal/dayvolume"
	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/fixedpoint"
)

const (
	secondsPerHour = 3600
	hoursPerDay    = domain.HoursPerDay
)

// clock splits a block timestamp into hour, day and hour of day.
func clock(timestamp int64) (hour, day, hourInDay int64, err error) {
	if timestamp < 0 {
		return 0, 0, 0, fmt.Errorf("%w: negative timestamp %d", domain.ErrInvariant, timestamp)
	}
	hour = timestamp / secondsPerHour
	day = hour / hoursPerDay
	hourInDay = hour - day*hoursPerDay
	if hourInDay < 0 || hourInDay >= hoursPerDay {
		return 0, 0, 0, fmt.Errorf("%w: hour in day %d", domain.ErrInvariant, hourInDay)
	}
	return hour, day, hourInDay, nil
}

// InitVolume resets the volume state of a freshly created market and sets its
// watermarks to the creation hour.
func InitVolume(m *domain.Market, timestamp int64, collateralScale *big.Int) error {
	hour, day, hid, err := clock(timestamp)
	if err != nil {
		return err
	}
	ring := make([]*big.Int, hoursPerDay)
	usdRing := make([]decimal.Decimal, hoursPerDay)
	for i := range ring {
		ring[i] = new(big.Int)
		usdRing[i] = decimal.Zero
	}

	m.LastActiveHour = hour
	m.LastActiveDay = day
	m.CollateralVolumeBeforeLastActiveDayByHour = ring
	m.USDVolumeBeforeLastActiveDayByHour = usdRing
	m.CollateralVolume = new(big.Int)
	m.RunningDailyVolume = new(big.Int)
	m.USDVolume = decimal.Zero
	m.USDRunningDailyVolume = decimal.Zero
	m.ScaledCollateralVolume = decimal.Zero
	m.ScaledRunningDailyVolume = decimal.Zero
	m.LastActiveDayAndRunningDailyVolume = dayvolume.JoinDayAndVolume(big.NewInt(day), new(big.Int))
	m.LastActiveDayAndScaledRunningDailyVolume = dayvolume.JoinDayAndScaledVolume(big.NewInt(day), new(big.Int), collateralScale)
	m.Sort24HourVolume = sortKeys(day, hid, decimal.Zero, usdRing)
	return nil
}

// IncreaseVolume adds one trade to the lifetime and rolling 24 hour volumes.
//
// The rings hold, per hour of day, the cumulative volume at the start of the
// latest hour with that hour of day. Advancing the watermark writes the
// pre-trade cumulative volume into every slot from the one after the last
// active hour through the current one (all 24 after a gap of a day or more).
// The running daily volume is the cumulative volume minus the slot for the
// hour 23 hours back, so it covers the current hour and the 23 before it.
//
// On error m is left untouched.
func IncreaseVolume(m *domain.Market, amount *big.Int, usdAmount decimal.Decimal, timestamp int64, collateralScale *big.Int) error {
	hour, day, hid, err := clock(timestamp)
	if err != nil {
		return err
	}
	if len(m.CollateralVolumeBeforeLastActiveDayByHour) != hoursPerDay {
		return fmt.Errorf("%w: market %s collateral ring has %d slots",
			domain.ErrInvariant, m.ID, len(m.CollateralVolumeBeforeLastActiveDayByHour))
	}
	if len(m.USDVolumeBeforeLastActiveDayByHour) != hoursPerDay {
		return fmt.Errorf("%w: market %s usd ring has %d slots",
			domain.ErrInvariant, m.ID, len(m.USDVolumeBeforeLastActiveDayByHour))
	}

	ring := fixedpoint.CloneAll(m.CollateralVolumeBeforeLastActiveDayByHour)
	usdRing := append([]decimal.Decimal(nil), m.USDVolumeBeforeLastActiveDayByHour...)
	collateralVolume := fixedpoint.Clone(m.CollateralVolume)
	lastHour, lastDay := m.LastActiveHour, m.LastActiveDay

	if hour != lastHour {
		lastHid := lastHour % hoursPerDay
		if lastHid < 0 || lastHid >= hoursPerDay {
			return fmt.Errorf("%w: last active hour in day %d", domain.ErrInvariant, lastHid)
		}
		deltaHours := hour - lastHour
		if deltaHours <= 0 {
			return fmt.Errorf("%w: market %s hour %d not after last active hour %d",
				domain.ErrInvariant, m.ID, hour, lastHour)
		}

		// No trades fell between the watermark and now, so every boundary
		// crossed since then saw the pre-trade cumulative volume.
		for i := int64(1); i <= min(deltaHours, hoursPerDay); i++ {
			j := (lastHid + i) % hoursPerDay
			ring[j] = new(big.Int).Set(collateralVolume)
			usdRing[j] = m.USDVolume
		}
		lastHour, lastDay = hour, day
	}

	oldest := (hid + 1) % hoursPerDay
	collateralVolume.Add(collateralVolume, amount)
	running := new(big.Int).Sub(collateralVolume, ring[oldest])
	usdVolume := m.USDVolume.Add(usdAmount)
	usdRunning := usdVolume.Sub(usdRing[oldest])

	bigDay := big.NewInt(day)
	m.CollateralVolumeBeforeLastActiveDayByHour = ring
	m.USDVolumeBeforeLastActiveDayByHour = usdRing
	m.LastActiveHour = lastHour
	m.LastActiveDay = lastDay
	m.CollateralVolume = collateralVolume
	m.RunningDailyVolume = running
	m.LastActiveDayAndRunningDailyVolume = dayvolume.JoinDayAndVolume(bigDay, running)
	m.ScaledCollateralVolume = fixedpoint.Scale(collateralVolume, collateralScale)
	m.ScaledRunningDailyVolume = fixedpoint.Scale(running, collateralScale)
	m.LastActiveDayAndScaledRunningDailyVolume = dayvolume.JoinDayAndScaledVolume(bigDay, running, collateralScale)
	m.USDVolume = usdVolume
	m.USDRunningDailyVolume = usdRunning
	m.Sort24HourVolume = sortKeys(day, hid, usdVolume, usdRing)
	return nil
}

// sortKeys precomputes the ranking key for each hour of the day. Key k is the
// USD volume since the slot that falls out of the window at hour k, tagged
// with the day it stays valid for. The day steps back once k reaches the
// current hour.
func sortKeys(day, hid int64, usdVolume decimal.Decimal, usdRing []decimal.Decimal) []*big.Int {
	keys := make([]*big.Int, hoursPerDay)
	d := day
	for k := int64(0); k < hoursPerDay; k++ {
		if k == hid {
			d--
		}
		since := usdVolume.Sub(usdRing[(k+1)%hoursPerDay])
		keys[k] = dayvolume.JoinDayAndUSDVolume(big.NewInt(d), since)
	}
	return keys
}
