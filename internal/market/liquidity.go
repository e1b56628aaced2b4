// Package market holds the pure state transitions of a fixed product market
// maker aggregate: liquidity and price recomputation and the rolling volume
// window. Nothing here touches the store.
package market

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/fixedpoint"
)

// SetLiquidity replaces the reserves of m and recomputes the liquidity
// parameter, marginal prices and liquidity measure. Prices and the measure
// are null while any reserve is zero.
func SetLiquidity(m *domain.Market, amounts []*big.Int, collateralScale *big.Int, collateralUSDPrice decimal.Decimal) error {
	n := len(amounts)
	lp, err := fixedpoint.NthRoot(fixedpoint.Product(amounts), n)
	if err != nil {
		return fmt.Errorf("%w: market %s liquidity parameter: %w", domain.ErrInvariant, m.ID, err)
	}

	weights := make([]*big.Int, n)
	sum := new(big.Int)
	allNonzero := true
	for i := range amounts {
		w := big.NewInt(1)
		for j := range amounts {
			if i != j {
				w.Mul(w, amounts[j])
			}
		}
		weights[i] = w
		sum.Add(sum, w)
		allNonzero = allNonzero && amounts[i].Sign() != 0
	}

	m.OutcomeTokenAmounts = fixedpoint.CloneAll(amounts)
	m.LiquidityParameter = lp
	m.ScaledLiquidityParameter = fixedpoint.Scale(lp, collateralScale)
	m.USDLiquidityParameter = fixedpoint.MulRound(m.ScaledLiquidityParameter, collateralUSDPrice)

	if !allNonzero || sum.Sign() == 0 {
		m.OutcomeTokenMarginalPrices = nil
		m.LiquidityMeasure = nil
		m.ScaledLiquidityMeasure = decimal.NullDecimal{}
		m.USDLiquidityMeasure = decimal.NullDecimal{}
		return nil
	}

	prices := make([]decimal.Decimal, n)
	for i, w := range weights {
		prices[i] = fixedpoint.Ratio(w, sum)
	}
	m.OutcomeTokenMarginalPrices = prices

	measure := big.NewInt(int64(n))
	measure.Mul(measure, amounts[0])
	measure.Mul(measure, weights[0])
	measure.Quo(measure, sum)
	m.LiquidityMeasure = measure

	scaled := fixedpoint.Scale(measure, collateralScale)
	m.ScaledLiquidityMeasure = decimal.NewNullDecimal(scaled)
	m.USDLiquidityMeasure = decimal.NewNullDecimal(fixedpoint.MulRound(scaled, collateralUSDPrice))
	return nil
}

// ApplyDeltas returns old[i] + sign*delta[i] for every outcome. The slices
// must have equal length.
func ApplyDeltas(old, delta []*big.Int, sign int) ([]*big.Int, error) {
	if len(old) != len(delta) {
		return nil, fmt.Errorf("%w: %d reserves, %d deltas", domain.ErrInvariant, len(old), len(delta))
	}
	out := make([]*big.Int, len(old))
	for i := range old {
		out[i] = new(big.Int).Set(old[i])
		if sign < 0 {
			out[i].Sub(out[i], delta[i])
		} else {
			out[i].Add(out[i], delta[i])
		}
	}
	return out, nil
}

// BuyReserves adds the net investment to every outcome and removes the bought
// tokens from the purchased outcome.
func BuyReserves(old []*big.Int, outcome int, netInvestment, bought *big.Int) ([]*big.Int, error) {
	if outcome < 0 || outcome >= len(old) {
		return nil, fmt.Errorf("%w: outcome index %d of %d", domain.ErrInvariant, outcome, len(old))
	}
	out := make([]*big.Int, len(old))
	for i := range old {
		out[i] = new(big.Int).Add(old[i], netInvestment)
		if i == outcome {
			out[i].Sub(out[i], bought)
		}
	}
	return out, nil
}

// SellReserves removes the gross return from every outcome and adds the sold
// tokens back to the sold outcome.
func SellReserves(old []*big.Int, outcome int, grossReturn, sold *big.Int) ([]*big.Int, error) {
	if outcome < 0 || outcome >= len(old) {
		return nil, fmt.Errorf("%w: outcome index %d of %d", domain.ErrInvariant, outcome, len(old))
	}
	out := make([]*big.Int, len(old))
	for i := range old {
		out[i] = new(big.Int).Sub(old[i], grossReturn)
		if i == outcome {
			out[i].Add(out[i], sold)
		}
	}
	return out, nil
}
