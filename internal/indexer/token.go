package indexer

import (
	"errors"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/fixedpoint"
)

const (
	defaultTokenName   = "token"
	defaultTokenSymbol = "tkn"
	maxRewardDecimals  = 18
	zeroAddress        = "0x0000000000000000000000000000000000000000"
)

// requireToken returns the token, creating it on first reference. A failed
// decimals call gives scale 1. Reward tokens reporting more than 18
// decimals also get scale 1.
func (d *Dispatcher) requireToken(s *Session, addr string, reward bool) (*domain.Token, error) {
	addr = strings.ToLower(addr)
	t, ok, err := Load[domain.Token](s, addr)
	if err != nil || ok {
		return t, err
	}

	t = &domain.Token{
		ID:     addr,
		Name:   defaultTokenName,
		Symbol: defaultTokenSymbol,
		Scale:  big.NewInt(1),
		Pairs:  []string{},
	}
	block := s.event.BlockNumber
	decimals, err := d.reader.Decimals(s.ctx, addr, block)
	switch {
	case errors.Is(err, domain.ErrReverted):
		d.logger.Warn("decimals call failed, using scale 1",
			slog.String("token", addr), slog.String("error", err.Error()))
	case err != nil:
		return nil, err
	case reward && decimals > maxRewardDecimals:
	default:
		t.Scale = fixedpoint.ScaleFromDecimals(decimals)
	}
	name, err := d.reader.Name(s.ctx, addr, block)
	if err != nil && !errors.Is(err, domain.ErrReverted) {
		return nil, err
	}
	if name != "" {
		t.Name = name
	}
	symbol, err := d.reader.Symbol(s.ctx, addr, block)
	if err != nil && !errors.Is(err, domain.ErrReverted) {
		return nil, err
	}
	if symbol != "" {
		t.Symbol = symbol
	}

	if d.cfg.isStablecoin(addr) {
		t.PriceUSD = decimal.NewNullDecimal(decimal.NewFromInt(1))
	}
	if addr == d.cfg.WETH {
		t.EthPerToken = decimal.NewNullDecimal(decimal.NewFromInt(1))
	}
	s.Save(t)
	return t, nil
}

// collateralUSDPrice is the USD value of one whole collateral token, or zero
// when no price is known. Zero means no contribution to USD volume; it is
// never stored as the token's price.
func (d *Dispatcher) collateralUSDPrice(s *Session, t *domain.Token) (decimal.Decimal, error) {
	if d.cfg.isStablecoin(t.ID) && t.PriceUSD.Valid {
		return t.PriceUSD.Decimal, nil
	}
	g, err := s.Global()
	if err != nil {
		return decimal.Zero, err
	}
	if t.EthPerToken.Valid && g.USDPerEth.Valid {
		return fixedpoint.MulRound(t.EthPerToken.Decimal, g.USDPerEth.Decimal), nil
	}
	return decimal.Zero, nil
}

// ethPerToken prices a token in WETH from one pair's reserves. The result is
// null when either reserve is zero.
func ethPerToken(tokenReserve, wethReserve, tokenScale, wethScale *big.Int) decimal.NullDecimal {
	if tokenReserve.Sign() <= 0 || wethReserve.Sign() <= 0 {
		return decimal.NullDecimal{}
	}
	num := new(big.Int).Mul(wethReserve, tokenScale)
	den := new(big.Int).Mul(tokenReserve, wethScale)
	return decimal.NewNullDecimal(fixedpoint.Ratio(num, den))
}

func (d *Dispatcher) handlePairCreated(s *Session, ev domain.Event) error {
	p, err := payload[domain.PairCreated](ev)
	if err != nil {
		return err
	}
	t0, err := d.requireToken(s, p.Token0, false)
	if err != nil {
		return err
	}
	t1, err := d.requireToken(s, p.Token1, false)
	if err != nil {
		return err
	}

	pairID := strings.ToLower(p.Pair)
	s.Save(&domain.UniswapPair{
		ID:       pairID,
		Token0:   t0.ID,
		Token1:   t1.ID,
		Reserve0: new(big.Int),
		Reserve1: new(big.Int),
	})
	t0.Pairs = appendUnique(t0.Pairs, pairID)
	s.Save(t0)
	t1.Pairs = appendUnique(t1.Pairs, pairID)
	s.Save(t1)
	return nil
}

// handleSync stores the new reserves and, for WETH pairs, reprices the other
// token or, for stablecoin pairs, the ETH/USD rate.
func (d *Dispatcher) handleSync(s *Session, ev domain.Event) error {
	p, err := payload[domain.Sync](ev)
	if err != nil {
		return err
	}
	pair, ok, err := Load[domain.UniswapPair](s, ev.Address)
	if err != nil {
		return err
	}
	if !ok {
		return skip(slog.LevelError, "could not find uniswap pair", slog.String("pair", ev.Address))
	}
	pair.Reserve0 = fixedpoint.Clone(p.Reserve0)
	pair.Reserve1 = fixedpoint.Clone(p.Reserve1)
	s.Save(pair)

	var other string
	var otherReserve, wethReserve *big.Int
	switch d.cfg.WETH {
	case pair.Token0:
		other, otherReserve, wethReserve = pair.Token1, pair.Reserve1, pair.Reserve0
	case pair.Token1:
		other, otherReserve, wethReserve = pair.Token0, pair.Reserve0, pair.Reserve1
	default:
		return nil
	}

	if d.cfg.isStablecoin(other) {
		return d.refreshUSDPerEth(s)
	}

	weth, err := d.requireToken(s, d.cfg.WETH, false)
	if err != nil {
		return err
	}
	token, err := d.requireToken(s, other, false)
	if err != nil {
		return err
	}
	token.EthPerToken = ethPerToken(otherReserve, wethReserve, token.Scale, weth.Scale)
	g, err := s.Global()
	if err != nil {
		return err
	}
	if token.EthPerToken.Valid && g.USDPerEth.Valid {
		token.PriceUSD = decimal.NewNullDecimal(fixedpoint.MulRound(token.EthPerToken.Decimal, g.USDPerEth.Decimal))
	} else {
		token.PriceUSD = decimal.NullDecimal{}
	}
	s.Save(token)
	return nil
}

// refreshUSDPerEth recomputes usdPerEth as the reserve-weighted average over
// every stablecoin/WETH pair the Uniswap factory knows. With no priced pair
// the rate becomes null.
func (d *Dispatcher) refreshUSDPerEth(s *Session) error {
	weth, err := d.requireToken(s, d.cfg.WETH, false)
	if err != nil {
		return err
	}
	stableSum, wethSum := decimal.Zero, decimal.Zero
	for _, stable := range d.cfg.Stablecoins {
		pairAddr, err := d.reader.GetPair(s.ctx, d.cfg.UniswapFactory, stable, d.cfg.WETH, s.event.BlockNumber)
		if errors.Is(err, domain.ErrReverted) {
			d.logger.Warn("uniswap pair lookup failed",
				slog.String("stablecoin", stable), slog.String("error", err.Error()))
			continue
		}
		if err != nil {
			return err
		}
		pairAddr = strings.ToLower(pairAddr)
		if pairAddr == "" || pairAddr == zeroAddress {
			continue
		}
		pair, ok, err := Load[domain.UniswapPair](s, pairAddr)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		stableReserve, wethReserve := pair.Reserve0, pair.Reserve1
		if pair.Token1 == stable {
			stableReserve, wethReserve = pair.Reserve1, pair.Reserve0
		}
		if stableReserve.Sign() <= 0 || wethReserve.Sign() <= 0 {
			continue
		}
		token, err := d.requireToken(s, stable, false)
		if err != nil {
			return err
		}
		stableSum = stableSum.Add(fixedpoint.Scale(stableReserve, token.Scale))
		wethSum = wethSum.Add(fixedpoint.Scale(wethReserve, weth.Scale))
	}

	g, err := s.Global()
	if err != nil {
		return err
	}
	if wethSum.IsPositive() {
		g.USDPerEth = decimal.NewNullDecimal(stableSum.DivRound(wethSum, fixedpoint.Precision))
	} else {
		g.USDPerEth = decimal.NullDecimal{}
	}
	s.Save(g)
	return nil
}

func appendUnique(xs []string, x string) []string {
	for _, v := range xs {
		if v == x {
			return xs
		}
	}
	return append(xs, x)
}
