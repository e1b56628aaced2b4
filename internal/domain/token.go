package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Token is an ERC20 referenced as collateral, reward or Uniswap reserve.
type Token struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Symbol      string              `json:"symbol"`
	Scale       *big.Int            `json:"scale"`
	EthPerToken decimal.NullDecimal `json:"ethPerToken"`
	PriceUSD    decimal.NullDecimal `json:"priceUSD"`
	Pairs       []string            `json:"pairs"`
}

func (t *Token) EntityKind() EntityKind { return KindToken }
func (t *Token) EntityID() string       { return t.ID }

// Global is the singleton aggregate with id "".
type Global struct {
	ID                  string              `json:"id"`
	USDPerEth           decimal.NullDecimal `json:"usdPerEth"`
	USDVolume           decimal.Decimal     `json:"usdVolume"`
	NumConditions       int                 `json:"numConditions"`
	NumOpenConditions   int                 `json:"numOpenConditions"`
	NumClosedConditions int                 `json:"numClosedConditions"`
}

func (g *Global) EntityKind() EntityKind { return KindGlobal }
func (g *Global) EntityID() string       { return g.ID }

// UniswapPair mirrors the reserves of a Uniswap V2 pair.
type UniswapPair struct {
	ID       string   `json:"id"`
	Token0   string   `json:"token0"`
	Token1   string   `json:"token1"`
	Reserve0 *big.Int `json:"reserve0"`
	Reserve1 *big.Int `json:"reserve1"`
}

func (p *UniswapPair) EntityKind() EntityKind { return KindUniswapPair }
func (p *UniswapPair) EntityID() string       { return p.ID }
