// Package fixedpoint holds the integer and decimal arithmetic shared by the
// market, token and volume reducers. Amounts are unbounded *big.Int values;
// human-facing projections are shopspring decimals.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidRoot is returned by NthRoot for a non-positive degree or a
// negative radicand.
var ErrInvalidRoot = errors.New("fixedpoint: invalid root")

// NthRoot runs Newton's iteration for the integer n-th root of x, starting
// from x and stopping at the first non-negative step. Division truncates toward
// zero, so the result can sit one or more above the floor root for small
// inputs (NthRoot(16, 4) == 3). Callers rely on this exact sequence; do not
// tighten the termination rule.
func NthRoot(x *big.Int, n int) (*big.Int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: degree %d", ErrInvalidRoot, n)
	}
	if x.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative radicand %s", ErrInvalidRoot, x)
	}
	if x.Sign() == 0 {
		return new(big.Int), nil
	}

	bn := big.NewInt(int64(n))
	exp := big.NewInt(int64(n - 1))
	root := new(big.Int).Set(x)
	pow := new(big.Int)
	delta := new(big.Int)
	for {
		pow.Exp(root, exp, nil)
		delta.Quo(x, pow)
		delta.Sub(delta, root)
		delta.Quo(delta, bn)
		root.Add(root, delta)
		if delta.Sign() >= 0 {
			return root, nil
		}
	}
}

// Product multiplies xs together. The empty product is 1.
func Product(xs []*big.Int) *big.Int {
	p := big.NewInt(1)
	for _, x := range xs {
		p.Mul(p, x)
	}
	return p
}
