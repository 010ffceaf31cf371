// Package wad implements the protocol's fixed-point arithmetic convention:
// every monetary quantity is an unsigned integer scaled by 1e18. All
// multiplication and division routed through this package round
// deterministically so that two honest nodes evaluating the same operation
// sequence compute byte-identical results.
package wad

import (
	"errors"
	"math/big"
)

// ErrDivByZero is returned by Div and MulDivDown when the divisor is zero.
var ErrDivByZero = errors.New("wad: division by zero")

// ErrOverflow marks a silent wrap, which the protocol treats as fatal, not
// recoverable (spec.md §4.1). The functions in this package compute on
// unbounded big.Int values, never wrap, and do not return it.
var ErrOverflow = errors.New("wad: overflow")

// One is the fixed-point scale, 1e18.
var One = big.NewInt(1_000_000_000_000_000_000)

var halfWad = new(big.Int).Rsh(One, 1)

// Zero returns a fresh zero-valued wad amount. Kept as a function (rather
// than a shared var) so callers never accidentally mutate a shared zero.
func Zero() *big.Int { return big.NewInt(0) }

// New constructs a wad amount from a plain integer (i.e. New(2) == 2.0).
func New(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), One)
}

// Mul computes a*b/1e18, rounding the exact half up, exactly mirroring
// spec.md's "banker-round-up on half" rule for wmul.
func Mul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return Zero()
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfWad)
	product.Quo(product, One)
	return product
}

// Div computes a*1e18/b, rounding the remainder's half up. Division by zero
// is a checked error, never a panic or silent zero.
func Div(a, b *big.Int) (*big.Int, error) {
	if b == nil || b.Sign() == 0 {
		return nil, ErrDivByZero
	}
	if a == nil {
		a = Zero()
	}
	numerator := new(big.Int).Mul(a, One)
	numerator.Add(numerator, halfUp(b))
	numerator.Quo(numerator, b)
	return numerator, nil
}

func halfUp(x *big.Int) *big.Int {
	if x.Sign() <= 0 {
		return Zero()
	}
	half := new(big.Int).Add(x, big.NewInt(1))
	half.Rsh(half, 1)
	return half
}

// Min returns the smaller of two wad amounts.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns the larger of two wad amounts.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi *big.Int) *big.Int {
	if x.Cmp(lo) < 0 {
		return new(big.Int).Set(lo)
	}
	if x.Cmp(hi) > 0 {
		return new(big.Int).Set(hi)
	}
	return new(big.Int).Set(x)
}

// DecayFactorForHalfLife returns the per-period decay constant k: the
// smallest k for which PowWad(k, periods) >= 0.5e18, found by integer
// bisection over [0, One]. One unit of k moves PowWad(k, periods) by many
// units, so the result generally lands slightly above 0.5e18 rather than on
// it (for 720 periods: 0.5e18 + 228).
// This never touches a floating-point type: each step compares two
// fixed-point PowWad results and halves the search interval, so the result
// is exactly reproducible across platforms for a given periods value.
func DecayFactorForHalfLife(periods uint64) *big.Int {
	if periods == 0 {
		return new(big.Int).Set(One)
	}
	half := new(big.Int).Quo(One, big.NewInt(2))
	lo := big.NewInt(0)
	hi := new(big.Int).Set(One)
	for i := 0; i < 128; i++ {
		mid := new(big.Int).Add(lo, hi)
		mid.Rsh(mid, 1)
		if PowWad(mid, periods).Cmp(half) < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

// MulDivDown computes a*b/c, rounding the remainder's half up, without
// assuming a and b are both wad-scaled values being combined via wmul (some
// formulas, e.g. the stability pool's collateral-gain formula, combine two
// independently-scaled quantities via a single multiply-then-divide rather
// than wad's usual multiply-then-rescale convention).
func MulDivDown(a, b, c *big.Int) (*big.Int, error) {
	if c == nil || c.Sign() == 0 {
		return nil, ErrDivByZero
	}
	numerator := new(big.Int).Mul(a, b)
	numerator.Add(numerator, halfUp(c))
	numerator.Quo(numerator, c)
	return numerator, nil
}

// NewFraction constructs a wad amount equal to num/den, e.g. NewFraction(3,
// 2) == 1.5e18. Intended for compile-time constants where den is known to
// be non-zero; callers needing checked division should use Div.
func NewFraction(num, den int64) *big.Int {
	v := new(big.Int).Mul(big.NewInt(num), One)
	return v.Quo(v, big.NewInt(den))
}

// PowWad raises the wad-scaled base to the integer exponent n using
// repeated squaring, per spec.md §4.1/§4.4: the base-rate decay must use
// no transcendental functions, and the result must be bit-identical across
// platforms. n is typically a count of elapsed minutes.
func PowWad(base *big.Int, n uint64) *big.Int {
	result := new(big.Int).Set(One)
	b := new(big.Int).Set(base)
	for n > 0 {
		if n&1 == 1 {
			result = Mul(result, b)
		}
		b = Mul(b, b)
		n >>= 1
	}
	return result
}
