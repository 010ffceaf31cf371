package wad

import (
	"math/big"
	"testing"
)

func TestMulRoundsHalfUp(t *testing.T) {
	// 1.000000000000000001 * 0.5 = 0.5000000000000000005: the trailing
	// half unit rounds up to 0.500000000000000001.
	a := new(big.Int).Add(One, big.NewInt(1))
	got := Mul(a, NewFraction(1, 2))
	want := new(big.Int).Add(NewFraction(1, 2), big.NewInt(1))
	if got.Cmp(want) != 0 {
		t.Fatalf("Mul rounding: got %s want %s", got, want)
	}
}

func TestDivByZero(t *testing.T) {
	if _, err := Div(New(1), Zero()); err != ErrDivByZero {
		t.Fatalf("expected ErrDivByZero, got %v", err)
	}
}

func TestDivRoundTrip(t *testing.T) {
	got, err := Div(New(6), New(3))
	if err != nil {
		t.Fatalf("Div: %v", err)
	}
	if got.Cmp(New(2)) != 0 {
		t.Fatalf("Div: got %s want 2.0", got)
	}
}

func TestPowWadHalfLife(t *testing.T) {
	// k chosen so k^720 == 0.5 (720 minutes == 12h half-life).
	k := mustBigInt("999037758833783000")
	got := PowWad(k, 720)
	half := new(big.Int).Quo(One, big.NewInt(2))
	diff := new(big.Int).Sub(got, half)
	diff.Abs(diff)
	// Allow a tiny rounding tolerance from the fixed-point approximation of k.
	tolerance := big.NewInt(1_000_000_000)
	if diff.Cmp(tolerance) > 0 {
		t.Fatalf("PowWad half-life: got %s want ~%s (diff %s)", got, half, diff)
	}
}

func TestPowWadZeroExponent(t *testing.T) {
	got := PowWad(New(2), 0)
	if got.Cmp(One) != 0 {
		t.Fatalf("PowWad^0: got %s want 1.0", got)
	}
}

func TestDecayFactorForHalfLifeRoundTrips(t *testing.T) {
	k := DecayFactorForHalfLife(720)
	got := PowWad(k, 720)
	half := new(big.Int).Quo(One, big.NewInt(2))
	// k is the smallest value reaching one half: k meets it, k-1 falls short.
	if got.Cmp(half) < 0 {
		t.Fatalf("DecayFactorForHalfLife: PowWad(k,720) = %s, want >= %s", got, half)
	}
	below := PowWad(new(big.Int).Sub(k, big.NewInt(1)), 720)
	if below.Cmp(half) >= 0 {
		t.Fatalf("DecayFactorForHalfLife: PowWad(k-1,720) = %s, want < %s", below, half)
	}
}

func mustBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad constant")
	}
	return v
}
