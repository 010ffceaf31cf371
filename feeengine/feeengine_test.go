package feeengine

import (
	"math/big"
	"testing"

	"github.com/AndeLabs/zkUSD/wad"
)

func newTestEngine() *Engine {
	return New(720, wad.NewFraction(5, 1000), wad.NewFraction(50, 1000), 8)
}

func TestBorrowingFeeZeroTargetDebtHasNoPremium(t *testing.T) {
	e := newTestEngine()
	fee := e.BorrowingFee(0, wad.New(100), wad.Zero(), wad.Zero())
	// base_rate starts at 0 and floor is 0.005, so fee == floor * debtDelta.
	want := wad.Mul(wad.New(100), wad.NewFraction(5, 1000))
	if fee.Cmp(want) != 0 {
		t.Fatalf("BorrowingFee: got %s want %s", fee, want)
	}
}

func TestRedemptionFeeBumpsBaseRateAndRecordsHistory(t *testing.T) {
	e := newTestEngine()
	fee := e.RedemptionFee(0, 1, wad.New(1000), wad.New(10000))
	if fee.Sign() <= 0 {
		t.Fatalf("expected positive fee, got %s", fee)
	}
	if e.BaseRate().Sign() <= 0 {
		t.Fatalf("expected base rate to have bumped above zero")
	}
	hist := e.History()
	if len(hist) != 1 || hist[0].BlockHeight != 1 {
		t.Fatalf("expected one history record at height 1, got %+v", hist)
	}
}

func TestRedemptionFeeZeroSupplyGuard(t *testing.T) {
	e := newTestEngine()
	fee := e.RedemptionFee(0, 1, wad.New(100), big.NewInt(0))
	if fee.Cmp(wad.Mul(wad.New(100), e.floor)) != 0 {
		t.Fatalf("zero-supply guard should leave base rate at floor-clamped zero: fee=%s", fee)
	}
}

func TestHistoryRingIsBounded(t *testing.T) {
	e := newTestEngine()
	for i := uint64(0); i < 20; i++ {
		e.RedemptionFee(0, i, wad.New(1), wad.New(1000))
	}
	if len(e.History()) != e.historyCap {
		t.Fatalf("history should be capped at %d, got %d", e.historyCap, len(e.History()))
	}
}

func TestDecayReducesBaseRateOverTime(t *testing.T) {
	e := newTestEngine()
	e.RedemptionFee(0, 1, wad.New(1000), wad.New(1000))
	before := e.BaseRate()
	// Advance by one half-life (720 minutes = 43200 seconds).
	e.RedemptionFee(43200, 2, wad.Zero(), wad.New(1000))
	after := e.BaseRate()
	if after.Cmp(before) >= 0 {
		t.Fatalf("expected decay to reduce base rate: before=%s after=%s", before, after)
	}
}
