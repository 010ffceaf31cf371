package cdp

import (
	"math/big"
	"testing"

	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/wad"
)

func addr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.MustNewAddress(crypto.AccountPrefix, raw)
}

func TestRatioDebtFreeIsNilInfinite(t *testing.T) {
	c := &CDP{Collateral: wad.New(10), Debt: wad.Zero()}
	if c.Ratio(wad.New(1)) != nil {
		t.Fatalf("expected nil ratio for debt-free CDP")
	}
}

func TestRatioComputesCollateralValueOverDebt(t *testing.T) {
	c := &CDP{Collateral: wad.New(2), Debt: wad.New(100)}
	ratio := c.Ratio(wad.New(100)) // value = 200, ratio = 2.0
	if ratio.Cmp(wad.New(2)) != 0 {
		t.Fatalf("expected ratio 2.0, got %s", ratio)
	}
}

func TestInsertAndRemove(t *testing.T) {
	m := New()
	c1 := m.Insert(addr(1), wad.New(10), wad.New(5), 1, wad.Zero())
	c2 := m.Insert(addr(2), wad.New(20), wad.New(5), 1, wad.Zero())

	ids := m.AscendingIDs(wad.New(1))
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}

	m.Remove(c1.ID)
	ids = m.AscendingIDs(wad.New(1))
	if len(ids) != 1 || ids[0] != c2.ID {
		t.Fatalf("expected only c2 remaining, got %v", ids)
	}
}

func TestAscendingIDsOrdersByRatioAtGivenPrice(t *testing.T) {
	m := New()
	// c1: ratio 1.0, c2: ratio 2.0, c3: debt-free (infinite, sorts last).
	c1 := m.Insert(addr(1), wad.New(100), wad.New(100), 1, wad.Zero())
	c2 := m.Insert(addr(2), wad.New(200), wad.New(100), 1, wad.Zero())
	c3 := m.Insert(addr(3), wad.New(50), wad.Zero(), 1, wad.Zero())

	ids := m.AscendingIDs(wad.New(1))
	want := []uint64{c1.ID, c2.ID, c3.ID}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("ascending order mismatch at %d: got %v want %v", i, ids, want)
		}
	}
}

func TestAscendingIDsOrderHoldsAcrossPrices(t *testing.T) {
	m := New()
	// Same collateral, different debt: c1 (more debt) has the lower ratio at
	// every price, so a price change does not reorder the two.
	c1 := m.Insert(addr(1), wad.New(10), wad.New(5), 1, wad.Zero())
	c2 := m.Insert(addr(2), wad.New(10), wad.New(1), 1, wad.Zero())

	idsHighPrice := m.AscendingIDs(wad.New(100))
	if idsHighPrice[0] != c1.ID {
		t.Fatalf("expected c1 (more debt, lower ratio) first at high price, got %v", idsHighPrice)
	}

	// Ratios remain ordered the same way regardless of price since both
	// CDPs share collateral*price scaling identically; verify c2 (less
	// debt, always higher ratio) sorts last in both cases.
	idsLowPrice := m.AscendingIDs(wad.New(1))
	if idsLowPrice[1] != c2.ID {
		t.Fatalf("expected c2 last at low price too, got %v", idsLowPrice)
	}
}

func TestApplyPendingFoldsRedistributionAccumulators(t *testing.T) {
	m := New()
	c := m.Insert(addr(1), wad.New(10), wad.New(100), 1, wad.Zero())

	if err := m.Redistribute(wad.New(50), wad.New(5), wad.New(100)); err != nil {
		t.Fatalf("redistribute: %v", err)
	}

	m.ApplyPending(c)

	// debtPerUnit = 0.5, collPerUnit = 0.05; c.Collateral starts at 10.
	wantDebt := new(big.Int).Add(wad.New(100), wad.Mul(wad.New(10), wad.NewFraction(1, 2)))
	if c.Debt.Cmp(wantDebt) != 0 {
		t.Fatalf("debt after redistribution: got %s want %s", c.Debt, wantDebt)
	}

	if c.SnapshotLDebt.Cmp(m.LDebt()) != 0 {
		t.Fatalf("expected snapshot refreshed to current LDebt")
	}
}

func TestApplyPendingIsNoOpForNonActiveCDP(t *testing.T) {
	m := New()
	c := m.Insert(addr(1), wad.New(10), wad.New(100), 1, wad.Zero())
	c.Status = StatusClosed

	if err := m.Redistribute(wad.New(50), wad.New(5), wad.New(100)); err != nil {
		t.Fatalf("redistribute: %v", err)
	}
	debtBefore := new(big.Int).Set(c.Debt)
	m.ApplyPending(c)
	if c.Debt.Cmp(debtBefore) != 0 {
		t.Fatalf("expected no change to a non-active CDP, got %s", c.Debt)
	}
}

func TestRedistributeRejectsZeroActiveCollateral(t *testing.T) {
	m := New()
	if err := m.Redistribute(wad.New(1), wad.New(1), wad.Zero()); err == nil {
		t.Fatalf("expected error redistributing over zero active collateral")
	}
}
