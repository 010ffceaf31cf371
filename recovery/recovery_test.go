package recovery

import (
	"math/big"
	"testing"

	"github.com/AndeLabs/zkUSD/wad"
)

func TestEvaluateEntersAndExitsRecovery(t *testing.T) {
	m := New(wad.NewFraction(3, 2), 8)
	price := wad.New(40_000)
	totalDebt := wad.New(1000)

	// TCR = 1.2 * collateral-equivalent < 1.5 CCR -> Recovery.
	lowColl := wad.NewFraction(30, 1000) // ~0.03 BTC at 40000 => 1200 value /1000 debt = 1.2
	transitioned, entering := m.Evaluate(1, lowColl, price, totalDebt)
	if !transitioned || !entering || m.Mode() != ModeRecovery {
		t.Fatalf("expected entering recovery, got transitioned=%v entering=%v mode=%v", transitioned, entering, m.Mode())
	}

	highColl := wad.NewFraction(40, 1000) // 1600/1000 = 1.6 >= 1.5
	transitioned, entering = m.Evaluate(2, highColl, price, totalDebt)
	if !transitioned || entering || m.Mode() != ModeNormal {
		t.Fatalf("expected exiting recovery, got transitioned=%v entering=%v mode=%v", transitioned, entering, m.Mode())
	}

	hist := m.History()
	if len(hist) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(hist))
	}
}

func TestComputeTCRInfiniteWhenNoDebt(t *testing.T) {
	tcr := ComputeTCR(wad.New(10), wad.New(1), big.NewInt(0))
	if tcr != nil {
		t.Fatalf("expected nil (infinite) TCR, got %s", tcr)
	}
}

func TestEvaluateStatusCountsAtRiskCDPs(t *testing.T) {
	m := New(wad.NewFraction(3, 2), 8)
	m.Evaluate(1, wad.New(100), wad.New(1), wad.New(100))
	status := m.EvaluateStatus([]RatioDebt{
		{Ratio: wad.NewFraction(14, 10), Debt: wad.New(50)},
		{Ratio: wad.NewFraction(20, 10), Debt: wad.New(50)},
	})
	if status.CDPsAtRisk != 1 {
		t.Fatalf("expected 1 at-risk cdp, got %d", status.CDPsAtRisk)
	}
	if status.DebtAtRisk.Cmp(wad.New(50)) != 0 {
		t.Fatalf("debt at risk: got %s", status.DebtAtRisk)
	}
}
