package stabilitypool

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

func TestDepositAndWithdrawNoAbsorb(t *testing.T) {
	p := New()
	alice := addr(1)

	gain, err := p.Deposit(alice, wad.New(100))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if gain.Sign() != 0 {
		t.Fatalf("expected zero gain on first deposit, got %s", gain)
	}
	if p.CompoundedDeposit(alice).Cmp(wad.New(100)) != 0 {
		t.Fatalf("expected compounded deposit 100, got %s", p.CompoundedDeposit(alice))
	}

	gain, err = p.Withdraw(alice, wad.New(40))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if gain.Sign() != 0 {
		t.Fatalf("expected zero gain, got %s", gain)
	}
	if p.CompoundedDeposit(alice).Cmp(wad.New(60)) != 0 {
		t.Fatalf("expected compounded deposit 60 after withdraw, got %s", p.CompoundedDeposit(alice))
	}
}

func TestWithdrawMoreThanCompoundedFails(t *testing.T) {
	p := New()
	alice := addr(1)
	p.Deposit(alice, wad.New(100))

	if _, err := p.Withdraw(alice, wad.New(101)); err == nil {
		t.Fatalf("expected error withdrawing more than compounded deposit")
	}
}

func TestAbsorbSingleScaleGain(t *testing.T) {
	p := New()
	alice := addr(1)
	bob := addr(2)
	p.Deposit(alice, wad.New(100))
	p.Deposit(bob, wad.New(100))

	// Offset 50 debt with 1 unit of collateral gain, pro-rata over 200 deposits.
	if err := p.Absorb(wad.New(50), wad.New(1)); err != nil {
		t.Fatalf("absorb: %v", err)
	}

	// Each depositor loses a quarter of their deposit (50/200) and gains
	// half of the 1-unit collateral pro-rata to their 50% share.
	wantCompounded := wad.New(75)
	if p.CompoundedDeposit(alice).Cmp(wantCompounded) != 0 {
		t.Fatalf("alice compounded: got %s want %s", p.CompoundedDeposit(alice), wantCompounded)
	}

	wantGain := wad.NewFraction(1, 2)
	if p.PendingGain(alice).Cmp(wantGain) != 0 {
		t.Fatalf("alice pending gain: got %s want %s", p.PendingGain(alice), wantGain)
	}

	gain, err := p.ClaimGains(alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if gain.Cmp(wantGain) != 0 {
		t.Fatalf("claimed gain: got %s want %s", gain, wantGain)
	}
	if p.PendingGain(alice).Sign() != 0 {
		t.Fatalf("expected zero pending gain after claim, got %s", p.PendingGain(alice))
	}
	if p.CompoundedDeposit(alice).Cmp(wantCompounded) != 0 {
		t.Fatalf("claim must not change compounded deposit: got %s want %s", p.CompoundedDeposit(alice), wantCompounded)
	}
}

func TestAbsorbFullWipeoutRollsEpoch(t *testing.T) {
	p := New()
	alice := addr(1)
	p.Deposit(alice, wad.New(100))

	if err := p.Absorb(wad.New(100), wad.New(2)); err != nil {
		t.Fatalf("absorb: %v", err)
	}
	if p.Epoch() != 1 {
		t.Fatalf("expected epoch rollover to 1, got %d", p.Epoch())
	}
	if p.Scale() != 0 {
		t.Fatalf("expected scale reset to 0, got %d", p.Scale())
	}
	if p.P().Cmp(wad.One) != 0 {
		t.Fatalf("expected P reset to 1, got %s", p.P())
	}
	if p.CompoundedDeposit(alice).Sign() != 0 {
		t.Fatalf("expected alice's deposit wiped out, got %s", p.CompoundedDeposit(alice))
	}

	// A depositor joining after the wipeout is unaffected by the old epoch.
	bob := addr(2)
	p.Deposit(bob, wad.New(50))
	if p.CompoundedDeposit(bob).Cmp(wad.New(50)) != 0 {
		t.Fatalf("expected bob's fresh deposit intact, got %s", p.CompoundedDeposit(bob))
	}
}

func TestAbsorbAcrossScaleBoundaryBlendsGain(t *testing.T) {
	p := New()
	alice := addr(1)
	p.Deposit(alice, wad.New(100))

	// Drive P below the rescale threshold with a near-total loss, forcing a
	// scale increment; alice's snapshot now straddles scale 0 -> scale 1.
	lossPerUnit := new(big.Int).Sub(wad.One, big.NewInt(1)) // 1 - 1e-18
	debtToOffset, err := wad.MulDivDown(lossPerUnit, wad.New(100), wad.One)
	if err != nil {
		t.Fatalf("compute debtToOffset: %v", err)
	}
	if err := p.Absorb(debtToOffset, wad.New(1)); err != nil {
		t.Fatalf("first absorb: %v", err)
	}
	if p.Scale() != 1 {
		t.Fatalf("expected scale to roll to 1, got %d", p.Scale())
	}

	bob := addr(2)
	p.Deposit(bob, wad.New(100))

	if err := p.Absorb(wad.New(50), wad.New(1)); err != nil {
		t.Fatalf("second absorb: %v", err)
	}

	aliceGain := p.PendingGain(alice)
	if aliceGain.Sign() <= 0 {
		t.Fatalf("expected alice to have a nonzero blended gain spanning the scale boundary, got %s", aliceGain)
	}
}

func TestDepositSettlesPendingGainBeforeResnapshot(t *testing.T) {
	p := New()
	alice := addr(1)
	bob := addr(2)
	p.Deposit(alice, wad.New(100))
	p.Deposit(bob, wad.New(100))

	if err := p.Absorb(wad.New(50), wad.New(2)); err != nil {
		t.Fatalf("absorb: %v", err)
	}

	gainBefore := p.PendingGain(alice)
	if gainBefore.Sign() <= 0 {
		t.Fatalf("expected nonzero pending gain before deposit, got %s", gainBefore)
	}

	paid, err := p.Deposit(alice, wad.New(10))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if paid.Cmp(gainBefore) != 0 {
		t.Fatalf("expected deposit to pay out the pending gain: got %s want %s", paid, gainBefore)
	}
	if p.PendingGain(alice).Sign() != 0 {
		t.Fatalf("expected zero pending gain after deposit settles it, got %s", p.PendingGain(alice))
	}
}

func TestClaimGainsUnknownDepositorErrors(t *testing.T) {
	p := New()
	if _, err := p.ClaimGains(addr(9)); err == nil {
		t.Fatalf("expected error claiming gains for unknown depositor")
	}
}

func TestCollateralBufferTracksCreditsAndClaims(t *testing.T) {
	p := New()
	alice := addr(1)
	p.Deposit(alice, wad.New(100))

	if err := p.Absorb(wad.New(50), wad.New(3)); err != nil {
		t.Fatalf("absorb: %v", err)
	}
	if p.CollateralBuffer().Cmp(wad.New(3)) != 0 {
		t.Fatalf("expected buffer to hold the full 3 units credited, got %s", p.CollateralBuffer())
	}

	gain, err := p.ClaimGains(alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	want := new(big.Int).Sub(wad.New(3), gain)
	if p.CollateralBuffer().Cmp(want) != 0 {
		t.Fatalf("expected buffer decremented by claimed gain: got %s want %s", p.CollateralBuffer(), want)
	}
}
