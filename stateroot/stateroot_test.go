package stateroot

import (
	"bytes"
	"testing"

	"github.com/AndeLabs/zkUSD/cdp"
	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/feeengine"
	"github.com/AndeLabs/zkUSD/ledger"
	"github.com/AndeLabs/zkUSD/protocolparams"
	"github.com/AndeLabs/zkUSD/recovery"
	"github.com/AndeLabs/zkUSD/stabilitypool"
	"github.com/AndeLabs/zkUSD/vault"
	"github.com/AndeLabs/zkUSD/wad"
)

func addr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.MustNewAddress(crypto.AccountPrefix, raw)
}

func fixture(t *testing.T) (*vault.Vault, *feeengine.Engine, *recovery.Manager, *stabilitypool.Pool, *cdp.Manager, *ledger.Ledger) {
	t.Helper()
	cfg := protocolparams.Default()
	vlt := vault.New()
	fees := feeengine.New(cfg.HalfLifeMinutes, cfg.RedemptionFeeFloor, cfg.RedemptionFeeCeil, cfg.RedemptionHistoryCap)
	rec := recovery.New(cfg.CCR, cfg.RecoveryHistoryCap)
	pool := stabilitypool.New()
	cdps := cdp.New()
	ldgr := ledger.New()

	owner := addr(1)
	ldgr.Mint(owner, wad.New(100))
	cdps.Insert(owner, wad.New(2), wad.New(100), 1, wad.Zero())
	vlt.AddCollateral(wad.New(2))

	depositor := addr(2)
	ldgr.Mint(depositor, wad.New(50))
	pool.Deposit(depositor, wad.New(50))

	return vlt, fees, rec, pool, cdps, ldgr
}

func TestComputeIsDeterministic(t *testing.T) {
	vlt, fees, rec, pool, cdps, ldgr := fixture(t)
	a := Compute(vlt, fees, rec, pool, cdps, ldgr)
	b := Compute(vlt, fees, rec, pool, cdps, ldgr)
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical state roots for unchanged state")
	}
	if len(a) != 32 {
		t.Fatalf("expected a 32-byte Keccak256 digest, got %d bytes", len(a))
	}
}

func TestComputeChangesWithVaultState(t *testing.T) {
	vlt, fees, rec, pool, cdps, ldgr := fixture(t)
	before := Compute(vlt, fees, rec, pool, cdps, ldgr)

	vlt.AddCollateral(wad.New(1))

	after := Compute(vlt, fees, rec, pool, cdps, ldgr)
	if bytes.Equal(before, after) {
		t.Fatalf("expected state root to change after vault mutation")
	}
}

func TestComputeChangesWithCDPMutation(t *testing.T) {
	vlt, fees, rec, pool, cdps, ldgr := fixture(t)
	before := Compute(vlt, fees, rec, pool, cdps, ldgr)

	ids := cdps.AscendingIDs(wad.New(100))
	c, err := cdps.Get(ids[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	c.Debt.Add(c.Debt, wad.New(1))

	after := Compute(vlt, fees, rec, pool, cdps, ldgr)
	if bytes.Equal(before, after) {
		t.Fatalf("expected state root to change after a CDP's debt changes")
	}
}

func TestComputeChangesWithPoolDeposit(t *testing.T) {
	vlt, fees, rec, pool, cdps, ldgr := fixture(t)
	before := Compute(vlt, fees, rec, pool, cdps, ldgr)

	newDepositor := addr(3)
	ldgr.Mint(newDepositor, wad.New(10))
	if _, err := pool.Deposit(newDepositor, wad.New(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	after := Compute(vlt, fees, rec, pool, cdps, ldgr)
	if bytes.Equal(before, after) {
		t.Fatalf("expected state root to change after a new pool deposit")
	}
}

func TestComputeIsStableAcrossTwoIdenticallyBuiltManagers(t *testing.T) {
	vlt, fees, rec, pool, _, ldgr := fixture(t)

	ownerA := addr(10)
	ownerB := addr(11)

	cdpsOne := cdp.New()
	cdpsOne.Insert(ownerB, wad.New(3), wad.New(50), 1, wad.Zero())
	cdpsOne.Insert(ownerA, wad.New(1), wad.New(10), 1, wad.Zero())

	cdpsTwo := cdp.New()
	cdpsTwo.Insert(ownerB, wad.New(3), wad.New(50), 1, wad.Zero())
	cdpsTwo.Insert(ownerA, wad.New(1), wad.New(10), 1, wad.Zero())

	a := Compute(vlt, fees, rec, pool, cdpsOne, ldgr)
	b := Compute(vlt, fees, rec, pool, cdpsTwo, ldgr)
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical roots for two managers built the same way")
	}
}
