package statemachine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AndeLabs/zkUSD/cdp"
	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/oracle"
	"github.com/AndeLabs/zkUSD/protocolparams"
	"github.com/AndeLabs/zkUSD/recovery"
	"github.com/AndeLabs/zkUSD/wad"
)

func addr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.MustNewAddress(crypto.AccountPrefix, raw)
}

// testPriceSource is a mutable PriceOracle for driving price movements
// across successive operations within a single test.
type testPriceSource struct {
	price *big.Int
}

func (s *testPriceSource) Current() (oracle.Quote, error) {
	return oracle.Quote{Price: s.price, Timestamp: 0}, nil
}

var (
	poolAccount     = addr(250)
	treasuryAccount = addr(251)
)

func newTestMachine(t *testing.T, price *big.Int) (*Machine, *testPriceSource) {
	t.Helper()
	src := &testPriceSource{price: price}
	mach := New(protocolparams.Default(), poolAccount, treasuryAccount, Collaborators{
		PriceOracle: src,
		Clock:       oracle.FixedClock{T: 1_000},
	})
	return mach, src
}

func TestOpenMintRepayCloseHappyPath(t *testing.T) {
	mach, _ := newTestMachine(t, wad.New(50_000))
	owner := addr(1)

	opened, evs, err := mach.OpenCDP(owner, wad.NewFraction(1, 100), wad.New(300), 1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, 0, mach.BalanceOf(owner).Cmp(wad.New(300)), "owner should hold the 300 requested")

	// 10 more (plus its 0.05 fee) keeps the ratio at 500/311.55 ~= 1.6, above MCR.
	minted := wad.New(10)
	_, err = mach.Mint(opened.ID, owner, minted, 2)
	require.NoError(t, err)

	got, err := mach.GetCDP(opened.ID)
	require.NoError(t, err)

	// Fund the owner with whatever the protocol billed as fees so a single
	// repay can clear the position exactly — the fee portion was minted to
	// the treasury, not the owner, so the owner must source it from
	// elsewhere to fully close (matches the borrowing-fee design).
	topUp := new(big.Int).Sub(got.Debt, mach.BalanceOf(owner))
	if topUp.Sign() > 0 {
		mach.ldgr.Mint(owner, topUp)
	}

	_, err = mach.Repay(opened.ID, owner, got.Debt, 3)
	require.NoError(t, err)

	afterRepay, err := mach.GetCDP(opened.ID)
	require.NoError(t, err)
	require.Equal(t, 0, afterRepay.Debt.Sign(), "debt should be fully cleared")

	_, err = mach.CloseCDP(opened.ID, owner, 4)
	require.NoError(t, err)
	require.Equal(t, 0, mach.vlt.TotalCollateral().Sign(), "vault should be emptied after close")
	require.Equal(t, 0, mach.GetTotalSupply().Cmp(mach.BalanceOf(treasuryAccount)),
		"only the treasury's accrued fees should remain in circulation")
}

func TestOpenRejectsBelowMCR(t *testing.T) {
	mach, _ := newTestMachine(t, wad.New(50_000))
	owner := addr(1)

	// 0.001 BTC at $50,000 backs $50 of value; requesting $300 of debt is
	// nowhere near the 150% MCR.
	_, _, err := mach.OpenCDP(owner, wad.NewFraction(1, 1000), wad.New(300), 1)
	require.ErrorIs(t, err, coreerrors.ErrBelowMCR)
}

func TestLiquidationViaPoolAbsorption(t *testing.T) {
	mach, src := newTestMachine(t, wad.New(50_000))

	ownerA := addr(1)
	ownerB := addr(2)
	depositor := addr(3)

	cA, _, err := mach.OpenCDP(ownerA, wad.NewFraction(1, 100), wad.New(300), 1)
	require.NoError(t, err)
	_, _, err = mach.OpenCDP(ownerB, wad.NewFraction(2, 100), wad.New(200), 2)
	require.NoError(t, err)

	mach.ldgr.Mint(depositor, wad.New(500))
	_, _, err = mach.PoolDeposit(depositor, wad.New(500), 3)
	require.NoError(t, err)

	// Price drop pushes A's ratio to 40,000*0.01/300 = 1.33, below the 1.5
	// MCR; B's ratio stays at 40,000*0.02/200 = 4.0, safely above it.
	src.price = wad.New(40_000)

	evs, err := mach.LiquidateBatch(0, 4)
	require.NoError(t, err)
	require.Len(t, evs, 1)

	gotA, err := mach.GetCDP(cA.ID)
	require.NoError(t, err)
	require.Equal(t, cdp.StatusLiquidated, gotA.Status)

	status := mach.PoolStatus(depositor)
	require.Greater(t, status.CompoundedDeposit.Sign(), 0, "depositor should retain a positive compounded deposit")
	require.Greater(t, status.PendingGain.Sign(), 0, "depositor should have a pending collateral gain")
}

func TestLiquidationRedistributesWhenPoolEmpty(t *testing.T) {
	mach, src := newTestMachine(t, wad.New(50_000))
	ownerA := addr(1)
	ownerB := addr(2)

	cB, _, err := mach.OpenCDP(ownerB, wad.NewFraction(2, 100), wad.New(200), 1)
	require.NoError(t, err)
	_, _, err = mach.OpenCDP(ownerA, wad.NewFraction(1, 100), wad.New(300), 2)
	require.NoError(t, err)

	src.price = wad.New(40_000)
	_, err = mach.LiquidateBatch(0, 3)
	require.NoError(t, err)

	gotB, err := mach.GetCDP(cB.ID)
	require.NoError(t, err)
	require.Greater(t, gotB.Debt.Cmp(wad.New(200)), 0, "B's debt should grow from redistribution")
	require.Greater(t, gotB.Collateral.Cmp(wad.NewFraction(2, 100)), 0, "B's collateral should grow from redistribution")
}

func TestRecoveryModeGatesMintButAllowsRepay(t *testing.T) {
	mach, src := newTestMachine(t, wad.New(50_000))
	owners := []crypto.Address{addr(1), addr(2), addr(3)}
	var ids []uint64
	for _, o := range owners {
		c, _, err := mach.OpenCDP(o, wad.NewFraction(31, 1000), wad.New(1_000), uint64(len(ids)+1))
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	// Drop price until TCR falls below the 150% CCR, entering Recovery.
	src.price = wad.New(40_000)
	_, err := mach.Deposit(ids[0], owners[0], wad.NewFraction(1, 1000), uint64(len(ids)+1))
	require.NoError(t, err, "deposit to trip recovery evaluation")
	require.Equal(t, recovery.ModeRecovery, mach.GetMode())

	_, err = mach.Mint(ids[0], owners[0], wad.New(10), 100)
	require.Error(t, err)
	require.Truef(t, err == coreerrors.ErrTCRWouldDecrease || err == coreerrors.ErrBelowMCR,
		"expected mint rejected in recovery mode, got %v", err)

	_, err = mach.Repay(ids[1], owners[1], wad.New(100), 101)
	require.NoError(t, err, "repay should remain allowed in recovery mode")

	_, err = mach.Withdraw(ids[2], owners[2], wad.NewFraction(1, 1000), 102)
	require.ErrorIs(t, err, coreerrors.ErrWithdrawInRecovery)
}

func TestRedeemWalksSortedIndexLowestRatioFirst(t *testing.T) {
	mach, _ := newTestMachine(t, wad.New(50_000))
	ownerLow := addr(1)
	ownerHigh := addr(2)
	redeemer := addr(3)

	// Low: ratio 50,000*0.01/300 ~= 1.67. High: ratio 50,000*0.04/300 ~= 6.67.
	cLow, _, err := mach.OpenCDP(ownerLow, wad.NewFraction(1, 100), wad.New(300), 1)
	require.NoError(t, err)
	cHigh, _, err := mach.OpenCDP(ownerHigh, wad.NewFraction(4, 100), wad.New(300), 2)
	require.NoError(t, err)

	mach.ldgr.Mint(redeemer, wad.New(100))
	_, err = mach.Redeem(redeemer, wad.New(100), 3)
	require.NoError(t, err)

	gotLow, err := mach.GetCDP(cLow.ID)
	require.NoError(t, err)
	gotHigh, err := mach.GetCDP(cHigh.ID)
	require.NoError(t, err)

	require.Less(t, gotLow.Debt.Cmp(wad.New(300)), 0, "the lowest-ratio CDP should absorb the redemption")
	// Untouched means still 300 plus its 0.5% (1.5) borrowing fee.
	require.Equal(t, 0, gotHigh.Debt.Cmp(wad.NewFraction(603, 2)), "the higher-ratio CDP should be untouched")
}

func TestDeterministicReplayAcrossIndependentMachines(t *testing.T) {
	run := func() []byte {
		mach, src := newTestMachine(t, wad.New(50_000))
		owner := addr(1)
		opened, _, err := mach.OpenCDP(owner, wad.NewFraction(1, 100), wad.New(300), 1)
		require.NoError(t, err)
		_, err = mach.Deposit(opened.ID, owner, wad.NewFraction(1, 1000), 2)
		require.NoError(t, err)
		_, err = mach.Mint(opened.ID, owner, wad.New(10), 3)
		require.NoError(t, err)
		src.price = wad.New(48_000)
		_, err = mach.Repay(opened.ID, owner, wad.New(10), 4)
		require.NoError(t, err)
		return mach.GetStateRoot()
	}

	rootA := run()
	rootB := run()
	require.NotEmpty(t, rootA)
	require.Equal(t, rootA, rootB, "identically-built machines should produce identical state roots")
}
