package statemachine

import (
	"math/big"

	"github.com/AndeLabs/zkUSD/cdp"
	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/core/events"
	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/recovery"
	"github.com/AndeLabs/zkUSD/wad"
)

// OpenCDP implements spec §4.5's OpenCDP: validates the request, applies
// the borrowing fee, requires the post-fee ratio clear MCR (or CCR plus a
// non-decreasing TCR in Recovery), then mints, inserts, and emits
// CDPOpened.
func (m *Machine) OpenCDP(owner crypto.Address, collateral, debtRequested *big.Int, blockHeight uint64) (cdp.CDP, []events.Event, error) {
	var opened cdp.CDP
	evs, err := m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		if collateral == nil || collateral.Sign() <= 0 {
			return coreerrors.ErrInvalidAmount
		}
		if debtRequested == nil || debtRequested.Sign() < 0 || debtRequested.Cmp(m.cfg.MinDebt) < 0 {
			return coreerrors.ErrBelowMinDebt
		}

		fee := m.fees.BorrowingFee(now, debtRequested, m.cdps.TotalDebt(), m.cfg.TargetDebt)
		totalDebt := new(big.Int).Add(debtRequested, fee)
		if totalDebt.Cmp(m.cfg.MinDebt) < 0 {
			return coreerrors.ErrBelowMinDebt
		}

		ratio, err := wad.Div(wad.Mul(collateral, price), totalDebt)
		if err != nil {
			return err
		}

		inRecovery := m.rec.Mode() == recovery.ModeRecovery
		threshold := m.cfg.MCR
		if inRecovery {
			threshold = m.cfg.CCR
		}
		if ratio.Cmp(threshold) < 0 {
			if inRecovery {
				return coreerrors.ErrBelowCCRInRecovery
			}
			return coreerrors.ErrBelowMCR
		}

		if inRecovery {
			preTCR := m.rec.TCR()
			postTotalColl := new(big.Int).Add(m.vlt.TotalCollateral(), collateral)
			postTotalDebt := new(big.Int).Add(m.cdps.TotalDebt(), totalDebt)
			postTCR := recovery.ComputeTCR(postTotalColl, price, postTotalDebt)
			if postTCR == nil || (preTCR != nil && postTCR.Cmp(preTCR) < 0) {
				return coreerrors.ErrTCRWouldDecrease
			}
		}

		if err := m.vlt.AddCollateral(collateral); err != nil {
			return err
		}
		c := m.cdps.Insert(owner, new(big.Int).Set(collateral), totalDebt, blockHeight, m.fees.BaseRate())
		if err := m.ldgr.Mint(owner, debtRequested); err != nil {
			return err
		}
		if fee.Sign() > 0 {
			if err := m.ldgr.Mint(m.treasuryAccount, fee); err != nil {
				return err
			}
		}

		collector.Emit(events.CDPOpened{CDPID: c.ID, Owner: owner, Collateral: c.Collateral, Debt: c.Debt, Fee: fee})
		opened = *c
		return nil
	})
	return opened, evs, err
}

// Deposit implements spec §4.5's Deposit: any account may top up an Active
// CDP's collateral; always permitted since it only improves the ratio.
func (m *Machine) Deposit(cdpID uint64, payer crypto.Address, amt *big.Int, blockHeight uint64) ([]events.Event, error) {
	return m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		c, err := m.cdps.Get(cdpID)
		if err != nil {
			return err
		}
		if c.Status != cdp.StatusActive {
			return coreerrors.ErrNotActive
		}
		if amt == nil || amt.Sign() <= 0 {
			return coreerrors.ErrInvalidAmount
		}
		m.cdps.ApplyPending(c)
		c.Collateral.Add(c.Collateral, amt)
		if err := m.vlt.AddCollateral(amt); err != nil {
			return err
		}
		collector.Emit(events.CollateralDeposited{CDPID: c.ID, Payer: payer, Amount: amt})
		return nil
	})
}

// Withdraw implements spec §4.5's Withdraw: owner-only, blocked outright in
// Recovery, otherwise the post-withdraw ratio must still clear MCR.
func (m *Machine) Withdraw(cdpID uint64, owner crypto.Address, amt *big.Int, blockHeight uint64) ([]events.Event, error) {
	return m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		c, err := m.cdps.Get(cdpID)
		if err != nil {
			return err
		}
		if c.Status != cdp.StatusActive {
			return coreerrors.ErrNotActive
		}
		if c.Owner.Key() != owner.Key() {
			return coreerrors.ErrNotOwner
		}
		if amt == nil || amt.Sign() <= 0 {
			return coreerrors.ErrInvalidAmount
		}
		if m.rec.Mode() == recovery.ModeRecovery {
			return coreerrors.ErrWithdrawInRecovery
		}
		m.cdps.ApplyPending(c)
		if amt.Cmp(c.Collateral) > 0 {
			return coreerrors.ErrInsufficientBalance
		}
		newColl := new(big.Int).Sub(c.Collateral, amt)
		if c.Debt.Sign() > 0 {
			ratio, err := wad.Div(wad.Mul(newColl, price), c.Debt)
			if err != nil {
				return err
			}
			if ratio.Cmp(m.cfg.MCR) < 0 {
				return coreerrors.ErrBelowMCR
			}
		}
		c.Collateral = newColl
		if err := m.vlt.RemoveCollateral(amt); err != nil {
			return err
		}
		collector.Emit(events.CollateralWithdrawn{CDPID: c.ID, Owner: owner, Amount: amt})
		return nil
	})
}

// Mint implements spec §4.5's Mint: owner-only, applies the borrowing fee,
// requires the post-mint ratio clear MCR and, in Recovery, a non-decreasing
// TCR.
func (m *Machine) Mint(cdpID uint64, owner crypto.Address, amt *big.Int, blockHeight uint64) ([]events.Event, error) {
	return m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		c, err := m.cdps.Get(cdpID)
		if err != nil {
			return err
		}
		if c.Status != cdp.StatusActive {
			return coreerrors.ErrNotActive
		}
		if c.Owner.Key() != owner.Key() {
			return coreerrors.ErrNotOwner
		}
		if amt == nil || amt.Sign() <= 0 {
			return coreerrors.ErrInvalidAmount
		}
		m.cdps.ApplyPending(c)

		inRecovery := m.rec.Mode() == recovery.ModeRecovery
		preTCR := m.rec.TCR()
		oldDebt := new(big.Int).Set(c.Debt)
		preTotalDebt := m.cdps.TotalDebt()

		fee := m.fees.BorrowingFee(now, amt, preTotalDebt, m.cfg.TargetDebt)
		debtDelta := new(big.Int).Add(amt, fee)
		newDebt := new(big.Int).Add(oldDebt, debtDelta)

		ratio, err := wad.Div(wad.Mul(c.Collateral, price), newDebt)
		if err != nil {
			return err
		}
		if ratio.Cmp(m.cfg.MCR) < 0 {
			return coreerrors.ErrBelowMCR
		}
		if inRecovery {
			postTotalDebt := new(big.Int).Add(preTotalDebt, debtDelta)
			postTCR := recovery.ComputeTCR(m.vlt.TotalCollateral(), price, postTotalDebt)
			if postTCR == nil || (preTCR != nil && postTCR.Cmp(preTCR) < 0) {
				return coreerrors.ErrTCRWouldDecrease
			}
		}

		c.Debt = newDebt
		if err := m.ldgr.Mint(owner, amt); err != nil {
			return err
		}
		if fee.Sign() > 0 {
			if err := m.ldgr.Mint(m.treasuryAccount, fee); err != nil {
				return err
			}
		}
		collector.Emit(events.DebtMinted{CDPID: c.ID, Owner: owner, Requested: amt, Fee: fee})
		return nil
	})
}

// Repay implements spec §4.5's Repay: any account may repay; the remaining
// debt must land on exactly zero or clear MinDebt, never dust.
func (m *Machine) Repay(cdpID uint64, payer crypto.Address, amt *big.Int, blockHeight uint64) ([]events.Event, error) {
	return m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		c, err := m.cdps.Get(cdpID)
		if err != nil {
			return err
		}
		if c.Status != cdp.StatusActive {
			return coreerrors.ErrNotActive
		}
		if amt == nil || amt.Sign() <= 0 {
			return coreerrors.ErrInvalidAmount
		}
		m.cdps.ApplyPending(c)
		if amt.Cmp(c.Debt) > 0 {
			return coreerrors.ErrInvalidAmount
		}
		newDebt := new(big.Int).Sub(c.Debt, amt)
		if newDebt.Sign() != 0 && newDebt.Cmp(m.cfg.MinDebt) < 0 {
			return coreerrors.ErrDustDebt
		}
		if err := m.ldgr.Burn(payer, amt); err != nil {
			return err
		}
		c.Debt = newDebt
		collector.Emit(events.DebtRepaid{CDPID: c.ID, Payer: payer, Amount: amt})
		return nil
	})
}

// CloseCDP implements spec §4.5's CloseCDP: owner-only, requires debt == 0,
// returns all collateral, and retires the CDP from the sorted index.
func (m *Machine) CloseCDP(cdpID uint64, owner crypto.Address, blockHeight uint64) ([]events.Event, error) {
	return m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		c, err := m.cdps.Get(cdpID)
		if err != nil {
			return err
		}
		if c.Status != cdp.StatusActive {
			return coreerrors.ErrNotActive
		}
		if c.Owner.Key() != owner.Key() {
			return coreerrors.ErrNotOwner
		}
		m.cdps.ApplyPending(c)
		if c.Debt.Sign() != 0 {
			return coreerrors.ErrDustDebt
		}
		returned := new(big.Int).Set(c.Collateral)
		if err := m.vlt.RemoveCollateral(returned); err != nil {
			return err
		}
		c.Collateral = wad.Zero()
		c.Status = cdp.StatusClosed
		m.cdps.Remove(c.ID)
		collector.Emit(events.CDPClosed{CDPID: c.ID, Owner: owner, CollateralReturned: returned})
		return nil
	})
}
