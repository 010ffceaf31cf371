// Package vault implements the protocol's aggregate collateral accounting
// (spec §4.3): a single running total plus a pending-liquidation reserve.
// Between operations the reserve is empty and the running total equals the
// collateral of every Active CDP (pending redistribution included) plus the
// stability pool's unclaimed collateral gains.
package vault

import (
	"math/big"

	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
)

// Vault is the aggregate collateral ledger's resident state.
type Vault struct {
	totalCollateral    *big.Int
	pendingLiquidation *big.Int
}

// New returns an empty vault.
func New() *Vault {
	return &Vault{
		totalCollateral:    big.NewInt(0),
		pendingLiquidation: big.NewInt(0),
	}
}

// TotalCollateral returns the running total: collateral backing Active CDPs
// plus the stability pool's unclaimed collateral gains (excludes the
// pending-liquidation reserve).
func (v *Vault) TotalCollateral() *big.Int {
	return new(big.Int).Set(v.totalCollateral)
}

// PendingLiquidation returns collateral reserved for in-flight liquidation
// distribution.
func (v *Vault) PendingLiquidation() *big.Int {
	return new(big.Int).Set(v.pendingLiquidation)
}

// Total returns totalCollateral + pendingLiquidation (spec §3). The state
// machine's invariant check compares TotalCollateral, not Total, and checks
// PendingLiquidation separately.
func (v *Vault) Total() *big.Int {
	return new(big.Int).Add(v.totalCollateral, v.pendingLiquidation)
}

// AddCollateral increases the active-CDP collateral total, e.g. on
// OpenCDP/Deposit.
func (v *Vault) AddCollateral(amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	v.totalCollateral.Add(v.totalCollateral, amt)
	return nil
}

// RemoveCollateral decreases the active-CDP collateral total, e.g. on
// Withdraw/CloseCDP/redemption.
func (v *Vault) RemoveCollateral(amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	if v.totalCollateral.Cmp(amt) < 0 {
		return coreerrors.ErrInsufficientBalance
	}
	v.totalCollateral.Sub(v.totalCollateral, amt)
	return nil
}

// ReserveForLiquidation moves amt out of the active total into the pending
// reserve, called by the liquidation engine when it pulls a candidate's
// collateral before distributing it.
func (v *Vault) ReserveForLiquidation(amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	if v.totalCollateral.Cmp(amt) < 0 {
		return coreerrors.ErrInsufficientBalance
	}
	v.totalCollateral.Sub(v.totalCollateral, amt)
	v.pendingLiquidation.Add(v.pendingLiquidation, amt)
	return nil
}

// ReleaseFromLiquidation moves amt out of the pending reserve once the
// liquidation engine has finished distributing it (to the pool, to a
// liquidator, or to redistribution). It does not return to the active
// total: callers that redistribute collateral back onto surviving CDPs
// must call AddCollateral for that share separately.
func (v *Vault) ReleaseFromLiquidation(amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	if v.pendingLiquidation.Cmp(amt) < 0 {
		return coreerrors.ErrInsufficientBalance
	}
	v.pendingLiquidation.Sub(v.pendingLiquidation, amt)
	return nil
}
