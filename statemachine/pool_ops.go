package statemachine

import (
	"math/big"

	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/core/events"
	"github.com/AndeLabs/zkUSD/crypto"
)

// PoolDeposit implements spec §4.6's Deposit plus the ledger/vault side
// effects the pool package itself never performs: it moves amt from
// account into the pool's custody account, then — since any settled
// collateral gain leaves the vault's custody on its way out to account —
// removes that gain from the vault total. Returns the gain paid out.
func (m *Machine) PoolDeposit(account crypto.Address, amt *big.Int, blockHeight uint64) (*big.Int, []events.Event, error) {
	var gainOut *big.Int
	evs, err := m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		if amt == nil || amt.Sign() <= 0 {
			return coreerrors.ErrInvalidAmount
		}
		if err := m.ldgr.Transfer(account, m.poolAccount, amt); err != nil {
			return err
		}
		gain, err := m.pool.Deposit(account, amt)
		if err != nil {
			return err
		}
		if gain.Sign() > 0 {
			if err := m.vlt.RemoveCollateral(gain); err != nil {
				return err
			}
		}
		gainOut = gain
		collector.Emit(events.StabilityPoolDeposit{
			Account:         account,
			Amount:          amt,
			NewTotalDeposit: m.pool.CompoundedDeposit(account),
		})
		return nil
	})
	return gainOut, evs, err
}

// PoolWithdraw implements spec §4.6's Withdraw: settles any pending gain,
// rejects a withdrawal exceeding the compounded deposit, then returns amt
// from the pool's custody account back to account.
func (m *Machine) PoolWithdraw(account crypto.Address, amt *big.Int, blockHeight uint64) (*big.Int, []events.Event, error) {
	var gainOut *big.Int
	evs, err := m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		if amt == nil || amt.Sign() <= 0 {
			return coreerrors.ErrInvalidAmount
		}
		gain, err := m.pool.Withdraw(account, amt)
		if err != nil {
			return err
		}
		if err := m.ldgr.Transfer(m.poolAccount, account, amt); err != nil {
			return err
		}
		if gain.Sign() > 0 {
			if err := m.vlt.RemoveCollateral(gain); err != nil {
				return err
			}
		}
		gainOut = gain
		collector.Emit(events.StabilityPoolWithdraw{
			Account:         account,
			Amount:          amt,
			NewTotalDeposit: m.pool.CompoundedDeposit(account),
		})
		return nil
	})
	return gainOut, evs, err
}

// PoolClaimGains implements spec §4.6's ClaimGains.
func (m *Machine) PoolClaimGains(account crypto.Address, blockHeight uint64) (*big.Int, []events.Event, error) {
	var gainOut *big.Int
	evs, err := m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		gain, err := m.pool.ClaimGains(account)
		if err != nil {
			return err
		}
		if gain.Sign() > 0 {
			if err := m.vlt.RemoveCollateral(gain); err != nil {
				return err
			}
		}
		gainOut = gain
		collector.Emit(events.StabilityPoolGainClaimed{Account: account, CollateralClaimed: gain})
		return nil
	})
	return gainOut, evs, err
}

// PoolAccountStatus is the pool_status query result (spec §6): a
// depositor's current compounded deposit and unsettled collateral gain.
type PoolAccountStatus struct {
	CompoundedDeposit *big.Int
	PendingGain       *big.Int
}

// PoolStatus implements spec §6's pool_status read-only query.
func (m *Machine) PoolStatus(account crypto.Address) PoolAccountStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return PoolAccountStatus{
		CompoundedDeposit: m.pool.CompoundedDeposit(account),
		PendingGain:       m.pool.PendingGain(account),
	}
}
