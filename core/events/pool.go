package events

import (
	"math/big"

	"github.com/AndeLabs/zkUSD/core/types"
	"github.com/AndeLabs/zkUSD/crypto"
)

const (
	TypeStabilityPoolDeposit     = "pool.deposit"
	TypeStabilityPoolWithdraw    = "pool.withdraw"
	TypeStabilityPoolGainClaimed = "pool.gain_claimed"
)

// StabilityPoolDeposit is emitted by Deposit (spec §4.6).
type StabilityPoolDeposit struct {
	Account         crypto.Address
	Amount          *big.Int
	NewTotalDeposit *big.Int
}

func (StabilityPoolDeposit) EventType() string { return TypeStabilityPoolDeposit }

func (e StabilityPoolDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeStabilityPoolDeposit,
		Attributes: map[string]string{
			"account":         e.Account.String(),
			"amount":          e.Amount.String(),
			"newTotalDeposit": e.NewTotalDeposit.String(),
		},
	}
}

// StabilityPoolWithdraw is emitted by Withdraw (spec §4.6).
type StabilityPoolWithdraw struct {
	Account         crypto.Address
	Amount          *big.Int
	NewTotalDeposit *big.Int
}

func (StabilityPoolWithdraw) EventType() string { return TypeStabilityPoolWithdraw }

func (e StabilityPoolWithdraw) Event() *types.Event {
	return &types.Event{
		Type: TypeStabilityPoolWithdraw,
		Attributes: map[string]string{
			"account":         e.Account.String(),
			"amount":          e.Amount.String(),
			"newTotalDeposit": e.NewTotalDeposit.String(),
		},
	}
}

// StabilityPoolGainClaimed is emitted by ClaimGains (spec §4.6).
type StabilityPoolGainClaimed struct {
	Account           crypto.Address
	CollateralClaimed *big.Int
}

func (StabilityPoolGainClaimed) EventType() string { return TypeStabilityPoolGainClaimed }

func (e StabilityPoolGainClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeStabilityPoolGainClaimed,
		Attributes: map[string]string{
			"account":           e.Account.String(),
			"collateralClaimed": e.CollateralClaimed.String(),
		},
	}
}
