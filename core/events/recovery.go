package events

import (
	"math/big"
	"strconv"

	"github.com/AndeLabs/zkUSD/core/types"
)

const (
	TypeRecoveryModeChanged = "recovery.mode_changed"
	TypeBaseRateUpdated     = "fee.base_rate_updated"
)

// RecoveryModeChanged is emitted whenever the recovery manager's mode
// transitions (spec §4.8); Entering is false on a Recovery -> Normal exit.
type RecoveryModeChanged struct {
	Entering bool
	TCR      *big.Int
}

func (RecoveryModeChanged) EventType() string { return TypeRecoveryModeChanged }

func (e RecoveryModeChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeRecoveryModeChanged,
		Attributes: map[string]string{
			"entering": strconv.FormatBool(e.Entering),
			"tcr":      e.TCR.String(),
		},
	}
}

// BaseRateUpdated describes a decay or bump of the fee engine's base rate
// (spec §4.4). No operation of the state machine emits it; base-rate
// changes show only through the fee engine's state and the state root.
type BaseRateUpdated struct {
	OldRate *big.Int
	NewRate *big.Int
}

func (BaseRateUpdated) EventType() string { return TypeBaseRateUpdated }

func (e BaseRateUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeBaseRateUpdated,
		Attributes: map[string]string{
			"oldRate": e.OldRate.String(),
			"newRate": e.NewRate.String(),
		},
	}
}
