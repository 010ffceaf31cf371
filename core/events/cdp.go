package events

import (
	"math/big"
	"strconv"

	"github.com/AndeLabs/zkUSD/core/types"
	"github.com/AndeLabs/zkUSD/crypto"
)

const (
	TypeCDPOpened           = "cdp.opened"
	TypeCDPClosed           = "cdp.closed"
	TypeCDPLiquidated       = "cdp.liquidated"
	TypeCollateralDeposited = "cdp.collateral_deposited"
	TypeCollateralWithdrawn = "cdp.collateral_withdrawn"
	TypeDebtMinted          = "cdp.debt_minted"
	TypeDebtRepaid          = "cdp.debt_repaid"
)

// CDPOpened is emitted once OpenCDP admits a new position (spec §4.5).
type CDPOpened struct {
	CDPID      uint64
	Owner      crypto.Address
	Collateral *big.Int
	Debt       *big.Int
	Fee        *big.Int
}

func (CDPOpened) EventType() string { return TypeCDPOpened }

func (e CDPOpened) Event() *types.Event {
	return &types.Event{
		Type: TypeCDPOpened,
		Attributes: map[string]string{
			"cdpId":      strconv.FormatUint(e.CDPID, 10),
			"owner":      e.Owner.String(),
			"collateral": e.Collateral.String(),
			"debt":       e.Debt.String(),
			"fee":        e.Fee.String(),
		},
	}
}

// CDPClosed is emitted when CloseCDP returns all collateral to the owner.
type CDPClosed struct {
	CDPID              uint64
	Owner              crypto.Address
	CollateralReturned *big.Int
}

func (CDPClosed) EventType() string { return TypeCDPClosed }

func (e CDPClosed) Event() *types.Event {
	return &types.Event{
		Type: TypeCDPClosed,
		Attributes: map[string]string{
			"cdpId":              strconv.FormatUint(e.CDPID, 10),
			"owner":              e.Owner.String(),
			"collateralReturned": e.CollateralReturned.String(),
		},
	}
}

// CDPLiquidated is emitted by the liquidation engine for each candidate it
// closes out (spec §4.7).
type CDPLiquidated struct {
	CDPID             uint64
	Owner             crypto.Address
	Collateral        *big.Int
	Debt              *big.Int
	OffsetByPool      *big.Int
	Redistributed     *big.Int
	LiquidatorGasComp *big.Int
}

func (CDPLiquidated) EventType() string { return TypeCDPLiquidated }

func (e CDPLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeCDPLiquidated,
		Attributes: map[string]string{
			"cdpId":             strconv.FormatUint(e.CDPID, 10),
			"owner":             e.Owner.String(),
			"collateral":        e.Collateral.String(),
			"debt":              e.Debt.String(),
			"offsetByPool":      e.OffsetByPool.String(),
			"redistributed":     e.Redistributed.String(),
			"liquidatorGasComp": e.LiquidatorGasComp.String(),
		},
	}
}

// CollateralDeposited is emitted by Deposit (spec §4.5).
type CollateralDeposited struct {
	CDPID  uint64
	Payer  crypto.Address
	Amount *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralDeposited,
		Attributes: map[string]string{
			"cdpId":  strconv.FormatUint(e.CDPID, 10),
			"payer":  e.Payer.String(),
			"amount": e.Amount.String(),
		},
	}
}

// CollateralWithdrawn is emitted by Withdraw (spec §4.5).
type CollateralWithdrawn struct {
	CDPID  uint64
	Owner  crypto.Address
	Amount *big.Int
}

func (CollateralWithdrawn) EventType() string { return TypeCollateralWithdrawn }

func (e CollateralWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralWithdrawn,
		Attributes: map[string]string{
			"cdpId":  strconv.FormatUint(e.CDPID, 10),
			"owner":  e.Owner.String(),
			"amount": e.Amount.String(),
		},
	}
}

// DebtMinted is emitted by Mint (spec §4.5). OpenCDP's initial mint is
// reported by CDPOpened instead.
type DebtMinted struct {
	CDPID uint64
	Owner crypto.Address
	// Requested is the caller-requested increase; Fee is the borrowing fee
	// added on top (spec §4.4); the CDP's debt grows by Requested+Fee.
	Requested *big.Int
	Fee       *big.Int
}

func (DebtMinted) EventType() string { return TypeDebtMinted }

func (e DebtMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeDebtMinted,
		Attributes: map[string]string{
			"cdpId":     strconv.FormatUint(e.CDPID, 10),
			"owner":     e.Owner.String(),
			"requested": e.Requested.String(),
			"fee":       e.Fee.String(),
		},
	}
}

// DebtRepaid is emitted by Repay (spec §4.5).
type DebtRepaid struct {
	CDPID  uint64
	Payer  crypto.Address
	Amount *big.Int
}

func (DebtRepaid) EventType() string { return TypeDebtRepaid }

func (e DebtRepaid) Event() *types.Event {
	return &types.Event{
		Type: TypeDebtRepaid,
		Attributes: map[string]string{
			"cdpId":  strconv.FormatUint(e.CDPID, 10),
			"payer":  e.Payer.String(),
			"amount": e.Amount.String(),
		},
	}
}
