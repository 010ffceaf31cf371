package errors

import stderrors "errors"

var (
	ErrInsufficientBalance   = stderrors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = stderrors.New("ledger: insufficient allowance")
	ErrOverflowSupply        = stderrors.New("ledger: total supply overflow")
)
