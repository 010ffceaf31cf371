package errors

import stderrors "errors"

var (
	ErrInsufficientPoolDeposit = stderrors.New("pool: withdrawal exceeds compounded deposit")
	ErrNoPoolDeposit           = stderrors.New("pool: account has no deposit")
)
