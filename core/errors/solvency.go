package errors

import stderrors "errors"

// Solvency errors reject an operation that would leave a CDP, or the
// system as a whole, under-collateralized. Like validation errors, they
// leave state unchanged.
var (
	ErrBelowMCR           = stderrors.New("core: below minimum collateral ratio")
	ErrBelowCCRInRecovery = stderrors.New("core: below critical collateral ratio during recovery mode")
	ErrTCRWouldDecrease   = stderrors.New("core: operation would decrease total collateral ratio in recovery mode")
	ErrWithdrawInRecovery = stderrors.New("core: collateral withdrawal is blocked during recovery mode")
)
