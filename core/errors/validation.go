package errors

import stderrors "errors"

// Validation errors leave state unchanged (spec §7 policy) and are always
// safe for a caller to retry after adjusting its request.
var (
	ErrInvalidAmount = stderrors.New("core: invalid amount")
	ErrBelowMinDebt  = stderrors.New("core: debt below minimum")
	ErrDustDebt      = stderrors.New("core: remaining debt below minimum (dust)")
	ErrCDPNotFound   = stderrors.New("core: cdp not found")
	ErrNotOwner      = stderrors.New("core: caller is not the cdp owner")
	ErrNotActive     = stderrors.New("core: cdp is not active")
)
