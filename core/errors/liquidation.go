package errors

import stderrors "errors"

// ErrNoLiquidableCDPs is advisory: callers that opportunistically invoke
// liquidation should not treat it as a failure.
var ErrNoLiquidableCDPs = stderrors.New("liquidation: no liquidable cdps")
