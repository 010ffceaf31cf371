package errors

import stderrors "errors"

var (
	ErrStalePrice     = stderrors.New("oracle: price is stale")
	ErrPriceDeviation = stderrors.New("oracle: price deviates beyond tolerance")
)
