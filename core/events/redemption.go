package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/AndeLabs/zkUSD/core/types"
	"github.com/AndeLabs/zkUSD/crypto"
)

const TypeRedemption = "redemption.executed"

// Redemption is emitted once per redeem() call, summarizing the sweep
// across whichever CDPs absorbed it (spec §4.9).
type Redemption struct {
	Redeemer           crypto.Address
	AmountRedeemed     *big.Int
	Fee                *big.Int
	CollateralReturned *big.Int
	CDPsTouched        []uint64
}

func (Redemption) EventType() string { return TypeRedemption }

func (e Redemption) Event() *types.Event {
	ids := make([]string, len(e.CDPsTouched))
	for i, id := range e.CDPsTouched {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return &types.Event{
		Type: TypeRedemption,
		Attributes: map[string]string{
			"redeemer":           e.Redeemer.String(),
			"amountRedeemed":     e.AmountRedeemed.String(),
			"fee":                e.Fee.String(),
			"collateralReturned": e.CollateralReturned.String(),
			"cdpsTouched":        strings.Join(ids, ","),
		},
	}
}
