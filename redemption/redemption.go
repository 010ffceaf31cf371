// Package redemption implements the Redemption Engine (spec §4.9): a
// redeemer trades zkUSD for BTC-equivalent collateral, walking the CDP
// Manager's sorted index ascending and paying down the lowest-ratio
// Active CDPs first, skipping any candidate whose post-redemption ratio
// would fall under MCR, and sweeping any resulting sub-dust collateral
// remainder to the protocol treasury (spec §4.9 point 3), grounded on
// original_source/src/protocol/state_machine.rs's execute_redeem.
package redemption

import (
	"math/big"

	"github.com/AndeLabs/zkUSD/cdp"
	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/core/events"
	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/feeengine"
	"github.com/AndeLabs/zkUSD/ledger"
	"github.com/AndeLabs/zkUSD/protocolparams"
	"github.com/AndeLabs/zkUSD/vault"
	"github.com/AndeLabs/zkUSD/wad"
)

// Engine holds the parameters a redemption needs beyond what's already
// resident in the CDP Manager/Vault/Ledger/Fee Engine it's handed per call.
// Collateral itself is BTC custodied off-core (spec §1 Non-goals); the
// engine does not move funds to treasuryAccount directly, it only tracks
// how much has been swept there so an external settlement process can act
// on it.
type Engine struct {
	cfg             *protocolparams.Config
	treasuryAccount crypto.Address
	sweptToTreasury *big.Int
}

// New constructs a redemption Engine. treasuryAccount identifies the
// destination for sub-dust collateral remainders swept per spec §4.9 point 3.
func New(cfg *protocolparams.Config, treasuryAccount crypto.Address) *Engine {
	return &Engine{cfg: cfg, treasuryAccount: treasuryAccount, sweptToTreasury: wad.Zero()}
}

// TreasuryAccount returns the configured dust-sweep destination.
func (e *Engine) TreasuryAccount() crypto.Address { return e.treasuryAccount }

// SweptToTreasury returns the running total of dust collateral swept out
// of fully-redeemed CDPs.
func (e *Engine) SweptToTreasury() *big.Int { return new(big.Int).Set(e.sweptToTreasury) }

// Redeem implements spec §4.9's algorithm. now/blockHeight feed the fee
// engine's decay and history recording.
func (e *Engine) Redeem(
	cdps *cdp.Manager,
	vlt *vault.Vault,
	ldgr *ledger.Ledger,
	fees *feeengine.Engine,
	redeemer crypto.Address,
	amt, price *big.Int,
	now, blockHeight uint64,
) (events.Event, error) {
	if amt == nil || amt.Sign() <= 0 {
		return nil, coreerrors.ErrInvalidAmount
	}
	if ldgr.BalanceOf(redeemer).Cmp(amt) < 0 {
		return nil, coreerrors.ErrInsufficientBalance
	}

	fee := fees.RedemptionFee(now, blockHeight, amt, ldgr.TotalSupply())
	amtNet := new(big.Int).Sub(amt, fee)
	if amtNet.Sign() < 0 {
		amtNet = wad.Zero()
	}

	remaining := new(big.Int).Set(amtNet)
	collateralReturned := wad.Zero()
	var touched []uint64

	for _, id := range cdps.AscendingIDs(price) {
		if remaining.Sign() <= 0 {
			break
		}
		c, err := cdps.Get(id)
		if err != nil || c.Status != cdp.StatusActive {
			continue
		}
		cdps.ApplyPending(c)
		if c.Debt.Sign() == 0 {
			continue
		}

		redeemAmt := wad.Min(remaining, c.Debt)
		collToTake, err := wad.Div(redeemAmt, price)
		if err != nil {
			return nil, err
		}
		newDebt := new(big.Int).Sub(c.Debt, redeemAmt)
		newColl := new(big.Int).Sub(c.Collateral, collToTake)

		if newDebt.Sign() > 0 && newDebt.Cmp(e.cfg.MinDebt) < 0 {
			// A partial redemption would leave dust debt (spec §8 invariant
			// 4: every Active CDP has debt == 0 or debt >= MIN_DEBT), so
			// take the CDP's entire remaining debt instead and close it
			// fully rather than landing it in the dust zone (spec §4.9
			// point 3 / spec.md:250's worked example).
			redeemAmt = c.Debt
			collToTake, err = wad.Div(redeemAmt, price)
			if err != nil {
				return nil, err
			}
			newDebt = wad.Zero()
			newColl = new(big.Int).Sub(c.Collateral, collToTake)
		}

		if newDebt.Sign() > 0 {
			ratio, err := wad.Div(wad.Mul(newColl, price), newDebt)
			if err != nil || ratio.Cmp(e.cfg.MCR) < 0 {
				continue // post-redemption ratio would violate MCR: skip this CDP
			}
		}

		c.Debt = newDebt
		c.Collateral = newColl
		if err := vlt.RemoveCollateral(collToTake); err != nil {
			return nil, err
		}
		collateralReturned.Add(collateralReturned, collToTake)
		remaining.Sub(remaining, redeemAmt)
		touched = append(touched, id)

		if newDebt.Sign() == 0 && newColl.Sign() > 0 && newColl.Cmp(e.cfg.RedemptionDustThreshold) < 0 {
			if err := vlt.RemoveCollateral(newColl); err != nil {
				return nil, err
			}
			c.Collateral = wad.Zero()
			e.sweptToTreasury.Add(e.sweptToTreasury, newColl)
			// Dust stays with the protocol, not the redeemer — it never
			// joins collateralReturned.
		}
	}

	redeemedNet := new(big.Int).Sub(amtNet, remaining)
	tokensToBurn := new(big.Int).Add(redeemedNet, fee)
	if err := ldgr.Burn(redeemer, tokensToBurn); err != nil {
		return nil, err
	}

	return events.Redemption{
		Redeemer:           redeemer,
		AmountRedeemed:     tokensToBurn,
		Fee:                fee,
		CollateralReturned: collateralReturned,
		CDPsTouched:        touched,
	}, nil
}
