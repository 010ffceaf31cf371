// Package feeengine implements the protocol's dynamic fee mechanism (spec
// §4.4): base-rate decay by repeated-squaring exponentiation, the borrowing
// fee charged on mint, and the redemption fee (with its base-rate bump)
// charged on redeem. It also keeps a bounded redemption-fee history ring
// purely for statistics (SPEC_FULL.md supplement 4) — the ring never
// influences the fee formulas themselves, which are exactly as spec.md
// §4.4 defines them.
package feeengine

import (
	"math/big"

	"github.com/AndeLabs/zkUSD/wad"
)

// maxUtilizationPremiumMultiple bounds utilization_premium at 4x total/target
// debt (spec §4.4: "premium up to 5x base" counting the base rate itself).
var maxUtilizationPremiumMultiple = wad.New(4)

// RedemptionRecord is one bounded-history entry (SPEC_FULL.md supplement 4).
type RedemptionRecord struct {
	BlockHeight uint64
	Amount      *big.Int
	Fee         *big.Int
	BaseRate    *big.Int
}

// Engine holds the fee state of spec §3 "Fee State": base_rate,
// last_fee_op_time, last_redemption_time, plus the bounded history ring.
type Engine struct {
	baseRate           *big.Int
	lastFeeOpTime      uint64
	lastRedemptionTime uint64

	decayFactor *big.Int // k, smallest with PowWad(k, HalfLifeMinutes) >= 0.5

	floor *big.Int
	ceil  *big.Int

	history    []RedemptionRecord
	historyCap int

	totalFeesAccrued *big.Int
}

// New constructs a fee engine. halfLifeMinutes, floor, and ceil are taken
// from protocolparams.Config; historyCap bounds the redemption record ring.
func New(halfLifeMinutes uint64, floor, ceil *big.Int, historyCap int) *Engine {
	return &Engine{
		baseRate:         wad.Zero(),
		decayFactor:      wad.DecayFactorForHalfLife(halfLifeMinutes),
		floor:            floor,
		ceil:             ceil,
		historyCap:       historyCap,
		totalFeesAccrued: wad.Zero(),
	}
}

// BaseRate returns the current base rate.
func (e *Engine) BaseRate() *big.Int {
	return new(big.Int).Set(e.baseRate)
}

// TotalFeesAccrued returns the running sum of borrowing + redemption fees.
func (e *Engine) TotalFeesAccrued() *big.Int {
	return new(big.Int).Set(e.totalFeesAccrued)
}

// History returns the bounded redemption-fee record ring, oldest first.
func (e *Engine) History() []RedemptionRecord {
	out := make([]RedemptionRecord, len(e.history))
	copy(out, e.history)
	return out
}

// decay applies base_rate *= pow_wad(k, minutesElapsed) and advances
// last_fee_op_time. Both the borrowing-fee and redemption-fee paths call
// this first (spec §4.4 steps 1).
func (e *Engine) decay(now uint64) {
	if now <= e.lastFeeOpTime {
		return
	}
	elapsedMinutes := (now - e.lastFeeOpTime) / 60
	if elapsedMinutes > 0 {
		e.baseRate = wad.Mul(e.baseRate, wad.PowWad(e.decayFactor, elapsedMinutes))
	}
	e.lastFeeOpTime = now
}

// BorrowingFee computes and accrues the fee on a mint of debtDelta,
// returning the fee amount to add on top of debtDelta (spec §4.4).
func (e *Engine) BorrowingFee(now uint64, debtDelta, totalDebt, targetDebt *big.Int) *big.Int {
	e.decay(now)
	rate := e.clampedRate(e.utilizationPremium(totalDebt, targetDebt))
	fee := wad.Mul(debtDelta, rate)
	e.totalFeesAccrued.Add(e.totalFeesAccrued, fee)
	return fee
}

// utilizationPremium implements spec §4.4's
// min(total_debt/target_debt, 4) * base_rate, defined as 0 when
// target_debt == 0 (the §9 zero-supply fee-floor guard).
func (e *Engine) utilizationPremium(totalDebt, targetDebt *big.Int) *big.Int {
	if targetDebt == nil || targetDebt.Sign() == 0 {
		return wad.Zero()
	}
	ratio, err := wad.Div(totalDebt, targetDebt)
	if err != nil {
		return wad.Zero()
	}
	ratio = wad.Min(ratio, maxUtilizationPremiumMultiple)
	return wad.Mul(ratio, e.baseRate)
}

func (e *Engine) clampedRate(premium *big.Int) *big.Int {
	rate := new(big.Int).Add(e.baseRate, premium)
	return wad.Clamp(rate, e.floor, e.ceil)
}

// RedemptionFee computes the redemption fee on redeemAmt, bumps the base
// rate by redeemAmt/totalSupply (capped at ceil), and records the
// redemption for the history ring (spec §4.4, SPEC_FULL.md supplement 4).
func (e *Engine) RedemptionFee(now uint64, blockHeight uint64, redeemAmt, totalSupply *big.Int) *big.Int {
	e.decay(now)

	if totalSupply != nil && totalSupply.Sign() > 0 {
		bump, err := wad.Div(redeemAmt, totalSupply)
		if err == nil {
			newRate := new(big.Int).Add(e.baseRate, bump)
			e.baseRate = wad.Clamp(newRate, wad.Zero(), e.ceil)
		}
	}

	fee := wad.Mul(redeemAmt, wad.Clamp(e.baseRate, e.floor, e.ceil))
	e.lastRedemptionTime = now
	e.totalFeesAccrued.Add(e.totalFeesAccrued, fee)

	e.record(RedemptionRecord{
		BlockHeight: blockHeight,
		Amount:      new(big.Int).Set(redeemAmt),
		Fee:         new(big.Int).Set(fee),
		BaseRate:    e.BaseRate(),
	})
	return fee
}

func (e *Engine) record(r RedemptionRecord) {
	if e.historyCap <= 0 {
		return
	}
	e.history = append(e.history, r)
	if len(e.history) > e.historyCap {
		e.history = e.history[len(e.history)-e.historyCap:]
	}
}

// LastFeeOpTime and LastRedemptionTime expose the fee state's timestamps
// for snapshotting (spec §4.10's canonical serialization).
func (e *Engine) LastFeeOpTime() uint64      { return e.lastFeeOpTime }
func (e *Engine) LastRedemptionTime() uint64 { return e.lastRedemptionTime }

// Restore rehydrates the engine's resident fields from a snapshot, used by
// the state machine's Storage.load path.
func (e *Engine) Restore(baseRate *big.Int, lastFeeOpTime, lastRedemptionTime uint64) {
	e.baseRate = new(big.Int).Set(baseRate)
	e.lastFeeOpTime = lastFeeOpTime
	e.lastRedemptionTime = lastRedemptionTime
}
