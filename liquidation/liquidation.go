// Package liquidation implements the Liquidation Engine (spec §4.7):
// candidate selection over the CDP Manager's sorted index, pool-first
// absorption, and pro-rata redistribution fallback. It also carries the
// bounded liquidation event/statistics ledger and the bonus+gas-compensation
// split SPEC_FULL.md supplements 1 and 2 add on top of spec.md's single
// "implementation-defined cap" clause, grounded on
// original_source/src/liquidation/engine.rs's LiquidationEngine and
// calculate_liquidator_incentive.
package liquidation

import (
	"math/big"

	"github.com/AndeLabs/zkUSD/cdp"
	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/core/events"
	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/ledger"
	"github.com/AndeLabs/zkUSD/protocolparams"
	"github.com/AndeLabs/zkUSD/recovery"
	"github.com/AndeLabs/zkUSD/stabilitypool"
	"github.com/AndeLabs/zkUSD/vault"
	"github.com/AndeLabs/zkUSD/wad"
)

const basisPoints = 10_000

// Record is one bounded liquidation-history entry (SPEC_FULL.md supplement
// 1), grounded on the Rust LiquidationEvent.
type Record struct {
	BlockHeight       uint64
	CDPID             uint64
	Owner             crypto.Address
	Collateral        *big.Int
	Debt              *big.Int
	RatioAtLiquidation *big.Int
	OffsetByPool      *big.Int
	Redistributed     *big.Int
	LiquidatorBonus   *big.Int
	LiquidatorGasComp *big.Int
	// ProtocolShare / DeveloperShare are the routed portions of
	// LiquidatorBonus+LiquidatorGasComp per cfg.CollateralRouting
	// (SPEC_FULL.md supplement 5); the remainder went to the liquidator.
	ProtocolShare  *big.Int
	DeveloperShare *big.Int
}

// Statistics mirrors the Rust engine's running totals.
type Statistics struct {
	TotalLiquidations     uint64
	TotalDebtLiquidated   *big.Int
	TotalCollateralSeized *big.Int
}

// Engine holds the bounded history ring and running totals; it is stateless
// with respect to CDPs/pool/vault/ledger, which callers pass into
// LiquidateBatch so the engine composes with the state machine's single
// lock rather than holding its own copies.
type Engine struct {
	cfg            *protocolparams.Config
	poolAccount    crypto.Address // custody address holding the stability pool's token balance
	history        []Record
	totalLiqs      uint64
	totalDebt      *big.Int
	totalColl      *big.Int
}

// New constructs an Engine. poolAccount is the address whose ledger balance
// backs the stability pool's deposits; liquidation debt offset by the pool
// is burned from this account (spec §4.6's Absorb only updates pool
// accounting, not the token ledger).
func New(cfg *protocolparams.Config, poolAccount crypto.Address) *Engine {
	return &Engine{
		cfg:         cfg,
		poolAccount: poolAccount,
		totalDebt:   wad.Zero(),
		totalColl:   wad.Zero(),
	}
}

// Statistics returns the engine's running totals.
func (e *Engine) Statistics() Statistics {
	return Statistics{
		TotalLiquidations:     e.totalLiqs,
		TotalDebtLiquidated:   new(big.Int).Set(e.totalDebt),
		TotalCollateralSeized: new(big.Int).Set(e.totalColl),
	}
}

// History returns the bounded liquidation record ring, oldest first.
func (e *Engine) History() []Record {
	out := make([]Record, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) record(r Record) {
	if e.cfg.LiquidationHistoryCap <= 0 {
		return
	}
	e.history = append(e.history, r)
	if len(e.history) > e.cfg.LiquidationHistoryCap {
		e.history = e.history[len(e.history)-e.cfg.LiquidationHistoryCap:]
	}
}

// activeCollateralTotal sums collateral over every still-Active CDP,
// excluding any ids already liquidated earlier in the same batch.
func activeCollateralTotal(cdps *cdp.Manager) *big.Int {
	total := wad.Zero()
	for _, c := range cdps.All() {
		if c.Status == cdp.StatusActive {
			total.Add(total, c.Collateral)
		}
	}
	return total
}

// incentive computes the liquidator's bonus and gas-compensation split from
// a CDP's debt/collateral at the given price, per SPEC_FULL.md supplement
// 2: bonus = min(LIQUIDATION_BONUS_BPS * debt_in_BTC_terms, cap_bps *
// collateral); gas comp is a fixed stipend capped by whatever collateral
// surplus remains after the bonus.
func incentive(cfg *protocolparams.Config, debt, collateral, price *big.Int) (bonus, gasComp *big.Int, err error) {
	debtInBTC, err := wad.Div(debt, price)
	if err != nil {
		return nil, nil, err
	}
	bonusBps := wad.NewFraction(int64(cfg.LiquidationBonusBps), basisPoints)
	bonusRaw := wad.Mul(debtInBTC, bonusBps)

	capBps := wad.NewFraction(int64(cfg.LiquidationBonusCapBps), basisPoints)
	bonusCap := wad.Mul(collateral, capBps)

	bonus = wad.Min(bonusRaw, bonusCap)
	bonus = wad.Min(bonus, collateral)

	remaining := new(big.Int).Sub(collateral, bonus)
	gasComp = wad.Min(cfg.LiquidationGasCompensation, remaining)
	return bonus, gasComp, nil
}

// routeIncentive splits a liquidator incentive amount across liquidator,
// protocol treasury, and an optional developer collector per
// cfg.CollateralRouting, grounded on native/lending's CollateralRouting
// split (SPEC_FULL.md supplement 5). Returns the three shares; remainders
// from basis-point rounding accrue to the liquidator's share.
func routeIncentive(cfg *protocolparams.Config, total *big.Int) (liquidatorShare, protocolShare, developerShare *big.Int) {
	r := cfg.CollateralRouting
	protocolShare = wad.Mul(total, wad.NewFraction(int64(r.ProtocolBps), basisPoints))
	developerShare = big.NewInt(0)
	if r.DeveloperFeeCollector != "" {
		developerShare = wad.Mul(total, wad.NewFraction(int64(r.DeveloperBps), basisPoints))
	}
	liquidatorShare = new(big.Int).Sub(total, protocolShare)
	liquidatorShare.Sub(liquidatorShare, developerShare)
	return liquidatorShare, protocolShare, developerShare
}

// LiquidateBatch scans cdps' sorted index ascending and liquidates every
// candidate under the mode-appropriate threshold, up to maxBatch (0 means
// unbounded). Returns the events emitted, in liquidation order. Fails with
// ErrNoLiquidableCDPs if the batch is empty — advisory, per spec §4.7,
// since callers may invoke this opportunistically every block.
func (e *Engine) LiquidateBatch(
	cdps *cdp.Manager,
	pool *stabilitypool.Pool,
	vlt *vault.Vault,
	ldgr *ledger.Ledger,
	price *big.Int,
	mode recovery.Mode,
	blockHeight uint64,
	maxBatch int,
) ([]events.Event, error) {
	threshold := e.cfg.MCR
	if mode == recovery.ModeRecovery {
		threshold = e.cfg.CCR
	}

	ids := cdps.AscendingIDs(price)
	var emitted []events.Event
	liquidatedAny := false

	for _, id := range ids {
		if maxBatch > 0 && len(emitted) >= maxBatch {
			break
		}
		c, err := cdps.Get(id)
		if err != nil || c.Status != cdp.StatusActive {
			continue
		}
		cdps.ApplyPending(c)

		ratio := c.Ratio(price)
		if ratio == nil || ratio.Cmp(threshold) >= 0 {
			break // ascending order: nothing past this point is liquidable
		}

		ev, err := e.liquidateOne(cdps, pool, vlt, ldgr, c, price, blockHeight)
		if err != nil {
			return emitted, err
		}
		emitted = append(emitted, ev)
		liquidatedAny = true
	}

	if !liquidatedAny {
		return nil, coreerrors.ErrNoLiquidableCDPs
	}
	return emitted, nil
}

func (e *Engine) liquidateOne(
	cdps *cdp.Manager,
	pool *stabilitypool.Pool,
	vlt *vault.Vault,
	ldgr *ledger.Ledger,
	c *cdp.CDP,
	price *big.Int,
	blockHeight uint64,
) (events.Event, error) {
	collateral := new(big.Int).Set(c.Collateral)
	debt := new(big.Int).Set(c.Debt)
	ratioAtLiq := c.Ratio(price)

	bonus, gasComp, err := incentive(e.cfg, debt, collateral, price)
	if err != nil {
		return nil, err
	}
	liquidatorTotal := new(big.Int).Add(bonus, gasComp)
	if liquidatorTotal.Cmp(collateral) > 0 {
		liquidatorTotal = new(big.Int).Set(collateral)
	}
	remaining := new(big.Int).Sub(collateral, liquidatorTotal)

	offset := wad.Min(debt, pool.TotalDeposits())
	var collForPool *big.Int
	if debt.Sign() > 0 {
		collForPool, err = wad.MulDivDown(offset, remaining, debt)
		if err != nil {
			return nil, err
		}
	} else {
		collForPool = wad.Zero()
	}
	residualDebt := new(big.Int).Sub(debt, offset)
	residualColl := new(big.Int).Sub(remaining, collForPool)

	if err := vlt.ReserveForLiquidation(collateral); err != nil {
		return nil, err
	}
	if err := vlt.ReleaseFromLiquidation(liquidatorTotal); err != nil {
		return nil, err
	}

	if offset.Sign() > 0 {
		if err := pool.Absorb(offset, collForPool); err != nil {
			return nil, err
		}
		if err := ldgr.Burn(e.poolAccount, offset); err != nil {
			return nil, err
		}
		// collForPool stays in custody — it now backs the pool's
		// collateral-gain buffer rather than a specific CDP, so it moves
		// back into the active total rather than leaving the vault.
		if err := vlt.ReleaseFromLiquidation(collForPool); err != nil {
			return nil, err
		}
		if err := vlt.AddCollateral(collForPool); err != nil {
			return nil, err
		}
	}
	if residualDebt.Sign() > 0 {
		// c is still marked Active at this point (it's downgraded below),
		// so subtract its own collateral from the redistribution weight
		// basis — it must not share in its own liquidation's fallout.
		activeTotal := new(big.Int).Sub(activeCollateralTotal(cdps), collateral)
		if err := cdps.Redistribute(residualDebt, residualColl, activeTotal); err != nil {
			return nil, err
		}
		// residualColl likewise stays in custody, pending each surviving
		// CDP's next ApplyPending folding its pro-rata share in.
		if err := vlt.ReleaseFromLiquidation(residualColl); err != nil {
			return nil, err
		}
		if err := vlt.AddCollateral(residualColl); err != nil {
			return nil, err
		}
	}

	c.Status = cdp.StatusLiquidated
	c.Debt = wad.Zero()
	c.Collateral = wad.Zero()
	cdps.Remove(c.ID)

	_, protocolShare, developerShare := routeIncentive(e.cfg, liquidatorTotal)

	e.totalLiqs++
	e.totalDebt.Add(e.totalDebt, debt)
	e.totalColl.Add(e.totalColl, collateral)
	e.record(Record{
		BlockHeight:        blockHeight,
		CDPID:              c.ID,
		Owner:              c.Owner,
		Collateral:         collateral,
		Debt:               debt,
		RatioAtLiquidation: ratioAtLiq,
		OffsetByPool:       offset,
		Redistributed:      residualDebt,
		LiquidatorBonus:    bonus,
		LiquidatorGasComp:  gasComp,
		ProtocolShare:      protocolShare,
		DeveloperShare:     developerShare,
	})

	return events.CDPLiquidated{
		CDPID:             c.ID,
		Owner:             c.Owner,
		Collateral:        collateral,
		Debt:              debt,
		OffsetByPool:      offset,
		Redistributed:     residualDebt,
		LiquidatorGasComp: gasComp,
	}, nil
}
