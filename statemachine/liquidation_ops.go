package statemachine

import (
	"math/big"

	"github.com/AndeLabs/zkUSD/core/events"
	"github.com/AndeLabs/zkUSD/crypto"
)

// LiquidateBatch implements spec §6's liquidate_batch: scans the sorted
// index for candidates under the mode-appropriate threshold and liquidates
// up to maxCount of them (0 means unbounded). Fails with
// ErrNoLiquidableCDPs if the batch is empty — advisory, since callers may
// invoke this opportunistically every block.
func (m *Machine) LiquidateBatch(maxCount int, blockHeight uint64) ([]events.Event, error) {
	return m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		liquidated, err := m.liq.LiquidateBatch(m.cdps, m.pool, m.vlt, m.ldgr, price, m.rec.Mode(), blockHeight, maxCount)
		if err != nil {
			return err
		}
		for _, e := range liquidated {
			collector.Emit(e)
		}
		return nil
	})
}

// Redeem implements spec §6's redeem(amt): trades redeemer's zkUSD for
// BTC-equivalent collateral by walking the sorted index ascending and
// paying down the lowest-ratio Active CDPs first.
func (m *Machine) Redeem(redeemer crypto.Address, amt *big.Int, blockHeight uint64) ([]events.Event, error) {
	return m.apply(blockHeight, func(price *big.Int, now uint64, collector *events.Collector) error {
		ev, err := m.redeem.Redeem(m.cdps, m.vlt, m.ldgr, m.fees, redeemer, amt, price, now, blockHeight)
		if err != nil {
			return err
		}
		collector.Emit(ev)
		return nil
	})
}
