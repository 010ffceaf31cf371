// Package cdp implements the CDP Manager (spec §4.5): per-position
// lifecycle (Active/Closed/Liquidated), ratio math, and the ascending
// sorted-ratio index used by both the liquidation and redemption engines to
// find candidates in sub-linear time (spec §3 "Sorted CDP index", §9 open
// question on its implementation).
package cdp

import (
	"math/big"
	"sort"

	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/wad"
)

// Status is a CDP's lifecycle state (spec §3). Once non-Active, no further
// mutation is permitted.
type Status uint8

const (
	StatusActive Status = iota
	StatusClosed
	StatusLiquidated
)

// CDP is one Collateralized Debt Position.
type CDP struct {
	ID              uint64
	Owner           crypto.Address
	Collateral      *big.Int
	Debt            *big.Int
	Status          Status
	CreatedAtBlock  uint64
	LastFeeSnapshot *big.Int

	// SnapshotLDebt / SnapshotLCollateral are the redistribution
	// accumulator snapshots taken at the last debt-altering op (spec
	// §4.7's "pending reward formula"); ApplyPending and Effective use
	// them against the manager's running L_debt/L_collateral totals.
	SnapshotLDebt       *big.Int
	SnapshotLCollateral *big.Int
}

// RatioOf computes wmul(collateral, price) / debt, or nil (meaning
// "infinite") if debt == 0, per spec §4.5's ratio-ordering rule that
// debt-free positions sort at the top of the index.
func RatioOf(collateral, debt, price *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return nil
	}
	value := wad.Mul(collateral, price)
	ratio, err := wad.Div(value, debt)
	if err != nil {
		return nil
	}
	return ratio
}

// Ratio returns the CDP's ratio at price using its raw (possibly stale)
// collateral/debt fields — callers touching an Active CDP should call
// ApplyPending first, or use the manager's Effective query for a read-only
// view that folds pending redistribution without mutating.
func (c *CDP) Ratio(price *big.Int) *big.Int {
	return RatioOf(c.Collateral, c.Debt, price)
}

// Manager holds the CDP map, the sorted index, the redistribution
// accumulators, and the monotonic id counter.
type Manager struct {
	cdps   map[uint64]*CDP
	index  []uint64 // authoritative id set; not kept in ratio order (see AscendingIDs)
	nextID uint64
	price  *big.Int // last price passed to AscendingIDs, for diagnostics
	lDebt  *big.Int
	lColl  *big.Int
}

// New returns an empty manager.
func New() *Manager {
	return &Manager{
		cdps:  make(map[uint64]*CDP),
		lDebt: wad.Zero(),
		lColl: wad.Zero(),
	}
}

// Get returns the CDP with the given id.
func (m *Manager) Get(id uint64) (*CDP, error) {
	c, ok := m.cdps[id]
	if !ok {
		return nil, coreerrors.ErrCDPNotFound
	}
	return c, nil
}

// LDebt and LCollateral expose the redistribution accumulators for
// snapshotting (spec §4.10).
func (m *Manager) LDebt() *big.Int      { return new(big.Int).Set(m.lDebt) }
func (m *Manager) LCollateral() *big.Int { return new(big.Int).Set(m.lColl) }

// ApplyPending folds any redistribution accrued since the CDP's last touch
// into its collateral/debt and refreshes its snapshot (spec §4.7's "Applied
// and snapshots refreshed on every CDP-altering operation"). Must be called
// before any read or mutation of c.Collateral/c.Debt that the caller will
// persist.
func (m *Manager) ApplyPending(c *CDP) {
	if c.Status != StatusActive {
		return
	}
	if c.SnapshotLDebt == nil {
		c.SnapshotLDebt = wad.Zero()
	}
	if c.SnapshotLCollateral == nil {
		c.SnapshotLCollateral = wad.Zero()
	}
	deltaLDebt := new(big.Int).Sub(m.lDebt, c.SnapshotLDebt)
	deltaLColl := new(big.Int).Sub(m.lColl, c.SnapshotLCollateral)
	if deltaLDebt.Sign() != 0 {
		pendingDebt := wad.Mul(c.Collateral, deltaLDebt)
		c.Debt.Add(c.Debt, pendingDebt)
	}
	if deltaLColl.Sign() != 0 {
		pendingColl := wad.Mul(c.Collateral, deltaLColl)
		c.Collateral.Add(c.Collateral, pendingColl)
	}
	c.SnapshotLDebt = new(big.Int).Set(m.lDebt)
	c.SnapshotLCollateral = new(big.Int).Set(m.lColl)
}

// Effective returns debt and collateral with any pending redistribution
// folded in, without mutating c — for read-only queries. Contrast
// ApplyPending, which folds the same amounts in and persists them onto c.
func (m *Manager) Effective(c *CDP) (debt, collateral *big.Int) {
	debt = new(big.Int).Set(c.Debt)
	collateral = new(big.Int).Set(c.Collateral)
	if c.Status != StatusActive || c.SnapshotLDebt == nil {
		return debt, collateral
	}
	deltaLDebt := new(big.Int).Sub(m.lDebt, c.SnapshotLDebt)
	deltaLColl := new(big.Int).Sub(m.lColl, c.SnapshotLCollateral)
	if deltaLDebt.Sign() != 0 {
		debt.Add(debt, wad.Mul(c.Collateral, deltaLDebt))
	}
	if deltaLColl.Sign() != 0 {
		collateral.Add(collateral, wad.Mul(c.Collateral, deltaLColl))
	}
	return debt, collateral
}

// Redistribute bumps the global accumulators by the pro-rata share of
// debtDelta/collDelta over the remaining active collateral (spec §4.7 point
// 4). Called by the liquidation engine for the residual after pool
// absorption.
func (m *Manager) Redistribute(debtDelta, collDelta, activeCollateralTotal *big.Int) error {
	if activeCollateralTotal == nil || activeCollateralTotal.Sign() == 0 {
		return coreerrors.ErrNoLiquidableCDPs
	}
	debtPerUnit, err := wad.Div(debtDelta, activeCollateralTotal)
	if err != nil {
		return err
	}
	collPerUnit, err := wad.Div(collDelta, activeCollateralTotal)
	if err != nil {
		return err
	}
	m.lDebt.Add(m.lDebt, debtPerUnit)
	m.lColl.Add(m.lColl, collPerUnit)
	return nil
}

// Insert adds a new Active CDP under the next monotonic id and places it in
// the sorted index.
func (m *Manager) Insert(owner crypto.Address, collateral, debt *big.Int, createdAtBlock uint64, feeSnapshot *big.Int) *CDP {
	m.nextID++
	c := &CDP{
		ID:                  m.nextID,
		Owner:               owner,
		Collateral:          collateral,
		Debt:                debt,
		Status:              StatusActive,
		CreatedAtBlock:      createdAtBlock,
		LastFeeSnapshot:     feeSnapshot,
		SnapshotLDebt:       new(big.Int).Set(m.lDebt),
		SnapshotLCollateral: new(big.Int).Set(m.lColl),
	}
	m.cdps[c.ID] = c
	m.index = append(m.index, c.ID)
	return c
}

// Remove deletes id from the sorted index (not from the CDP map — callers
// mark Status instead so historical queries can still resolve the id).
func (m *Manager) Remove(id uint64) {
	pos := m.indexFind(id)
	if pos >= 0 {
		m.index = append(m.index[:pos], m.index[pos+1:]...)
	}
}

// AscendingIDs returns CDP ids ordered ascending by ratio at the given
// price (nil-ratio / debt-free CDPs sort last, per spec §4.5). Ratios move
// with every oracle price update, so unlike a price-independent key the
// index is re-sorted here via sort.Slice rather than kept incrementally
// ordered; Insert/Remove only keep the id set itself correct in O(1)/O(n).
func (m *Manager) AscendingIDs(price *big.Int) []uint64 {
	m.price = price
	out := make([]uint64, len(m.index))
	copy(out, m.index)
	sort.SliceStable(out, func(i, j int) bool {
		return m.less(out[i], out[j], price)
	})
	return out
}

// All returns every CDP in the manager, for iteration by the state root
// serializer (spec §4.10) or invariant checks (spec §8).
func (m *Manager) All() map[uint64]*CDP {
	return m.cdps
}

// TotalDebt sums effective debt (pending redistribution folded in, see
// Effective) over every Active CDP, used by the fee engine's utilization
// premium and the recovery manager's TCR (spec §4.4, §4.8). Raw c.Debt is
// stale for any survivor not yet touched since the last Redistribute, so
// this must fold the pending delta rather than sum the field directly.
func (m *Manager) TotalDebt() *big.Int {
	total := wad.Zero()
	for _, c := range m.cdps {
		if c.Status == StatusActive {
			debt, _ := m.Effective(c)
			total.Add(total, debt)
		}
	}
	return total
}

// TotalCollateral sums effective collateral (pending redistribution folded
// in, see Effective) over every Active CDP, for the global invariant check
// (spec §8 invariant 2).
func (m *Manager) TotalCollateral() *big.Int {
	total := wad.Zero()
	for _, c := range m.cdps {
		if c.Status == StatusActive {
			_, collateral := m.Effective(c)
			total.Add(total, collateral)
		}
	}
	return total
}

func (m *Manager) less(a, b uint64, price *big.Int) bool {
	ca, cb := m.cdps[a], m.cdps[b]
	ra, rb := ca.Ratio(price), cb.Ratio(price)
	if ra == nil && rb == nil {
		return a < b
	}
	if ra == nil {
		return false
	}
	if rb == nil {
		return true
	}
	cmp := ra.Cmp(rb)
	if cmp == 0 {
		return a < b
	}
	return cmp < 0
}

func (m *Manager) indexFind(id uint64) int {
	for i, v := range m.index {
		if v == id {
			return i
		}
	}
	return -1
}
