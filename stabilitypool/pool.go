// Package stabilitypool implements the classical scaling-factor loss
// absorption technique (spec §4.6): a single product P and a cumulative
// collateral-gain sum S, with epoch/scale counters that let a per-depositor
// snapshot compute its compounded deposit and accumulated gain in O(1)
// regardless of how many liquidations happened since the deposit was made.
//
// The half-step term at scale == snapshot_scale+1 (flagged as an open
// question by spec §9) is ported here from the classical algorithm rather
// than guessed: S is tracked per (epoch, scale) bucket, and each bucket
// accumulates from zero the moment its scale begins — it is not a single
// monotonic sum spanning scale changes. A depositor's gain is the sum of
// (a) growth in its own snapshot bucket since the snapshot, plus (b) the
// entire contents of the next bucket so far, divided by the scale factor
// 1e9 to renormalize it to the snapshot's smaller-magnitude P. A gap of two
// or more scales collapses the deposit to zero, since P must have crossed
// the rescale threshold twice, meaning the deposit was fully consumed
// between those events.
package stabilitypool

import (
	"bytes"
	"math/big"
	"sort"

	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/wad"
)

// scaleFactor is the 1e9 rescaling applied to P (and needed to renormalize
// S across a scale boundary) whenever P would otherwise underflow wad
// precision (spec §4.6 point (b)).
var scaleFactor = big.NewInt(1_000_000_000)

// scaleThreshold is the "1e-9 wad" point below which P must be rescaled.
var scaleThreshold = big.NewInt(1_000_000_000)

type scaleKey struct {
	epoch uint64
	scale uint64
}

// Snapshot is a depositor's state per spec §3.
type Snapshot struct {
	InitialDeposit *big.Int
	P              *big.Int
	S              *big.Int
	Epoch          uint64
	Scale          uint64
}

// Pool holds the global scaling-factor state and every depositor snapshot.
type Pool struct {
	p             *big.Int
	epoch         uint64
	scale         uint64
	s             map[scaleKey]*big.Int
	totalDeposits *big.Int
	collateralBuf *big.Int // collateral credited by Absorb, awaiting claim
	depositors    map[[20]byte]*Snapshot
}

// New returns an empty pool with P=1, epoch=0, scale=0.
func New() *Pool {
	return &Pool{
		p:             new(big.Int).Set(wad.One),
		s:             make(map[scaleKey]*big.Int),
		totalDeposits: wad.Zero(),
		collateralBuf: wad.Zero(),
		depositors:    make(map[[20]byte]*Snapshot),
	}
}

// TotalDeposits returns the pool's current aggregate token deposits.
func (p *Pool) TotalDeposits() *big.Int {
	return new(big.Int).Set(p.totalDeposits)
}

// CollateralBuffer returns collateral credited via Absorb that depositors
// haven't yet claimed (spec §8 invariant 2's "pool_collateral_gain_buffer").
func (p *Pool) CollateralBuffer() *big.Int {
	return new(big.Int).Set(p.collateralBuf)
}

// P, Epoch, Scale expose the global scaling-factor state for snapshotting
// (spec §4.10) and test assertions.
func (p *Pool) P() *big.Int   { return new(big.Int).Set(p.p) }
func (p *Pool) Epoch() uint64 { return p.epoch }
func (p *Pool) Scale() uint64 { return p.scale }

func (p *Pool) sAt(epoch, scale uint64) *big.Int {
	if v, ok := p.s[scaleKey{epoch, scale}]; ok {
		return v
	}
	return wad.Zero()
}

// compoundedDeposit implements spec §4.6's compounded-deposit formula.
func (p *Pool) compoundedDeposit(snap *Snapshot) *big.Int {
	if snap == nil || snap.InitialDeposit.Sign() == 0 {
		return wad.Zero()
	}
	if snap.Epoch < p.epoch {
		return wad.Zero()
	}
	scaleDiff := p.scale - snap.Scale
	ratio, err := wad.Div(p.p, snap.P)
	if err != nil {
		return wad.Zero()
	}
	compounded := wad.Mul(snap.InitialDeposit, ratio)
	switch scaleDiff {
	case 0:
		return compounded
	case 1:
		return new(big.Int).Quo(compounded, scaleFactor)
	default:
		return wad.Zero()
	}
}

// collateralGain implements spec §4.6's collateral-gain formula, including
// the half-step term at scale == snapshot_scale+1.
func (p *Pool) collateralGain(snap *Snapshot) *big.Int {
	if snap == nil || snap.InitialDeposit.Sign() == 0 {
		return wad.Zero()
	}
	if snap.Epoch < p.epoch {
		return wad.Zero()
	}
	firstPortion := new(big.Int).Sub(p.sAt(snap.Epoch, snap.Scale), snap.S)
	secondPortion := new(big.Int).Quo(p.sAt(snap.Epoch, snap.Scale+1), scaleFactor)
	total := new(big.Int).Add(firstPortion, secondPortion)
	if total.Sign() <= 0 {
		return wad.Zero()
	}
	// initial_deposit * total / snapshot_P (spec §4.6): a direct
	// multiply-then-divide. total and snapshot_P are numerator and
	// denominator of a single ratio, not two independent wad "value"
	// fractions being composed via wmul/wdiv.
	gain, err := wad.MulDivDown(snap.InitialDeposit, total, snap.P)
	if err != nil {
		return wad.Zero()
	}
	return gain
}

func (p *Pool) freshSnapshot(initialDeposit *big.Int) *Snapshot {
	return &Snapshot{
		InitialDeposit: new(big.Int).Set(initialDeposit),
		P:              p.P(),
		S:              p.sAt(p.epoch, p.scale),
		Epoch:          p.epoch,
		Scale:          p.scale,
	}
}

// settleGain computes the account's pending collateral gain, moves it out
// of collateralBuf, and returns it so the caller can credit it externally.
// It must run before the snapshot is replaced, since replacing the
// snapshot makes the gain formula return zero from then on.
func (p *Pool) settleGain(snap *Snapshot) *big.Int {
	gain := p.collateralGain(snap)
	if gain.Sign() <= 0 {
		return wad.Zero()
	}
	p.collateralBuf.Sub(p.collateralBuf, gain)
	if p.collateralBuf.Sign() < 0 {
		p.collateralBuf = wad.Zero()
	}
	return gain
}

// Deposit pays out any pending collateral gain, then sets account's
// snapshot to compounded+amt at the current globals (spec §4.6 "Deposit").
// Returns the collateral gain paid out, for the caller to credit.
func (p *Pool) Deposit(account crypto.Address, amt *big.Int) (*big.Int, error) {
	if amt == nil || amt.Sign() < 0 {
		return nil, coreerrors.ErrInvalidAmount
	}
	snap := p.depositors[account.Key()]
	gain := p.settleGain(snap)
	compounded := p.compoundedDeposit(snap)
	newDeposit := new(big.Int).Add(compounded, amt)
	p.totalDeposits.Add(p.totalDeposits, amt)
	p.depositors[account.Key()] = p.freshSnapshot(newDeposit)
	return gain, nil
}

// Withdraw pays out any pending collateral gain, rejects if amt exceeds the
// compounded deposit, and stores the reduced deposit under a fresh
// snapshot (spec §4.6 "Withdraw"). Returns the collateral gain paid out.
func (p *Pool) Withdraw(account crypto.Address, amt *big.Int) (*big.Int, error) {
	if amt == nil || amt.Sign() < 0 {
		return nil, coreerrors.ErrInvalidAmount
	}
	snap, ok := p.depositors[account.Key()]
	if !ok {
		return nil, coreerrors.ErrNoPoolDeposit
	}
	gain := p.settleGain(snap)
	compounded := p.compoundedDeposit(snap)
	if amt.Cmp(compounded) > 0 {
		return nil, coreerrors.ErrInsufficientPoolDeposit
	}
	remaining := new(big.Int).Sub(compounded, amt)
	p.totalDeposits.Sub(p.totalDeposits, amt)
	p.depositors[account.Key()] = p.freshSnapshot(remaining)
	return gain, nil
}

// ClaimGains pays out the account's accumulated collateral gain and resets
// its snapshot to the current globals with the same compounded deposit
// (spec §4.6 "ClaimGains").
func (p *Pool) ClaimGains(account crypto.Address) (*big.Int, error) {
	snap, ok := p.depositors[account.Key()]
	if !ok {
		return nil, coreerrors.ErrNoPoolDeposit
	}
	gain := p.settleGain(snap)
	compounded := p.compoundedDeposit(snap)
	p.depositors[account.Key()] = p.freshSnapshot(compounded)
	return gain, nil
}

// CompoundedDeposit is the read-only query for pool_status (spec §6).
func (p *Pool) CompoundedDeposit(account crypto.Address) *big.Int {
	snap, ok := p.depositors[account.Key()]
	if !ok {
		return wad.Zero()
	}
	return p.compoundedDeposit(snap)
}

// PendingGain is the read-only query mirror of collateralGain, for
// pool_status without settling it.
func (p *Pool) PendingGain(account crypto.Address) *big.Int {
	snap, ok := p.depositors[account.Key()]
	if !ok {
		return wad.Zero()
	}
	return p.collateralGain(snap)
}

// Absorb implements spec §4.6's "Absorb": updates S and P, rolls epoch and
// scale across the two singularities, and decreases totalDeposits by
// debtToOffset. It does not touch the token ledger or vault directly — the
// liquidation engine, as caller, is responsible for burning debtToOffset
// from the pool's ledger balance; Absorb only credits collateralToGain into
// the pool's own collateralBuf for later claim.
func (p *Pool) Absorb(debtToOffset, collateralToGain *big.Int) error {
	if debtToOffset == nil || debtToOffset.Sign() <= 0 {
		return coreerrors.ErrInvalidAmount
	}
	if debtToOffset.Cmp(p.totalDeposits) > 0 {
		return coreerrors.ErrInsufficientPoolDeposit
	}

	collPerUnit, err := wad.Div(collateralToGain, p.totalDeposits)
	if err != nil {
		return err
	}
	lossPerUnit, err := wad.Div(debtToOffset, p.totalDeposits)
	if err != nil {
		return err
	}

	currentP := p.p
	currentS := p.sAt(p.epoch, p.scale)
	marginalGain := wad.Mul(collPerUnit, currentP)
	p.s[scaleKey{p.epoch, p.scale}] = new(big.Int).Add(currentS, marginalGain)

	p.totalDeposits.Sub(p.totalDeposits, debtToOffset)
	p.collateralBuf.Add(p.collateralBuf, collateralToGain)

	if lossPerUnit.Cmp(wad.One) >= 0 {
		// Full wipeout: every depositor's compounded deposit goes to zero.
		p.epoch++
		p.scale = 0
		p.p = new(big.Int).Set(wad.One)
		return nil
	}

	newProductFactor := new(big.Int).Sub(wad.One, lossPerUnit)
	newP := wad.Mul(currentP, newProductFactor)
	if newP.Cmp(scaleThreshold) < 0 {
		newP = new(big.Int).Mul(newP, scaleFactor)
		p.scale++
	}
	p.p = newP
	return nil
}

// Accounts returns every depositor key with a snapshot, sorted, for the
// state root's canonical serialization (spec §4.10).
func (p *Pool) Accounts() [][20]byte {
	out := make([][20]byte, 0, len(p.depositors))
	for k := range p.depositors {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// SnapshotByKey returns a depositor's raw snapshot for state-root
// serialization, or nil if the key has never deposited.
func (p *Pool) SnapshotByKey(key [20]byte) *Snapshot {
	return p.depositors[key]
}
