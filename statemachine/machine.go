// Package statemachine wires every component package behind the single
// apply(op) -> (events, error) entry point spec §4.10 describes: it holds
// the resident instances, the exclusive write lock, and the 8-step
// procedure (lock, snapshot pre-root, dispatch, re-evaluate recovery mode,
// check global invariants, commit, compute post-root, unlock). No
// component package above it is aware of any other — Machine is the only
// thing that knows the full wiring, grounded on how core/state_transition.go
// composes the teacher chain's modules under one struct and one mutex.
package statemachine

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/AndeLabs/zkUSD/cdp"
	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/core/events"
	"github.com/AndeLabs/zkUSD/core/types"
	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/feeengine"
	"github.com/AndeLabs/zkUSD/ledger"
	"github.com/AndeLabs/zkUSD/liquidation"
	"github.com/AndeLabs/zkUSD/oracle"
	"github.com/AndeLabs/zkUSD/protocolparams"
	"github.com/AndeLabs/zkUSD/recovery"
	"github.com/AndeLabs/zkUSD/redemption"
	"github.com/AndeLabs/zkUSD/stabilitypool"
	"github.com/AndeLabs/zkUSD/stateroot"
	"github.com/AndeLabs/zkUSD/vault"
	"github.com/AndeLabs/zkUSD/wad"
)

// Machine is the resident state machine: one owning value per spec §9's
// "prefer explicit instantiation over process-wide singletons". Callers
// thread the same *Machine through every call site.
type Machine struct {
	mu sync.RWMutex

	cfg *protocolparams.Config

	ldgr   *ledger.Ledger
	vlt    *vault.Vault
	cdps   *cdp.Manager
	pool   *stabilitypool.Pool
	fees   *feeengine.Engine
	rec    *recovery.Manager
	liq    *liquidation.Engine
	redeem *redemption.Engine

	poolAccount     crypto.Address
	treasuryAccount crypto.Address

	priceOracle oracle.PriceOracle
	clock       oracle.Clock
	sink        oracle.EventSink
	prover      oracle.ProofRequester

	lastPrice *big.Int
}

// Collaborators bundles the injected dependencies New needs, grounded on
// spec §6's consumed-interface list.
type Collaborators struct {
	PriceOracle oracle.PriceOracle
	Clock       oracle.Clock
	EventSink   oracle.EventSink   // nil defaults to events.NoopEmitter{}
	Prover      oracle.ProofRequester // nil defaults to oracle.NoopProofRequester{}
}

// New constructs a fresh Machine with empty component state. poolAccount
// and treasuryAccount are the ledger's internal custody keys backing the
// stability pool's token balance and the protocol's fee/dust collection,
// respectively — both opaque accounts the caller never directly controls.
func New(cfg *protocolparams.Config, poolAccount, treasuryAccount crypto.Address, collab Collaborators) *Machine {
	sink := collab.EventSink
	if sink == nil {
		sink = events.NoopEmitter{}
	}
	prover := collab.Prover
	if prover == nil {
		prover = oracle.NoopProofRequester{}
	}
	return &Machine{
		cfg:             cfg,
		ldgr:            ledger.New(),
		vlt:             vault.New(),
		cdps:            cdp.New(),
		pool:            stabilitypool.New(),
		fees:            feeengine.New(cfg.HalfLifeMinutes, cfg.MintFeeFloor, cfg.MintFeeCeil, cfg.RedemptionHistoryCap),
		rec:             recovery.New(cfg.CCR, cfg.RecoveryHistoryCap),
		liq:             liquidation.New(cfg, poolAccount),
		redeem:          redemption.New(cfg, treasuryAccount),
		poolAccount:     poolAccount,
		treasuryAccount: treasuryAccount,
		priceOracle:     collab.PriceOracle,
		clock:           collab.Clock,
		sink:            sink,
		prover:          prover,
	}
}

// stampedEvent wraps a component-emitted event with the block height and
// op id the state machine stamps onto every event it dispatches (spec §6
// "emitted with block height, op id, payload"), without requiring the
// core/events package itself to know about either.
type stampedEvent struct {
	inner       events.Event
	blockHeight uint64
	opID        string
}

func (s stampedEvent) EventType() string { return s.inner.EventType() }

func (s stampedEvent) Event() *types.Event {
	ev := s.inner.Event()
	ev.BlockHeight = s.blockHeight
	ev.OpID = s.opID
	return ev
}

// computeRootLocked computes the canonical state root; callers must hold
// at least a read lock.
func (m *Machine) computeRootLocked() []byte {
	return stateroot.Compute(m.vlt, m.fees, m.rec, m.pool, m.cdps, m.ldgr)
}

// apply implements spec §4.10's eight-step procedure. fn receives the
// single price quote and clock reading for this operation (every
// collaborator that op touches sees the same values, per spec §6) and an
// event collector; it performs the component dispatch and must leave state
// unchanged on any returned error — every op body below validates before
// mutating so this holds by construction, never by rollback.
func (m *Machine) apply(blockHeight uint64, fn func(price *big.Int, now uint64, collector *events.Collector) error) ([]events.Event, error) {
	opID := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()

	preRoot := m.computeRootLocked()

	quote, err := m.priceOracle.Current()
	if err != nil {
		return nil, err
	}
	m.lastPrice = quote.Price
	now := m.clock.Now()

	collector := &events.Collector{}
	if err := fn(quote.Price, now, collector); err != nil {
		return nil, err
	}

	if transitioned, entering := m.rec.Evaluate(blockHeight, m.vlt.TotalCollateral(), quote.Price, m.cdps.TotalDebt()); transitioned {
		collector.Emit(events.RecoveryModeChanged{Entering: entering, TCR: m.rec.TCR()})
	}

	// Step 6: global invariants. A failure here is never a legitimate
	// user-facing rejection (every op body above already validated its own
	// preconditions before mutating) — it indicates a defect in this
	// package's wiring, so the state machine reports it as fatal rather
	// than attempting a state rollback no component here is built to
	// support (see DESIGN.md's Open Question resolution).
	if err := m.checkInvariants(); err != nil {
		return nil, err
	}

	postRoot := m.computeRootLocked()

	raw := collector.Events()
	stamped := make([]events.Event, len(raw))
	for i, e := range raw {
		se := stampedEvent{inner: e, blockHeight: blockHeight, opID: opID}
		stamped[i] = se
		m.sink.Emit(se)
	}

	m.prover.Submit(oracle.Transition{
		OpID:          opID,
		BlockHeight:   blockHeight,
		PreStateRoot:  preRoot,
		PostStateRoot: postRoot,
		Events:        stamped,
	})

	return stamped, nil
}

// checkInvariants implements spec §4.10 step 6: "conservation of
// collateral, conservation of supply". It also asserts the two cheap
// per-CDP solvency properties (§8 invariants 4 and 5) since they fall out
// of the same pass at negligible extra cost; invariants 3 and 6 (debt/
// supply cross-accounting, sorted-index ordering) are covered by this
// package's tests rather than a per-op runtime check — see DESIGN.md.
func (m *Machine) checkInvariants() error {
	sumBalances := wad.Zero()
	for _, key := range m.ldgr.Accounts() {
		addr := crypto.NewAddress(crypto.AccountPrefix, append([]byte(nil), key[:]...))
		sumBalances.Add(sumBalances, m.ldgr.BalanceOf(addr))
	}
	if sumBalances.Cmp(m.ldgr.TotalSupply()) != 0 {
		return coreerrors.NewInvariantError("supply_conservation",
			fmt.Sprintf("sum of balances %s != total supply %s", sumBalances, m.ldgr.TotalSupply()))
	}

	if m.vlt.PendingLiquidation().Sign() != 0 {
		return coreerrors.NewInvariantError("collateral_conservation",
			"pending liquidation reserve did not net to zero between operations")
	}

	// TotalCollateral already folds each Active CDP's pending redistribution
	// delta (see cdp.Manager.Effective), so no separate correction term is
	// needed here.
	expected := new(big.Int).Add(m.cdps.TotalCollateral(), m.pool.CollateralBuffer())
	if m.vlt.TotalCollateral().Cmp(expected) != 0 {
		return coreerrors.NewInvariantError("collateral_conservation",
			fmt.Sprintf("vault total %s != active cdps + pool buffer %s", m.vlt.TotalCollateral(), expected))
	}

	for _, c := range m.cdps.All() {
		if c.Status != cdp.StatusActive {
			continue
		}
		debt, _ := m.cdps.Effective(c)
		if debt.Sign() != 0 && debt.Cmp(m.cfg.MinDebt) < 0 {
			return coreerrors.NewInvariantError("min_debt_floor",
				fmt.Sprintf("cdp %d carries dust debt %s", c.ID, debt))
		}
	}

	if m.rec.Mode() == recovery.ModeNormal && m.lastPrice != nil {
		for _, c := range m.cdps.All() {
			if c.Status != cdp.StatusActive {
				continue
			}
			debt, collateral := m.cdps.Effective(c)
			ratio := cdp.RatioOf(collateral, debt, m.lastPrice)
			if ratio != nil && ratio.Cmp(m.cfg.MCR) < 0 {
				return coreerrors.NewInvariantError("mcr_floor",
					fmt.Sprintf("cdp %d ratio %s below MCR in normal mode", c.ID, ratio))
			}
		}
	}

	return nil
}

// GetCDP returns a snapshot copy of the CDP with id, with any pending
// redistribution folded into its collateral/debt fields without mutating
// the resident CDP (spec §6 get_cdp).
func (m *Machine) GetCDP(id uint64) (cdp.CDP, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.cdps.Get(id)
	if err != nil {
		return cdp.CDP{}, err
	}
	snapshot := *c
	snapshot.Debt, snapshot.Collateral = m.cdps.Effective(c)
	return snapshot, nil
}

// GetTCR returns the most recently evaluated total collateral ratio, or
// nil if total debt is zero (spec §6 get_tcr).
func (m *Machine) GetTCR() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.TCR()
}

// GetMode returns the current recovery mode (spec §6 get_mode).
func (m *Machine) GetMode() recovery.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.Mode()
}

// GetTotalSupply returns the ledger's current total supply (spec §6
// get_total_supply).
func (m *Machine) GetTotalSupply() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ldgr.TotalSupply()
}

// GetStateRoot returns the canonical state root over the resident state
// (spec §6 get_state_root).
func (m *Machine) GetStateRoot() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.computeRootLocked()
}

// BalanceOf exposes the ledger's read-only balance query, for callers that
// need it without threading the ledger instance separately.
func (m *Machine) BalanceOf(account crypto.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ldgr.BalanceOf(account)
}

// RecoveryStatus exposes the recovery manager's telemetry snapshot
// (SPEC_FULL.md supplement 3), computed over every Active CDP's current
// ratio at the last-seen price.
func (m *Machine) RecoveryStatus() recovery.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastPrice == nil {
		return recovery.Status{Mode: m.rec.Mode()}
	}
	var ratios []recovery.RatioDebt
	for _, c := range m.cdps.All() {
		if c.Status != cdp.StatusActive {
			continue
		}
		debt, collateral := m.cdps.Effective(c)
		ratios = append(ratios, recovery.RatioDebt{Ratio: cdp.RatioOf(collateral, debt, m.lastPrice), Debt: debt})
	}
	return m.rec.EvaluateStatus(ratios)
}

// LiquidationStatistics exposes the liquidation engine's running totals.
func (m *Machine) LiquidationStatistics() liquidation.Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.liq.Statistics()
}
