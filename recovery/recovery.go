// Package recovery implements the Recovery Manager (spec §4.8): TCR
// evaluation, Normal/Recovery mode transitions, and a bounded transition
// history. It also tracks the distance-to-exit and at-risk telemetry
// SPEC_FULL.md supplement 3 adds on top of the spec's required Mode/TCR
// query surface.
package recovery

import (
	"math/big"

	"github.com/AndeLabs/zkUSD/wad"
)

// Mode is the protocol-wide admission regime.
type Mode uint8

const (
	ModeNormal Mode = iota
	ModeRecovery
)

// Transition is one history-ring entry.
type Transition struct {
	BlockHeight uint64
	Entering    bool // true: Normal->Recovery, false: Recovery->Normal
	TCR         *big.Int
}

// Manager holds the Recovery State of spec §3: current mode, TCR, and a
// bounded history ring of mode transitions.
type Manager struct {
	mode    Mode
	tcr     *big.Int
	ccr     *big.Int
	history []Transition
	histCap int
}

// New constructs a manager starting in Normal mode.
func New(ccr *big.Int, historyCap int) *Manager {
	return &Manager{
		mode:    ModeNormal,
		tcr:     nil, // undefined until the first Evaluate call
		ccr:     ccr,
		histCap: historyCap,
	}
}

// Mode returns the current mode.
func (m *Manager) Mode() Mode { return m.mode }

// TCR returns the most recently evaluated total collateral ratio, or nil if
// total debt was zero (spec §4.8: "if total_debt == 0, TCR = infinity").
func (m *Manager) TCR() *big.Int {
	if m.tcr == nil {
		return nil
	}
	return new(big.Int).Set(m.tcr)
}

// History returns the bounded mode-transition ring, oldest first.
func (m *Manager) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// ComputeTCR implements spec §4.8: wdiv(wmul(total_collateral, price),
// total_debt); nil (infinity) when total_debt == 0.
func ComputeTCR(totalCollateral, price, totalDebt *big.Int) *big.Int {
	if totalDebt == nil || totalDebt.Sign() == 0 {
		return nil
	}
	value := wad.Mul(totalCollateral, price)
	tcr, err := wad.Div(value, totalDebt)
	if err != nil {
		return nil
	}
	return tcr
}

// Evaluate recomputes TCR, updates the mode, and appends a history entry if
// the mode changed (spec §4.8: "Recompute TCR at the start of every
// state-altering op... Record transition in history"). Returns whether the
// mode transitioned and in which direction.
func (m *Manager) Evaluate(blockHeight uint64, totalCollateral, price, totalDebt *big.Int) (transitioned bool, entering bool) {
	tcr := ComputeTCR(totalCollateral, price, totalDebt)
	m.tcr = tcr

	wasRecovery := m.mode == ModeRecovery
	nowRecovery := tcr != nil && tcr.Cmp(m.ccr) < 0

	if nowRecovery == wasRecovery {
		return false, false
	}
	if nowRecovery {
		m.mode = ModeRecovery
	} else {
		m.mode = ModeNormal
	}
	m.record(Transition{BlockHeight: blockHeight, Entering: nowRecovery, TCR: tcr})
	return true, nowRecovery
}

func (m *Manager) record(t Transition) {
	if m.histCap <= 0 {
		return
	}
	m.history = append(m.history, t)
	if len(m.history) > m.histCap {
		m.history = m.history[len(m.history)-m.histCap:]
	}
}

// Status is the observability snapshot SPEC_FULL.md supplement 3 adds:
// distance to exiting Recovery, and how many CDPs/how much debt sits within
// that distance of being liquidated at the CCR threshold.
type Status struct {
	Mode              Mode
	TCR               *big.Int
	DistanceToExitBps int64
	CDPsAtRisk        int
	DebtAtRisk        *big.Int
}

// EvaluateStatus computes the telemetry snapshot without mutating mode or
// history; callers pass every Active CDP's (ratio, debt) pair.
func (m *Manager) EvaluateStatus(cdpRatios []RatioDebt) Status {
	s := Status{Mode: m.mode, TCR: m.TCR(), DebtAtRisk: wad.Zero()}
	if s.TCR != nil {
		diff := new(big.Int).Sub(s.TCR, m.ccr)
		bps := new(big.Int).Mul(diff, big.NewInt(10_000))
		bps.Quo(bps, m.ccr)
		s.DistanceToExitBps = bps.Int64()
	}
	for _, rd := range cdpRatios {
		if rd.Ratio != nil && rd.Ratio.Cmp(m.ccr) < 0 {
			s.CDPsAtRisk++
			s.DebtAtRisk.Add(s.DebtAtRisk, rd.Debt)
		}
	}
	return s
}

// RatioDebt is one CDP's current ratio and debt, fed to EvaluateStatus.
type RatioDebt struct {
	Ratio *big.Int
	Debt  *big.Int
}
