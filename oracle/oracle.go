// Package oracle defines the narrow collaborator interfaces the state
// machine consumes (spec §6): a price feed, a clock, a storage round-trip,
// an event sink, and an optional proof submission queue. None of these are
// implemented with I/O here — the core only ever talks to the interface, the
// same way native/swap's PriceOracle/TWAPOracle are consumed by
// core/pricing.PriceFeed without that package doing any networking itself.
package oracle

import (
	"math/big"

	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/core/events"
)

// Quote is one price observation: a wad-scaled price and the second-
// granularity timestamp it was observed at.
type Quote struct {
	Price     *big.Int
	Timestamp uint64
}

// PriceOracle resolves the current collateral price. The state machine
// reads it once per operation and threads the same value through every
// collaborator that op touches (spec §6).
type PriceOracle interface {
	Current() (Quote, error)
}

// Clock supplies the current time in seconds. Tests provide a fixed or
// manually advanced clock for determinism; production wiring uses a
// monotonic wall-clock source.
type Clock interface {
	Now() uint64
}

// Storage round-trips the full resident state as an opaque byte blob. The
// core has no persistence layer of its own (spec §5); Storage is owned and
// implemented entirely by the caller.
type Storage interface {
	Load() ([]byte, error)
	Snapshot(state []byte) error
}

// EventSink receives every event the state machine emits, non-blocking
// fire-and-forget (spec §6). events.Emitter already models this shape; the
// alias keeps the oracle package as the canonical list of consumed
// collaborator interfaces.
type EventSink = events.Emitter

// Transition is the record handed to a ProofRequester: the pre/post state
// roots and the events an operation produced, enough material for an
// external prover to build a succinct proof of the transition without
// re-running it.
type Transition struct {
	OpID          string
	BlockHeight   uint64
	PreStateRoot  []byte
	PostStateRoot []byte
	Events        []events.Event
}

// ProofRequester optionally receives a transition record after each commit.
// Submission is fire-and-forget: the core supplies the record but never
// waits on proof generation (spec §6).
type ProofRequester interface {
	Submit(Transition)
}

// NoopProofRequester discards every transition; the default when no prover
// is wired.
type NoopProofRequester struct{}

func (NoopProofRequester) Submit(Transition) {}

// FixedClock is a Clock that always reports the same instant, for
// deterministic tests.
type FixedClock struct {
	T uint64
}

func (c FixedClock) Now() uint64 { return c.T }

// GuardedOracle wraps a raw Quote source with the staleness and deviation
// guardrails spec §6/§7 require (`StalePrice`, `PriceDeviation`), grounded on
// core/pricing.PriceFeed's PriceStatus classification — adapted here to the
// core's wad-scaled integers instead of that package's big.Rat/Q64.64
// representation, since the core never uses floating or rational types.
type GuardedOracle struct {
	source         func() (Quote, error)
	nowFn          func() uint64
	maxAgeSeconds  uint64
	maxDeviationBp uint64
	lastAccepted   *big.Int
}

// NewGuardedOracle wraps source with a staleness window and a maximum
// per-update deviation (in basis points of the previously accepted price).
// Either guard is disabled by passing 0.
func NewGuardedOracle(source func() (Quote, error), now func() uint64, maxAgeSeconds, maxDeviationBp uint64) *GuardedOracle {
	return &GuardedOracle{source: source, nowFn: now, maxAgeSeconds: maxAgeSeconds, maxDeviationBp: maxDeviationBp}
}

// Current fetches the underlying quote and applies the configured guards.
func (g *GuardedOracle) Current() (Quote, error) {
	q, err := g.source()
	if err != nil {
		return Quote{}, err
	}
	if q.Price == nil || q.Price.Sign() <= 0 {
		return Quote{}, coreerrors.ErrInvalidAmount
	}

	if g.maxAgeSeconds > 0 {
		now := g.nowFn()
		if now > q.Timestamp && now-q.Timestamp > g.maxAgeSeconds {
			return Quote{}, coreerrors.ErrStalePrice
		}
	}

	if g.maxDeviationBp > 0 && g.lastAccepted != nil && g.lastAccepted.Sign() > 0 {
		diff := new(big.Int).Sub(q.Price, g.lastAccepted)
		diff.Abs(diff)
		bps := new(big.Int).Mul(diff, big.NewInt(10_000))
		bps.Quo(bps, g.lastAccepted)
		if bps.Cmp(new(big.Int).SetUint64(g.maxDeviationBp)) > 0 {
			return Quote{}, coreerrors.ErrPriceDeviation
		}
	}

	g.lastAccepted = new(big.Int).Set(q.Price)
	return q, nil
}
