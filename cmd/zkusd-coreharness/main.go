// zkusd-coreharness is example wiring for the zkUSD protocol core: it loads
// a protocolparams.Config from a TOML file, builds a statemachine.Machine
// with a rotating-file slog sink wired as the EventSink, replays a scripted
// sequence of operations against it, and logs the resulting state root.
// It exists to demonstrate the core's collaborator contract end to end —
// it is not a production node, has no RPC/P2P surface, and performs no
// persistence of its own (the core has none, spec §5).
package main

import (
	"encoding/hex"
	"flag"
	"log/slog"
	"math/big"
	"os"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
	"golang.org/x/time/rate"

	"github.com/AndeLabs/zkUSD/core/events"
	"github.com/AndeLabs/zkUSD/oracle"
	"github.com/AndeLabs/zkUSD/protocolparams"
	"github.com/AndeLabs/zkUSD/statemachine"
)

func main() {
	configPath := flag.String("config", "cmd/zkusd-coreharness/config.toml", "path to a protocolparams TOML config")
	scenarioPath := flag.String("scenario", "", "path to a JSON replay scenario (defaults to a built-in sample)")
	logPath := flag.String("log", "zkusd-coreharness.log", "rotating slog output path")
	flag.Parse()

	logger := setupLogging(*logPath)

	cfg, err := protocolparams.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	scenario, err := loadScenario(*scenarioPath)
	if err != nil {
		logger.Error("load scenario", "error", err)
		os.Exit(1)
	}

	sink := &slogEventSink{logger: logger}
	src := &fixedPriceFeed{price: scenario.InitialPrice()}
	gated := newCadenceLimitedFeed(src, 5, 2)
	mach := statemachine.New(cfg, scenario.PoolAccount(), scenario.TreasuryAccount(), statemachine.Collaborators{
		PriceOracle: gated,
		Clock:       oracle.FixedClock{T: scenario.StartTime},
		EventSink:   sink,
	})

	if err := scenario.Replay(mach, src, logger); err != nil {
		logger.Error("replay aborted", "error", err)
		os.Exit(1)
	}

	root := mach.GetStateRoot()
	logger.Info("replay complete",
		"state_root", hex.EncodeToString(root),
		"total_supply", mach.GetTotalSupply().String(),
		"mode", mach.GetMode(),
	)
}

func setupLogging(path string) *slog.Logger {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}
	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{AddSource: false})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// slogEventSink adapts the core's event emitter contract to structured
// logging, redacting addresses the way observability/logging/redact.go
// redacts sensitive attributes — every logged address is truncated to its
// bech32 human-readable prefix plus a short fingerprint rather than the
// full key.
type slogEventSink struct {
	logger *slog.Logger
}

func (s *slogEventSink) Emit(e events.Event) {
	ev := e.Event()
	args := []any{"type", ev.Type, "block_height", ev.BlockHeight, "op_id", ev.OpID}
	for _, key := range []string{"owner", "redeemer", "account", "payer"} {
		if raw, ok := ev.Attributes[key]; ok {
			args = append(args, key, redactAddressString(raw))
		}
	}
	s.logger.Info("event", args...)
}

// fixedPriceFeed is a mutable PriceOracle the replay scenario drives
// directly; production wiring would instead implement oracle.PriceOracle
// against a real feed and layer oracle.NewGuardedOracle over it.
type fixedPriceFeed struct {
	price *big.Int
}

func (f *fixedPriceFeed) Current() (oracle.Quote, error) {
	return oracle.Quote{Price: f.price, Timestamp: 0}, nil
}

// cadenceLimitedFeed throttles how often the replay loop is allowed to pull
// a fresh Quote off an underlying feed, the way a production oracle adapter
// would rate-limit calls out to a real upstream price API. When the limiter
// is exhausted it serves the last accepted Quote rather than erroring, since
// a merely-stale-by-one-tick price is not the staleness GuardedOracle guards
// against (spec §6/§7) — only the cadence of polling is being bounded here.
type cadenceLimitedFeed struct {
	source  oracle.PriceOracle
	limiter *rate.Limiter
	last    oracle.Quote
	primed  bool
}

// newCadenceLimitedFeed allows burst calls up to burst and refills at r
// per second.
func newCadenceLimitedFeed(source oracle.PriceOracle, r rate.Limit, burst int) *cadenceLimitedFeed {
	return &cadenceLimitedFeed{source: source, limiter: rate.NewLimiter(r, burst)}
}

func (f *cadenceLimitedFeed) Current() (oracle.Quote, error) {
	if !f.primed || f.limiter.Allow() {
		q, err := f.source.Current()
		if err != nil {
			return oracle.Quote{}, err
		}
		f.last, f.primed = q, true
	}
	return f.last, nil
}

// redactAddressString mirrors observability/logging's MaskField convention
// for any event attribute that carries a full account key.
func redactAddressString(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:8] + "…" + s[len(s)-4:]
}
