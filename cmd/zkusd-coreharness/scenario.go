package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/statemachine"
	"github.com/AndeLabs/zkUSD/wad"
)

// scenarioOp is one step of a replay script. Only the fields the named
// Type needs are read; the rest are ignored.
type scenarioOp struct {
	Type        string `json:"type"`
	BlockHeight uint64 `json:"block_height"`
	CDPID       uint64 `json:"cdp_id"`
	Owner       string `json:"owner,omitempty"`
	Payer       string `json:"payer,omitempty"`
	Account     string `json:"account,omitempty"`
	Redeemer    string `json:"redeemer,omitempty"`
	Collateral  string `json:"collateral,omitempty"`
	Debt        string `json:"debt,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Price       string `json:"price,omitempty"`
	MaxCount    int    `json:"max_count,omitempty"`
}

// scenarioFile is the on-disk JSON replay script shape.
type scenarioFile struct {
	StartTime       uint64       `json:"start_time"`
	PoolAccount     string       `json:"pool_account"`
	TreasuryAccount string       `json:"treasury_account"`
	InitialPrice    string       `json:"initial_price"`
	Ops             []scenarioOp `json:"ops"`
}

// Scenario is the parsed, ready-to-replay form of a scenarioFile.
type Scenario struct {
	StartTime       uint64
	poolAccount     crypto.Address
	treasuryAccount crypto.Address
	initialPrice    *big.Int
	ops             []scenarioOp
}

func (s *Scenario) InitialPrice() *big.Int          { return s.initialPrice }
func (s *Scenario) PoolAccount() crypto.Address     { return s.poolAccount }
func (s *Scenario) TreasuryAccount() crypto.Address { return s.treasuryAccount }

// loadScenario reads path as a JSON scenario file, or falls back to a
// built-in sample (open, deposit to the pool, a price drop, a batch
// liquidation, a redemption) when path is empty.
func loadScenario(path string) (*Scenario, error) {
	var sf scenarioFile
	if path == "" {
		sf = sampleScenario()
	} else {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read scenario: %w", err)
		}
		if err := json.Unmarshal(raw, &sf); err != nil {
			return nil, fmt.Errorf("parse scenario: %w", err)
		}
	}

	price, err := parseWad(sf.InitialPrice)
	if err != nil {
		return nil, fmt.Errorf("initial_price: %w", err)
	}
	pool, err := parseAddress(sf.PoolAccount, 0xA0)
	if err != nil {
		return nil, fmt.Errorf("pool_account: %w", err)
	}
	treasury, err := parseAddress(sf.TreasuryAccount, 0xA1)
	if err != nil {
		return nil, fmt.Errorf("treasury_account: %w", err)
	}

	return &Scenario{
		StartTime:       sf.StartTime,
		poolAccount:     pool,
		treasuryAccount: treasury,
		initialPrice:    price,
		ops:             sf.Ops,
	}, nil
}

// sampleScenario is the harness's built-in demonstration script.
func sampleScenario() scenarioFile {
	return scenarioFile{
		StartTime:       1_000,
		PoolAccount:     "",
		TreasuryAccount: "",
		InitialPrice:    "50000",
		Ops: []scenarioOp{
			{Type: "open_cdp", BlockHeight: 1, Owner: "01", Collateral: "0.02", Debt: "500"},
			{Type: "open_cdp", BlockHeight: 2, Owner: "02", Collateral: "0.05", Debt: "400"},
			{Type: "pool_deposit", BlockHeight: 3, Account: "03", Amount: "300"},
			{Type: "price", Price: "38000"},
			{Type: "liquidate_batch", BlockHeight: 4, MaxCount: 0},
			{Type: "redeem", BlockHeight: 5, Redeemer: "03", Amount: "50"},
		},
	}
}

// Replay executes every op in order against mach, driving src for price
// changes, and logs a line per applied operation.
func (s *Scenario) Replay(mach *statemachine.Machine, src *fixedPriceFeed, logger *slog.Logger) error {
	for i, op := range s.ops {
		switch op.Type {
		case "price":
			price, err := parseWad(op.Price)
			if err != nil {
				return fmt.Errorf("op %d price: %w", i, err)
			}
			src.price = price
		case "open_cdp":
			owner, err := parseAddress(op.Owner, byte(i))
			if err != nil {
				return err
			}
			collateral, err := parseWad(op.Collateral)
			if err != nil {
				return err
			}
			debt, err := parseWad(op.Debt)
			if err != nil {
				return err
			}
			if _, _, err := mach.OpenCDP(owner, collateral, debt, op.BlockHeight); err != nil {
				return fmt.Errorf("op %d open_cdp: %w", i, err)
			}
		case "pool_deposit":
			account, err := parseAddress(op.Account, byte(i))
			if err != nil {
				return err
			}
			amount, err := parseWad(op.Amount)
			if err != nil {
				return err
			}
			if _, _, err := mach.PoolDeposit(account, amount, op.BlockHeight); err != nil {
				return fmt.Errorf("op %d pool_deposit: %w", i, err)
			}
		case "liquidate_batch":
			if _, err := mach.LiquidateBatch(op.MaxCount, op.BlockHeight); err != nil {
				return fmt.Errorf("op %d liquidate_batch: %w", i, err)
			}
		case "redeem":
			redeemer, err := parseAddress(op.Redeemer, byte(i))
			if err != nil {
				return err
			}
			amount, err := parseWad(op.Amount)
			if err != nil {
				return err
			}
			if _, err := mach.Redeem(redeemer, amount, op.BlockHeight); err != nil {
				return fmt.Errorf("op %d redeem: %w", i, err)
			}
		default:
			return fmt.Errorf("op %d: unknown type %q", i, op.Type)
		}
		logger.Info("applied op", "index", i, "type", op.Type)
	}
	return nil
}

// parseWad parses a base-10 decimal string (e.g. "0.02", "50000") into a
// wad-scaled (1e18) integer. Used only at the CLI boundary — the core
// itself never parses decimal strings or touches floating/rational types.
func parseWad(s string) (*big.Int, error) {
	if s == "" {
		return wad.Zero(), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(wad.One))
	if !scaled.IsInt() {
		return nil, fmt.Errorf("amount %q carries sub-wad precision", s)
	}
	return scaled.Num(), nil
}

// parseAddress turns a short hex-ish label into a deterministic 20-byte
// address (fill byte if label is empty), for scenario readability — a real
// deployment resolves addresses from actual public keys.
func parseAddress(label string, fill byte) (crypto.Address, error) {
	raw := make([]byte, 20)
	if label == "" {
		raw[19] = fill
		return crypto.MustNewAddress(crypto.AccountPrefix, raw), nil
	}
	for i := 0; i < len(raw) && i < len(label); i++ {
		raw[19-i] = label[len(label)-1-i]
	}
	return crypto.MustNewAddress(crypto.AccountPrefix, raw), nil
}
