// Package protocolparams holds the governable constants of spec.md §3: the
// collateral ratio thresholds, fee bounds, and decay half-life every other
// component reads. They are fixed for the lifetime of one running state
// machine (loaded once at startup) but configurable per deployment, the
// same way native/lending's Config is TOML-loaded in the teacher chain.
package protocolparams

import (
	"fmt"
	"math/big"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/AndeLabs/zkUSD/wad"
)

// Config is the full set of governable constants. Every *big.Int field is
// wad-scaled (1e18) unless noted. Struct tags mirror the teacher's
// TOML-by-field-name convention.
type Config struct {
	// MCR is the Minimum Collateral Ratio required to open/withdraw/mint in
	// Normal mode.
	MCR *big.Int `toml:"MCR"`
	// CCR is the Critical Collateral Ratio: both the TCR floor that defines
	// Recovery mode and the stricter per-CDP ratio required while in it.
	CCR *big.Int `toml:"CCR"`
	// LiquidationBonusBps is the liquidator's share of seized collateral,
	// expressed in basis points of the liquidated debt's BTC-equivalent
	// value (spec §4.7 point 2).
	LiquidationBonusBps uint64 `toml:"LiquidationBonusBps"`
	// LiquidationBonusCapBps caps the bonus at this fraction of the CDP's
	// collateral (spec §4.7's "default: min(bonus, 0.5% of collateral)").
	LiquidationBonusCapBps uint64 `toml:"LiquidationBonusCapBps"`
	// MinDebt is the minimum non-zero debt a CDP may carry.
	MinDebt *big.Int `toml:"MinDebt"`
	// TargetDebt is the denominator of the borrowing fee's utilization
	// premium (spec §4.4): `min(total_debt/TargetDebt, 4) * base_rate`. It
	// represents the protocol's expected steady-state issuance.
	TargetDebt *big.Int `toml:"TargetDebt"`
	// MintFeeFloor / MintFeeCeil bound the borrowing fee rate.
	MintFeeFloor *big.Int `toml:"MintFeeFloor"`
	MintFeeCeil  *big.Int `toml:"MintFeeCeil"`
	// RedemptionFeeFloor / RedemptionFeeCeil are redemption fee rate bounds.
	// statemachine.New does not read them: its single fee engine bounds both
	// the borrowing and the redemption fee with MintFeeFloor / MintFeeCeil.
	RedemptionFeeFloor *big.Int `toml:"RedemptionFeeFloor"`
	RedemptionFeeCeil  *big.Int `toml:"RedemptionFeeCeil"`
	// HalfLifeMinutes is the base-rate decay half-life, in whole minutes.
	HalfLifeMinutes uint64 `toml:"HalfLifeMinutes"`
	// RedemptionDustThreshold is the collateral-below-this-is-swept-to-
	// treasury threshold from spec §4.9 point 3.
	RedemptionDustThreshold *big.Int `toml:"RedemptionDustThreshold"`
	// LiquidationGasCompensation is the fixed stipend component of the
	// liquidator incentive (SPEC_FULL.md supplement 2), capped by whatever
	// collateral surplus remains after the bonus.
	LiquidationGasCompensation *big.Int `toml:"LiquidationGasCompensation"`
	// CollateralRouting splits a liquidation's liquidator incentive across
	// the liquidator, protocol treasury, and an optional developer
	// collector (SPEC_FULL.md supplement 5).
	CollateralRouting CollateralRouting `toml:"CollateralRouting"`
	// RedemptionHistoryCap bounds the redemption-fee lookback ring kept for
	// statistics (SPEC_FULL.md supplement 4); it never affects the fee
	// formula itself.
	RedemptionHistoryCap int `toml:"RedemptionHistoryCap"`
	// LiquidationHistoryCap bounds the liquidation event/stat ledger
	// (SPEC_FULL.md supplement 1).
	LiquidationHistoryCap int `toml:"LiquidationHistoryCap"`
	// RecoveryHistoryCap bounds the recovery-mode transition history ring
	// (spec §3's "history ring-buffer of mode transitions").
	RecoveryHistoryCap int `toml:"RecoveryHistoryCap"`
}

// CollateralRouting is a basis-point split of a liquidation's incentive
// collateral, grounded on native/lending's Engine.CollateralRouting.
type CollateralRouting struct {
	LiquidatorBps         uint64 `toml:"LiquidatorBps"`
	ProtocolBps           uint64 `toml:"ProtocolBps"`
	DeveloperBps          uint64 `toml:"DeveloperBps"`
	DeveloperFeeCollector string `toml:"DeveloperFeeCollector"`
}

// Load reads a TOML config file and applies EnsureDefaults to any field the
// file left unset. A missing file is not an error: Default() is returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("protocolparams: decode %s: %w", path, err)
	}
	cfg.EnsureDefaults()
	return cfg, nil
}

// Default returns the constants table from spec.md §3.
func Default() *Config {
	cfg := &Config{
		MCR:                        wad.NewFraction(3, 2),
		CCR:                        wad.NewFraction(3, 2),
		LiquidationBonusBps:        1000, // 10%
		LiquidationBonusCapBps:     50,   // 0.5%
		MinDebt:                    wad.New(200),
		TargetDebt:                 wad.New(50_000_000),
		MintFeeFloor:               mustMilliWad(5),  // 0.005
		MintFeeCeil:                mustMilliWad(50), // 0.05
		RedemptionFeeFloor:         mustMilliWad(5),
		RedemptionFeeCeil:          mustMilliWad(50),
		HalfLifeMinutes:            12 * 60,
		RedemptionDustThreshold:    big.NewInt(1_000_000_000), // 1e9 wei of collateral
		LiquidationGasCompensation: wad.New(0),
		CollateralRouting: CollateralRouting{
			LiquidatorBps: 10_000,
		},
		RedemptionHistoryCap:  256,
		LiquidationHistoryCap: 1024,
		RecoveryHistoryCap:    256,
	}
	return cfg
}

// EnsureDefaults fills nil *big.Int fields and zero caps so a partially
// specified TOML file is still safe to use, mirroring
// native/lending/config.go's Config.EnsureDefaults.
func (c *Config) EnsureDefaults() {
	def := Default()
	if c.MCR == nil {
		c.MCR = def.MCR
	}
	if c.CCR == nil {
		c.CCR = def.CCR
	}
	if c.MinDebt == nil {
		c.MinDebt = def.MinDebt
	}
	if c.TargetDebt == nil {
		c.TargetDebt = def.TargetDebt
	}
	if c.MintFeeFloor == nil {
		c.MintFeeFloor = def.MintFeeFloor
	}
	if c.MintFeeCeil == nil {
		c.MintFeeCeil = def.MintFeeCeil
	}
	if c.RedemptionFeeFloor == nil {
		c.RedemptionFeeFloor = def.RedemptionFeeFloor
	}
	if c.RedemptionFeeCeil == nil {
		c.RedemptionFeeCeil = def.RedemptionFeeCeil
	}
	if c.HalfLifeMinutes == 0 {
		c.HalfLifeMinutes = def.HalfLifeMinutes
	}
	if c.RedemptionDustThreshold == nil {
		c.RedemptionDustThreshold = def.RedemptionDustThreshold
	}
	if c.LiquidationGasCompensation == nil {
		c.LiquidationGasCompensation = def.LiquidationGasCompensation
	}
	if c.CollateralRouting.LiquidatorBps == 0 && c.CollateralRouting.ProtocolBps == 0 && c.CollateralRouting.DeveloperBps == 0 {
		c.CollateralRouting = def.CollateralRouting
	}
	if c.RedemptionHistoryCap == 0 {
		c.RedemptionHistoryCap = def.RedemptionHistoryCap
	}
	if c.LiquidationHistoryCap == 0 {
		c.LiquidationHistoryCap = def.LiquidationHistoryCap
	}
	if c.RecoveryHistoryCap == 0 {
		c.RecoveryHistoryCap = def.RecoveryHistoryCap
	}
}

func mustMilliWad(thousandths int64) *big.Int {
	// thousandths/1000 expressed as a wad amount, e.g. mustMilliWad(5) == 0.005e18.
	v := new(big.Int).Mul(big.NewInt(thousandths), wad.One)
	return v.Quo(v, big.NewInt(1000))
}
