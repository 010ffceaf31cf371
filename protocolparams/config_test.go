package protocolparams

import "testing"

func TestDefaultMCRIsOneAndAHalf(t *testing.T) {
	cfg := Default()
	want := "1500000000000000000"
	if cfg.MCR.String() != want {
		t.Fatalf("MCR: got %s want %s", cfg.MCR, want)
	}
}

func TestEnsureDefaultsFillsPartialConfig(t *testing.T) {
	cfg := &Config{}
	cfg.EnsureDefaults()
	if cfg.MCR == nil || cfg.MinDebt == nil || cfg.HalfLifeMinutes == 0 {
		t.Fatalf("EnsureDefaults left fields nil/zero: %+v", cfg)
	}
	if cfg.CollateralRouting.LiquidatorBps != 10_000 {
		t.Fatalf("CollateralRouting default: got %+v", cfg.CollateralRouting)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/zkusd.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MCR.Cmp(Default().MCR) != 0 {
		t.Fatalf("Load missing file: expected defaults")
	}
}
