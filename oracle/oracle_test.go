package oracle

import (
	"math/big"
	"testing"

	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/wad"
)

func TestGuardedOracleAcceptsFreshPrice(t *testing.T) {
	clock := FixedClock{T: 1000}
	o := NewGuardedOracle(func() (Quote, error) {
		return Quote{Price: wad.New(50_000), Timestamp: 990}, nil
	}, clock.Now, 60, 0)

	q, err := o.Current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if q.Price.Cmp(wad.New(50_000)) != 0 {
		t.Fatalf("unexpected price %s", q.Price)
	}
}

func TestGuardedOracleRejectsStalePrice(t *testing.T) {
	clock := FixedClock{T: 10_000}
	o := NewGuardedOracle(func() (Quote, error) {
		return Quote{Price: wad.New(50_000), Timestamp: 1}, nil
	}, clock.Now, 60, 0)

	_, err := o.Current()
	if err != coreerrors.ErrStalePrice {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestGuardedOracleRejectsDeviantPrice(t *testing.T) {
	clock := FixedClock{T: 1000}
	prices := []*big.Int{wad.New(50_000), wad.New(70_000)}
	call := 0
	o := NewGuardedOracle(func() (Quote, error) {
		p := prices[call]
		call++
		return Quote{Price: p, Timestamp: 1000}, nil
	}, clock.Now, 0, 1000) // 10% max deviation

	if _, err := o.Current(); err != nil {
		t.Fatalf("first quote: %v", err)
	}
	_, err := o.Current()
	if err != coreerrors.ErrPriceDeviation {
		t.Fatalf("expected ErrPriceDeviation, got %v", err)
	}
}

func TestGuardedOracleRejectsNonPositivePrice(t *testing.T) {
	clock := FixedClock{T: 1000}
	o := NewGuardedOracle(func() (Quote, error) {
		return Quote{Price: wad.Zero(), Timestamp: 1000}, nil
	}, clock.Now, 0, 0)

	if _, err := o.Current(); err != coreerrors.ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
