// Package ledger implements the protocol's Token Ledger (spec §4.2): wad
// balances, total supply, and a two-level allowance map. It holds its state
// directly in memory — per spec §5 the core is resident state with no
// internal persistence layer — and is mutated exclusively by the state
// machine on behalf of the CDP Manager, Liquidation Engine, and Stability
// Pool.
package ledger

import (
	"bytes"
	"math/big"
	"sort"

	coreerrors "github.com/AndeLabs/zkUSD/core/errors"
	"github.com/AndeLabs/zkUSD/crypto"
)

// Ledger is the token ledger's resident state.
type Ledger struct {
	balances    map[[20]byte]*big.Int
	allowances  map[[20]byte]map[[20]byte]*big.Int
	totalSupply *big.Int
}

// New returns an empty ledger with zero supply.
func New() *Ledger {
	return &Ledger{
		balances:    make(map[[20]byte]*big.Int),
		allowances:  make(map[[20]byte]map[[20]byte]*big.Int),
		totalSupply: big.NewInt(0),
	}
}

// TotalSupply returns the current total supply.
func (l *Ledger) TotalSupply() *big.Int {
	return new(big.Int).Set(l.totalSupply)
}

// BalanceOf returns the balance of account, zero if never touched.
func (l *Ledger) BalanceOf(account crypto.Address) *big.Int {
	if bal, ok := l.balances[account.Key()]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Allowance returns the amount spender may transfer_from on owner's behalf.
func (l *Ledger) Allowance(owner, spender crypto.Address) *big.Int {
	spenders, ok := l.allowances[owner.Key()]
	if !ok {
		return big.NewInt(0)
	}
	if amt, ok := spenders[spender.Key()]; ok {
		return new(big.Int).Set(amt)
	}
	return big.NewInt(0)
}

// Mint credits to with amt and increases total supply. Callable only by the
// state machine on behalf of the CDP Manager (borrowing), Liquidation
// Engine (gas-comp/redistribution bookkeeping never mints), or other
// internal callers; there is no public admission check here — the caller
// is responsible for having already authorized the mint.
func (l *Ledger) Mint(to crypto.Address, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	newSupply := new(big.Int).Add(l.totalSupply, amt)
	if newSupply.Sign() < 0 {
		return coreerrors.ErrOverflowSupply
	}
	l.totalSupply = newSupply
	l.credit(to, amt)
	return nil
}

// Burn debits from by amt and decreases total supply.
func (l *Ledger) Burn(from crypto.Address, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	bal := l.BalanceOf(from)
	if bal.Cmp(amt) < 0 {
		return coreerrors.ErrInsufficientBalance
	}
	l.debit(from, amt)
	l.totalSupply.Sub(l.totalSupply, amt)
	return nil
}

// Transfer moves amt from from to to. amt==0 is always a no-op success;
// from==to is a no-op that still validates balance >= amt (spec §4.2).
func (l *Ledger) Transfer(from, to crypto.Address, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	bal := l.BalanceOf(from)
	if bal.Cmp(amt) < 0 {
		return coreerrors.ErrInsufficientBalance
	}
	if from.Key() == to.Key() {
		return nil
	}
	l.debit(from, amt)
	l.credit(to, amt)
	return nil
}

// Approve sets the allowance spender may draw from owner.
func (l *Ledger) Approve(owner, spender crypto.Address, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	spenders, ok := l.allowances[owner.Key()]
	if !ok {
		spenders = make(map[[20]byte]*big.Int)
		l.allowances[owner.Key()] = spenders
	}
	spenders[spender.Key()] = new(big.Int).Set(amt)
	return nil
}

// TransferFrom moves amt from from to to, debiting spender's allowance over
// from's balance.
func (l *Ledger) TransferFrom(spender, from, to crypto.Address, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	allowed := l.Allowance(from, spender)
	if allowed.Cmp(amt) < 0 {
		return coreerrors.ErrInsufficientAllowance
	}
	if err := l.Transfer(from, to, amt); err != nil {
		return err
	}
	l.allowances[from.Key()][spender.Key()] = allowed.Sub(allowed, amt)
	return nil
}

func (l *Ledger) credit(to crypto.Address, amt *big.Int) {
	bal, ok := l.balances[to.Key()]
	if !ok {
		bal = big.NewInt(0)
	}
	l.balances[to.Key()] = new(big.Int).Add(bal, amt)
}

func (l *Ledger) debit(from crypto.Address, amt *big.Int) {
	bal := l.BalanceOf(from)
	bal.Sub(bal, amt)
	l.balances[from.Key()] = bal
}

// Accounts returns every account with a non-zero balance, sorted by key,
// for use by the state root's canonical serialization (spec §4.10).
func (l *Ledger) Accounts() [][20]byte {
	out := make([][20]byte, 0, len(l.balances))
	for k, bal := range l.balances {
		if bal.Sign() != 0 {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
