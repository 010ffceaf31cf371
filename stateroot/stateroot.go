// Package stateroot implements the canonical state commitment (spec §4.10):
// a domain-separated Keccak256 hash over the vault, fee, recovery, and pool
// global fields, followed by sorted (by id/account) serialization of every
// CDP, token balance, and stability-pool deposit. All integers are encoded
// big-endian at a fixed width, grounded on core/state_transition.go's
// domain-tag-prefixed key derivation (e.g. accountMetadataKey,
// setEscrow's "escrow-"-prefixed Keccak256 keys).
package stateroot

import (
	"encoding/binary"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/AndeLabs/zkUSD/cdp"
	"github.com/AndeLabs/zkUSD/crypto"
	"github.com/AndeLabs/zkUSD/feeengine"
	"github.com/AndeLabs/zkUSD/ledger"
	"github.com/AndeLabs/zkUSD/recovery"
	"github.com/AndeLabs/zkUSD/stabilitypool"
	"github.com/AndeLabs/zkUSD/vault"
)

// wadWidth is the fixed byte width a wad (1e18-scaled, up to 2^256-1 in
// practice far smaller) is encoded at. 32 bytes comfortably bounds every
// quantity this protocol produces without ever truncating.
const wadWidth = 32

var (
	tagVault    = []byte("zkusd/stateroot/vault-v1")
	tagFee      = []byte("zkusd/stateroot/fee-v1")
	tagRecovery = []byte("zkusd/stateroot/recovery-v1")
	tagPool     = []byte("zkusd/stateroot/pool-v1")
	tagCDPs     = []byte("zkusd/stateroot/cdps-v1")
	tagBalances = []byte("zkusd/stateroot/balances-v1")
	tagDeposits = []byte("zkusd/stateroot/pooldeposits-v1")
	tagRoot     = []byte("zkusd/stateroot/root-v1")
)

func appendWad(buf []byte, v *big.Int) []byte {
	fixed := make([]byte, wadWidth)
	if v != nil {
		v.FillBytes(fixed)
	}
	return append(buf, fixed...)
}

func appendU64(buf []byte, v uint64) []byte {
	var fixed [8]byte
	binary.BigEndian.PutUint64(fixed[:], v)
	return append(buf, fixed[:]...)
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// Compute derives the canonical state root from the seven domain-separated
// section hashes, per spec §4.10. Every collaborator is passed explicitly,
// matching the rest of the core's stateless-package composition; the state
// machine is the only caller that holds all of them at once.
func Compute(
	vlt *vault.Vault,
	fees *feeengine.Engine,
	rec *recovery.Manager,
	pool *stabilitypool.Pool,
	cdps *cdp.Manager,
	ldgr *ledger.Ledger,
) []byte {
	vaultHash := hashVault(vlt)
	feeHash := hashFee(fees)
	recoveryHash := hashRecovery(rec)
	poolHash := hashPool(pool)
	cdpsHash := hashCDPs(cdps)
	balancesHash := hashBalances(ldgr)
	depositsHash := hashDeposits(pool)

	return ethcrypto.Keccak256(
		tagRoot,
		vaultHash,
		feeHash,
		recoveryHash,
		poolHash,
		cdpsHash,
		balancesHash,
		depositsHash,
	)
}

func hashVault(vlt *vault.Vault) []byte {
	var buf []byte
	buf = appendWad(buf, vlt.TotalCollateral())
	buf = appendWad(buf, vlt.PendingLiquidation())
	return ethcrypto.Keccak256(tagVault, buf)
}

func hashFee(fees *feeengine.Engine) []byte {
	var buf []byte
	buf = appendWad(buf, fees.BaseRate())
	buf = appendU64(buf, fees.LastFeeOpTime())
	buf = appendU64(buf, fees.LastRedemptionTime())
	return ethcrypto.Keccak256(tagFee, buf)
}

func hashRecovery(rec *recovery.Manager) []byte {
	var buf []byte
	buf = appendU64(buf, uint64(rec.Mode()))
	tcr := rec.TCR()
	buf = appendBool(buf, tcr != nil)
	buf = appendWad(buf, tcr)
	return ethcrypto.Keccak256(tagRecovery, buf)
}

func hashPool(pool *stabilitypool.Pool) []byte {
	var buf []byte
	buf = appendWad(buf, pool.P())
	buf = appendU64(buf, pool.Epoch())
	buf = appendU64(buf, pool.Scale())
	buf = appendWad(buf, pool.TotalDeposits())
	buf = appendWad(buf, pool.CollateralBuffer())
	return ethcrypto.Keccak256(tagPool, buf)
}

func hashCDPs(cdps *cdp.Manager) []byte {
	all := cdps.All()
	ids := make([]uint64, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var buf []byte
	for _, id := range ids {
		c := all[id]
		buf = appendU64(buf, c.ID)
		buf = append(buf, c.Owner.Bytes()...)
		buf = appendWad(buf, c.Collateral)
		buf = appendWad(buf, c.Debt)
		buf = appendU64(buf, uint64(c.Status))
		buf = appendU64(buf, c.CreatedAtBlock)
		buf = appendWad(buf, c.SnapshotLDebt)
		buf = appendWad(buf, c.SnapshotLCollateral)
	}
	return ethcrypto.Keccak256(tagCDPs, buf)
}

func hashBalances(ldgr *ledger.Ledger) []byte {
	var buf []byte
	for _, key := range ldgr.Accounts() {
		buf = append(buf, key[:]...)
		acct := crypto.NewAddress(crypto.AccountPrefix, key[:])
		buf = appendWad(buf, ldgr.BalanceOf(acct))
	}
	return ethcrypto.Keccak256(tagBalances, buf)
}

func hashDeposits(pool *stabilitypool.Pool) []byte {
	var buf []byte
	for _, key := range pool.Accounts() {
		snap := pool.SnapshotByKey(key)
		buf = append(buf, key[:]...)
		buf = appendWad(buf, snap.InitialDeposit)
		buf = appendWad(buf, snap.P)
		buf = appendWad(buf, snap.S)
		buf = appendU64(buf, snap.Epoch)
		buf = appendU64(buf, snap.Scale)
	}
	return ethcrypto.Keccak256(tagDeposits, buf)
}
