package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable bech32 prefix used when displaying an
// Address. The core only ever compares and stores the underlying 20 bytes;
// the prefix exists purely for presentation (logs, explorer links).
type AddressPrefix string

// AccountPrefix is used for every opaque account key the core references:
// CDP owners, stability pool depositors, the vault/collateral treasury, and
// protocol fee recipients. spec.md models owners as a single opaque key
// space (§3 "owner (opaque account key"); there is no sub-asset distinction
// at this layer the way the teacher chain splits NHB/ZNHB.
const AccountPrefix AddressPrefix = "zku"

// Address is an opaque 20-byte account key. It never carries signing
// authority inside this module — spec.md §1 Non-goals excludes signature
// verification from the core; callers authenticate before an operation
// reaches the state machine.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress constructs an Address from a 20-byte key.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: b}
}

// MustNewAddress is a convenience constructor for call sites (event
// formatting) that already hold a validated 20-byte slice.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	return NewAddress(prefix, b)
}

// IsZero reports whether a is the all-zero key, used as the "absent
// recipient" sentinel throughout the fee-routing and liquidation paths.
func (a Address) IsZero() bool {
	if len(a.bytes) == 0 {
		return true
	}
	for _, b := range a.bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the raw 20-byte key. Callers must not mutate the result.
func (a Address) Bytes() []byte {
	return a.bytes
}

// Key returns a comparable map key for use in Go maps, since Address itself
// holds a slice and is not comparable.
func (a Address) Key() [20]byte {
	var k [20]byte
	copy(k[:], a.bytes)
	return k
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// --- Key management (off-core: used only by test fixtures and the example
// harness to mint addresses; the state machine itself never generates or
// verifies keys, per spec.md §1 Non-goals). ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(AccountPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
