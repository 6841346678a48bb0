package types

import (
	"bytes"
	"math/big"

	"github.com/zeth-go/zeth/rlp"
	"golang.org/x/crypto/sha3"
)

// EIP-7702 SetCode constants.
const (
	// AuthMagic is the signing magic byte for EIP-7702 authorization hashes.
	// The authorization hash is: keccak256(0x05 || rlp([chain_id, address, nonce]))
	AuthMagic byte = 0x05

	// PerAuthBaseCost is the gas charged per authorization entry (EIP-7702).
	PerAuthBaseCost uint64 = 12500

	// PerEmptyAccountCost is the additional gas charged per authorization
	// entry that targets an empty (non-existent) account.
	PerEmptyAccountCost uint64 = 25000
)

// DelegationPrefix is the EIP-7702 delegation designator prefix.
// Code starting with this prefix indicates account code delegation.
var DelegationPrefix = []byte{0xef, 0x01, 0x00}

// ParseDelegation extracts the target address from delegation code.
// Returns the delegated address and true if b is exactly 23 bytes
// with the 0xef0100 prefix. Returns zero address and false otherwise.
func ParseDelegation(b []byte) (Address, bool) {
	if len(b) != len(DelegationPrefix)+AddressLength {
		return Address{}, false
	}
	if !bytes.HasPrefix(b, DelegationPrefix) {
		return Address{}, false
	}
	return BytesToAddress(b[len(DelegationPrefix):]), true
}

// AddressToDelegation creates delegation designator code: 0xef0100 || address.
func AddressToDelegation(addr Address) []byte {
	code := make([]byte, len(DelegationPrefix)+AddressLength)
	copy(code, DelegationPrefix)
	copy(code[len(DelegationPrefix):], addr[:])
	return code
}

// HasDelegationPrefix returns whether the code starts with the delegation prefix.
func HasDelegationPrefix(code []byte) bool {
	return bytes.HasPrefix(code, DelegationPrefix)
}

// AuthorizationHash computes the EIP-7702 signing hash for one authorization
// tuple: keccak256(MAGIC || rlp([chain_id, address, nonce])). A chain_id of
// zero authorizes the delegation on every chain.
func AuthorizationHash(a Authorization) Hash {
	chainID := a.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	var items [][]byte
	enc := func(v interface{}) {
		b, _ := rlp.EncodeToBytes(v)
		items = append(items, b)
	}
	enc(chainID)
	enc(a.Address)
	enc(a.Nonce)

	var payload []byte
	for _, item := range items {
		payload = append(payload, item...)
	}
	body := append([]byte{AuthMagic}, rlp.WrapList(payload)...)

	d := sha3.NewLegacyKeccak256()
	d.Write(body)
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// RecoverAuthority recovers the account that signed an EIP-7702
// authorization tuple, reusing the same raw ECDSA recovery signer.go uses
// for transaction senders (authorization signatures carry a single-bit
// y-parity in V rather than a tx-style recovery id, but the underlying
// curve math is identical).
func RecoverAuthority(a Authorization) (Address, error) {
	if a.V == nil || a.R == nil || a.S == nil {
		return Address{}, errInvalidSig
	}
	if !a.V.IsUint64() || a.V.Uint64() > 1 {
		return Address{}, errInvalidSig
	}
	return RecoverPlain(AuthorizationHash(a), a.R, a.S, byte(a.V.Uint64()))
}
