package crypto

import (
	"sync"

	"github.com/zeth-go/zeth/core/types"
	"golang.org/x/crypto/sha3"
)

// hasherPool recycles Keccak state across the many digests a single witness
// hydration computes: sparsestate.New hashes every RLP node in the witness
// to build its digest index, so allocating a fresh sha3 state per node is
// wasted work proportional to witness size.
var hasherPool = sync.Pool{
	New: func() any { return sha3.NewLegacyKeccak256() },
}

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := hasherPool.Get().(interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
		Reset()
	})
	defer func() {
		d.Reset()
		hasherPool.Put(d)
	}()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a types.Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(data...))
}
