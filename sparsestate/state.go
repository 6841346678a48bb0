// Package sparsestate exposes the MPT-backed world state to an executor as a
// set of read operations, tracks which per-account storage tries have been
// hydrated, and computes the post-execution state root from a diff bundle.
//
// Unlike an always-committed, non-sparse trie backed by a persistent
// database, every trie here is backed by an in-memory index of RLP nodes
// reachable from a pre-state root, and a sub-trie never touched by
// execution stays an unresolved digest stub for the lifetime of the block.
package sparsestate

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/zeth-go/zeth"
	"github.com/zeth-go/zeth/core/types"
	"github.com/zeth-go/zeth/crypto"
	"github.com/zeth-go/zeth/rlp"
	"github.com/zeth-go/zeth/trie"
)

// Witness is the set of inputs the validator receives for one block:
// every RLP-encoded MPT node reachable from the pre-state root along every
// execution-touched or access-listed path, every bytecode reachable by
// code_by_hash, and the RLP of up to 256 ancestor headers.
type Witness struct {
	State   [][]byte
	Codes   [][]byte
	Headers []*types.Header // ordered newest-first, at most 256 entries
}

// SparseState is the partial view of the world state materialized from a
// witness: sub-tries never touched by execution remain digest stubs.
// Exclusively owned by one ValidateBlock call for the duration of one block.
type SparseState struct {
	state       *trie.Trie
	storages    map[types.Address]*trie.Trie
	rlpByDigest map[types.Hash][]byte
	codeIndex   map[types.Hash][]byte
	ancestors   map[uint64]types.Hash

	// used records every witness node actually resolved during hydration,
	// so a caller can report how much of the supplied witness the block
	// actually needed (see WitnessUtilization). A witness is built by
	// walking every execution-touched path ahead of time, so some
	// supplied nodes are routinely never read back; a utilization ratio
	// well below 1 across many blocks signals an oversized witness
	// builder upstream rather than a bug in this validator.
	used *crypto.PreimageTracker
}

// New builds a SparseState by hydrating the state trie from preStateRoot
// against the witness's node index. Returns WitnessRevealFailedError if the
// node addressed by preStateRoot is not present in the witness.
func New(w *Witness, preStateRoot types.Hash) (*SparseState, error) {
	rlpByDigest := make(map[types.Hash][]byte, len(w.State))
	for _, n := range w.State {
		rlpByDigest[crypto.Keccak256Hash(n)] = n
	}

	codeIndex := make(map[types.Hash][]byte, len(w.Codes))
	for _, c := range w.Codes {
		codeIndex[crypto.Keccak256Hash(c)] = c
	}

	ancestors := make(map[uint64]types.Hash, len(w.Headers))
	for _, h := range w.Headers {
		ancestors[h.Number.Uint64()] = h.Hash()
	}

	s := &SparseState{
		storages:    make(map[types.Address]*trie.Trie),
		rlpByDigest: rlpByDigest,
		codeIndex:   codeIndex,
		ancestors:   ancestors,
		used:        crypto.NewPreimageTracker(),
	}

	s.state = trie.HydrateFromDigest(preStateRoot, s.resolver())
	if !s.state.RootResolved() {
		return nil, &zeth.WitnessRevealFailedError{Root: preStateRoot}
	}
	// The witness bytes are untrusted: check every reachable node's cached
	// reference against a fresh re-encoding before anything reads through
	// the trie. A node whose supplied encoding is not the canonical form of
	// what it decodes to would otherwise hydrate silently and surface only
	// as a wrong root much later (or not at all, if the block never
	// rewrites that path).
	if err := s.state.VerifyReference(); err != nil {
		return nil, err
	}
	return s, nil
}

// resolver returns the shared witness-node resolver backing every trie
// (state and every per-account storage trie) built from this witness. Every
// node it hands back to the trie package is also recorded in s.used, so
// WitnessUtilization can report how much of the witness the block touched.
func (s *SparseState) resolver() trie.Resolver {
	return func(h types.Hash) ([]byte, bool) {
		n, ok := s.rlpByDigest[h]
		if ok {
			s.used.Record(n)
		}
		return n, ok
	}
}

// WitnessUtilization reports how many of the witness's state nodes were
// actually resolved while validating this block, against how many were
// supplied. A ratio well under 1 across a sample of blocks is a signal to
// tighten the witness builder rather than a defect in this validator.
func (s *SparseState) WitnessUtilization() (used, total int) {
	return s.used.Count(), len(s.rlpByDigest)
}

// accountRLP is the wire shape of a state-trie leaf value: [nonce, balance,
// storage_root, code_hash].
type accountRLP struct {
	Nonce    uint64
	Balance  *big.Int
	Root     []byte
	CodeHash []byte
}

// Account retrieves the account at address, and lazily hydrates its storage
// trie against the witness index if it has not been hydrated yet. This
// lazy hydration matters: most accounts touched for balance or nonce never
// have their storage read, and their storage tries never need decoding.
func (s *SparseState) Account(address types.Address) (*types.Account, error) {
	hashed := crypto.Keccak256Hash(address.Bytes())
	raw, err := s.state.Get(hashed.Bytes())
	if err != nil {
		if err == trie.ErrNotFound {
			// The read still counts for the account-before-storage
			// precondition: a slot read on a nonexistent account is legal
			// and uniformly zero.
			if _, ok := s.storages[address]; !ok {
				s.storages[address] = trie.New()
			}
			return nil, nil
		}
		return nil, err
	}

	var ra accountRLP
	if err := rlp.DecodeBytes(raw, &ra); err != nil {
		return nil, err
	}
	acc := &types.Account{
		Nonce:    ra.Nonce,
		Balance:  ra.Balance,
		Root:     types.BytesToHash(ra.Root),
		CodeHash: ra.CodeHash,
	}

	if _, ok := s.storages[address]; !ok {
		st := trie.HydrateFromDigest(acc.Root, s.resolver())
		// Same reference check as the state trie in New: a storage trie is
		// hydrated from the same untrusted witness index, just later.
		if err := st.VerifyReference(); err != nil {
			return nil, err
		}
		s.storages[address] = st
	}
	return acc, nil
}

// Storage reads slot of address's storage trie, decoding the value as a
// U256 and defaulting to zero when the slot is absent. The caller must have
// already called Account(address) on this SparseState: that call is what
// hydrates the per-account storage trie this method reads from.
func (s *SparseState) Storage(address types.Address, slot types.Hash) (*uint256.Int, error) {
	st, ok := s.storages[address]
	if !ok {
		panic("sparsestate: storage read before account read for " + address.Hex())
	}
	hashedSlot := crypto.Keccak256Hash(slot.Bytes())
	raw, err := st.Get(hashedSlot.Bytes())
	if err != nil {
		if err == trie.ErrNotFound {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	var b []byte
	if err := rlp.DecodeBytes(raw, &b); err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b), nil
}

// CodeByHash looks up bytecode by its Keccak-256 hash. The empty-code hash
// always resolves to the empty byte string, regardless of whether it is
// present in the witness's code index.
func (s *SparseState) CodeByHash(hash types.Hash) ([]byte, error) {
	if hash == types.EmptyCodeHash {
		return []byte{}, nil
	}
	code, ok := s.codeIndex[hash]
	if !ok {
		return nil, &zeth.CodeNotFoundError{Hash: hash}
	}
	return code, nil
}

// BlockHash looks up the hash of ancestor block number n from the witness's
// header list. Fails if n falls outside the supplied ancestor window
// (at most 256 blocks, per the EVM BLOCKHASH opcode's own limit).
func (s *SparseState) BlockHash(n uint64) (types.Hash, error) {
	h, ok := s.ancestors[n]
	if !ok {
		return types.Hash{}, &zeth.BlockNotFoundError{Number: n}
	}
	return h, nil
}

// AccountChange is the post-execution state of one touched account, or nil
// (via the map value being absent with Removed=true) to mark deletion.
type AccountChange struct {
	Removed      bool
	Nonce        uint64
	Balance      *big.Int
	CodeHash     types.Hash
	StorageWiped bool
	Storage      map[types.Hash]*uint256.Int // slot -> new value (zero means delete)
}

// Diff is the bundle the executor returns after processing every
// transaction in a block: one AccountChange per touched address.
type Diff struct {
	Accounts map[types.Address]*AccountChange
}

// CalculateStateRoot applies diff to the sparse state and returns the
// resulting state-trie root. Account deletions are queued and applied only
// after every other account has been processed (the insert-before-remove
// ordering rule), and within each account's storage trie every insert is
// applied before any remove, so that a slot transitioning from zero to
// non-zero and back within the same block never leaves orphan nodes
// unresolved mid-sequence.
func (s *SparseState) CalculateStateRoot(diff *Diff) (types.Hash, error) {
	var toRemove []types.Hash

	for address, change := range diff.Accounts {
		hashed := crypto.Keccak256Hash(address.Bytes())

		if change.Removed {
			toRemove = append(toRemove, hashed)
			delete(s.storages, address)
			continue
		}

		st, ok := s.storages[address]
		if !ok {
			st = trie.New()
			s.storages[address] = st
		}
		if change.StorageWiped {
			st.Clear()
		}

		// Insert-before-remove: apply every non-zero slot write first.
		for slot, value := range change.Storage {
			if value == nil || value.IsZero() {
				continue
			}
			hashedSlot := crypto.Keccak256Hash(slot.Bytes())
			enc, err := rlp.EncodeToBytes(value.Bytes())
			if err != nil {
				return types.Hash{}, err
			}
			if _, err := st.Insert(hashedSlot.Bytes(), enc); err != nil {
				return types.Hash{}, err
			}
		}
		for slot, value := range change.Storage {
			if value != nil && !value.IsZero() {
				continue
			}
			hashedSlot := crypto.Keccak256Hash(slot.Bytes())
			if _, err := st.Remove(hashedSlot.Bytes()); err != nil {
				return types.Hash{}, err
			}
		}

		storageRoot, err := st.Hash()
		if err != nil {
			return types.Hash{}, err
		}

		codeHash := change.CodeHash
		if codeHash.IsZero() {
			codeHash = types.EmptyCodeHash
		}
		balance := change.Balance
		if balance == nil {
			balance = new(big.Int)
		}
		acc := types.Account{Nonce: change.Nonce, Balance: balance, CodeHash: codeHash.Bytes()}

		// EIP-161: a touched account left with zero nonce, zero balance, and
		// no code is pruned from the trie rather than inserted as a
		// zero-valued leaf, even if the executor didn't explicitly mark it
		// Removed. This is what lets an account be created and then drained
		// to empty within the same block without leaving a stray leaf.
		if acc.IsEmpty() {
			toRemove = append(toRemove, hashed)
			delete(s.storages, address)
			continue
		}

		ra := accountRLP{
			Nonce:    change.Nonce,
			Balance:  balance,
			Root:     storageRoot.Bytes(),
			CodeHash: codeHash.Bytes(),
		}
		enc, err := rlp.EncodeToBytes(ra)
		if err != nil {
			return types.Hash{}, err
		}
		if _, err := s.state.Insert(hashed.Bytes(), enc); err != nil {
			return types.Hash{}, err
		}
	}

	for _, hashed := range toRemove {
		if _, err := s.state.Remove(hashed.Bytes()); err != nil {
			return types.Hash{}, err
		}
	}

	return s.state.Hash()
}
