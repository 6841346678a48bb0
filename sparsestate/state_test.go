package sparsestate

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"github.com/zeth-go/zeth"
	"github.com/zeth-go/zeth/core/types"
	"github.com/zeth-go/zeth/crypto"
	"github.com/zeth-go/zeth/rlp"
	"github.com/zeth-go/zeth/trie"
)

// fixture bundles a prepared pre-state trie plus the raw account/storage
// values used to build it, so each test can assert against the same values
// it inserted.
type fixture struct {
	addrA, addrB, addrC types.Address
	slotA               types.Hash
	slotAValue          *uint256.Int
	preStateRoot        types.Hash
	witness             *Witness
}

// buildFixture constructs a two-account pre-state: addrA has one non-zero
// storage slot, addrB has empty storage, addrC does not exist at all. It
// collects the full witness node set from both the state trie and addrA's
// storage trie, mirroring what a full node would hand a stateless client.
func buildFixture(t *testing.T) *fixture {
	t.Helper()

	addrA := types.HexToAddress("0x1111111111111111111111111111111111111111")
	addrB := types.HexToAddress("0x2222222222222222222222222222222222222222")
	addrC := types.HexToAddress("0x3333333333333333333333333333333333333333")
	slotA := types.HexToHash("0x01")
	slotAValue := uint256.NewInt(42)

	storageA := trie.New()
	slotEnc, err := rlp.EncodeToBytes(slotAValue.Bytes())
	if err != nil {
		t.Fatalf("encode slot value: %v", err)
	}
	hashedSlot := crypto.Keccak256Hash(slotA.Bytes())
	if _, err := storageA.Insert(hashedSlot.Bytes(), slotEnc); err != nil {
		t.Fatalf("insert storage slot: %v", err)
	}
	storageARoot, err := storageA.Hash()
	if err != nil {
		t.Fatalf("storage root: %v", err)
	}

	state := trie.New()
	accA := accountRLP{Nonce: 1, Balance: big.NewInt(1000), Root: storageARoot.Bytes(), CodeHash: types.EmptyCodeHash.Bytes()}
	accB := accountRLP{Nonce: 0, Balance: big.NewInt(500), Root: types.EmptyRootHash.Bytes(), CodeHash: types.EmptyCodeHash.Bytes()}

	for addr, acc := range map[types.Address]accountRLP{addrA: accA, addrB: accB} {
		enc, err := rlp.EncodeToBytes(acc)
		if err != nil {
			t.Fatalf("encode account: %v", err)
		}
		hashed := crypto.Keccak256Hash(addr.Bytes())
		if _, err := state.Insert(hashed.Bytes(), enc); err != nil {
			t.Fatalf("insert account: %v", err)
		}
	}

	preStateRoot, err := state.Hash()
	if err != nil {
		t.Fatalf("state root: %v", err)
	}

	stateNodes, err := state.CollectWitnessNodes()
	if err != nil {
		t.Fatalf("collect state nodes: %v", err)
	}
	storageNodes, err := storageA.CollectWitnessNodes()
	if err != nil {
		t.Fatalf("collect storage nodes: %v", err)
	}

	var raw [][]byte
	for _, v := range stateNodes {
		raw = append(raw, v)
	}
	for _, v := range storageNodes {
		raw = append(raw, v)
	}

	return &fixture{
		addrA: addrA, addrB: addrB, addrC: addrC,
		slotA: slotA, slotAValue: slotAValue,
		preStateRoot: preStateRoot,
		witness:      &Witness{State: raw},
	}
}

func TestNewWitnessRevealFailed(t *testing.T) {
	missing := types.HexToHash("0xdeadbeef")
	_, err := New(&Witness{}, missing)
	wrf, ok := err.(*zeth.WitnessRevealFailedError)
	if !ok {
		t.Fatalf("expected *zeth.WitnessRevealFailedError, got %T: %v", err, err)
	}
	if wrf.Root != missing {
		t.Fatalf("root = %s, want %s", wrf.Root.Hex(), missing.Hex())
	}
}

func TestAccountRead(t *testing.T) {
	f := buildFixture(t)
	s, err := New(f.witness, f.preStateRoot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	acc, err := s.Account(f.addrA)
	if err != nil {
		t.Fatalf("Account(A): %v", err)
	}
	if acc == nil {
		t.Fatal("Account(A) = nil, want populated account")
	}
	if acc.Nonce != 1 {
		t.Errorf("nonce = %d, want 1", acc.Nonce)
	}
	if acc.Balance.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("balance = %v, want 1000", acc.Balance)
	}

	missing, err := s.Account(f.addrC)
	if err != nil {
		t.Fatalf("Account(C): %v", err)
	}
	if missing != nil {
		t.Fatalf("Account(C) = %+v, want nil", missing)
	}
}

func TestStorageRead(t *testing.T) {
	f := buildFixture(t)
	s, err := New(f.witness, f.preStateRoot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := s.Account(f.addrA); err != nil {
		t.Fatalf("Account(A): %v", err)
	}
	got, err := s.Storage(f.addrA, f.slotA)
	if err != nil {
		t.Fatalf("Storage(A, slotA): %v", err)
	}
	if got.Cmp(f.slotAValue) != 0 {
		t.Errorf("slot value = %s, want %s", got, f.slotAValue)
	}

	zero, err := s.Storage(f.addrA, types.HexToHash("0x02"))
	if err != nil {
		t.Fatalf("Storage(A, unset slot): %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("unset slot = %s, want 0", zero)
	}
}

func TestStoragePanicsBeforeAccountRead(t *testing.T) {
	f := buildFixture(t)
	s, err := New(f.witness, f.preStateRoot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic reading storage before account")
		}
	}()
	_, _ = s.Storage(f.addrB, f.slotA)
}

func TestCodeByHash(t *testing.T) {
	code := []byte{0x60, 0x00, 0x60, 0x00}
	hash := crypto.Keccak256Hash(code)
	s, err := New(&Witness{Codes: [][]byte{code}}, trie.EmptyRoot())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := s.CodeByHash(hash)
	if err != nil {
		t.Fatalf("CodeByHash: %v", err)
	}
	if string(got) != string(code) {
		t.Errorf("code = %x, want %x", got, code)
	}

	empty, err := s.CodeByHash(types.EmptyCodeHash)
	if err != nil {
		t.Fatalf("CodeByHash(empty): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty code = %x, want zero length", empty)
	}

	_, err = s.CodeByHash(types.HexToHash("0xabcd"))
	if _, ok := err.(*zeth.CodeNotFoundError); !ok {
		t.Fatalf("expected CodeNotFoundError, got %T: %v", err, err)
	}
}

func TestBlockHash(t *testing.T) {
	h1 := &types.Header{Number: big.NewInt(1), Difficulty: big.NewInt(0)}
	h2 := &types.Header{Number: big.NewInt(2), Difficulty: big.NewInt(0), ParentHash: h1.Hash()}
	s, err := New(&Witness{Headers: []*types.Header{h2, h1}}, trie.EmptyRoot())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := s.BlockHash(1)
	if err != nil {
		t.Fatalf("BlockHash(1): %v", err)
	}
	if got != h1.Hash() {
		t.Errorf("BlockHash(1) = %s, want %s", got.Hex(), h1.Hash().Hex())
	}

	_, err = s.BlockHash(99)
	if _, ok := err.(*zeth.BlockNotFoundError); !ok {
		t.Fatalf("expected BlockNotFoundError, got %T: %v", err, err)
	}
}

// corruptCompactPath flips the unused low nibble of a leaf node's
// hex-prefix flag byte (0x20 -> 0x2f for an even-length leaf path). The
// mutated bytes still decode to the same node, but their canonical
// re-encoding differs, which is exactly the class of witness defect
// reference verification exists to catch.
func corruptCompactPath(t *testing.T, enc []byte) []byte {
	t.Helper()
	mutated := append([]byte(nil), enc...)
	for i := 0; i+1 < len(mutated); i++ {
		if mutated[i] == 0xa1 && mutated[i+1] == 0x20 {
			mutated[i+1] = 0x2f
			return mutated
		}
	}
	t.Fatal("no even-length leaf path found in node encoding")
	return nil
}

// TestNewRejectsNonCanonicalWitnessNode hydrates from a witness whose root
// node carries a non-canonical hex-prefix byte: it decodes fine and is
// indexed under its own keccak, so only the reference check at hydration
// can reject it.
func TestNewRejectsNonCanonicalWitnessNode(t *testing.T) {
	state := trie.New()
	acc := accountRLP{Nonce: 1, Balance: big.NewInt(7), Root: types.EmptyRootHash.Bytes(), CodeHash: types.EmptyCodeHash.Bytes()}
	enc, err := rlp.EncodeToBytes(acc)
	if err != nil {
		t.Fatalf("encode account: %v", err)
	}
	addr := types.HexToAddress("0x5555555555555555555555555555555555555555")
	hashed := crypto.Keccak256Hash(addr.Bytes())
	if _, err := state.Insert(hashed.Bytes(), enc); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	nodes, err := state.CollectWitnessNodes()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected a single root node, got %d", len(nodes))
	}
	var rootNode []byte
	for _, n := range nodes {
		rootNode = n
	}

	mutated := corruptCompactPath(t, rootNode)
	mutatedRoot := crypto.Keccak256Hash(mutated)

	_, err = New(&Witness{State: [][]byte{mutated}}, mutatedRoot)
	if err == nil {
		t.Fatal("expected hydration to reject a non-canonical witness node")
	}
	if !errors.Is(err, trie.ErrMalformedNode) {
		t.Fatalf("expected trie.ErrMalformedNode, got %T: %v", err, err)
	}
}

// TestAccountRejectsNonCanonicalStorageNode plants the same defect one
// level down: the state trie is canonical, but the account's storage root
// addresses a mutated storage leaf, so the failure must surface at the
// lazy storage-trie hydration inside Account.
func TestAccountRejectsNonCanonicalStorageNode(t *testing.T) {
	slotEnc, err := rlp.EncodeToBytes(uint256.NewInt(42).Bytes())
	if err != nil {
		t.Fatalf("encode slot value: %v", err)
	}
	storage := trie.New()
	hashedSlot := crypto.Keccak256Hash(types.HexToHash("0x01").Bytes())
	if _, err := storage.Insert(hashedSlot.Bytes(), slotEnc); err != nil {
		t.Fatalf("insert slot: %v", err)
	}
	storageNodes, err := storage.CollectWitnessNodes()
	if err != nil {
		t.Fatalf("collect storage: %v", err)
	}
	var storageRootNode []byte
	for _, n := range storageNodes {
		storageRootNode = n
	}
	mutated := corruptCompactPath(t, storageRootNode)
	mutatedRoot := crypto.Keccak256Hash(mutated)

	state := trie.New()
	acc := accountRLP{Nonce: 1, Balance: big.NewInt(7), Root: mutatedRoot.Bytes(), CodeHash: types.EmptyCodeHash.Bytes()}
	enc, err := rlp.EncodeToBytes(acc)
	if err != nil {
		t.Fatalf("encode account: %v", err)
	}
	addr := types.HexToAddress("0x6666666666666666666666666666666666666666")
	hashed := crypto.Keccak256Hash(addr.Bytes())
	if _, err := state.Insert(hashed.Bytes(), enc); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	preStateRoot, err := state.Hash()
	if err != nil {
		t.Fatalf("state root: %v", err)
	}
	stateNodes, err := state.CollectWitnessNodes()
	if err != nil {
		t.Fatalf("collect state: %v", err)
	}
	raw := [][]byte{mutated}
	for _, n := range stateNodes {
		raw = append(raw, n)
	}

	s, err := New(&Witness{State: raw}, preStateRoot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Account(addr); !errors.Is(err, trie.ErrMalformedNode) {
		t.Fatalf("expected trie.ErrMalformedNode from storage hydration, got %T: %v", err, err)
	}
}

// TestStorageReadMissingNode strips every storage-trie node from the
// witness: Account still succeeds (the account leaf lives in the state
// trie), but the storage trie hydrates to a bare digest stub and the first
// slot read must surface NodeNotResolved rather than a default value.
func TestStorageReadMissingNode(t *testing.T) {
	f := buildFixture(t)

	full, err := New(f.witness, f.preStateRoot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	acc, err := full.Account(f.addrA)
	if err != nil {
		t.Fatalf("Account(A): %v", err)
	}

	var pruned [][]byte
	for _, n := range f.witness.State {
		if crypto.Keccak256Hash(n) == acc.Root {
			continue
		}
		pruned = append(pruned, n)
	}

	s, err := New(&Witness{State: pruned}, f.preStateRoot)
	if err != nil {
		t.Fatalf("New(pruned): %v", err)
	}
	if _, err := s.Account(f.addrA); err != nil {
		t.Fatalf("Account(A) with pruned storage: %v", err)
	}
	_, err = s.Storage(f.addrA, f.slotA)
	var notResolved *trie.NodeNotResolvedError
	if !errors.As(err, &notResolved) {
		t.Fatalf("expected *trie.NodeNotResolvedError, got %T: %v", err, err)
	}
	if notResolved.Hash != acc.Root {
		t.Errorf("unresolved hash = %s, want storage root %s", notResolved.Hash.Hex(), acc.Root.Hex())
	}
}

// TestCalculateStateRootStorageWipe models SELFDESTRUCT-then-recreate: the
// account's existing storage is wiped before the block's slot writes are
// applied, so the final storage root reflects only the newly written slot.
func TestCalculateStateRootStorageWipe(t *testing.T) {
	f := buildFixture(t)
	s, err := New(f.witness, f.preStateRoot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Account(f.addrA); err != nil {
		t.Fatalf("Account(A): %v", err)
	}

	newSlot := types.HexToHash("0x09")
	diff := &Diff{Accounts: map[types.Address]*AccountChange{
		f.addrA: {
			Nonce: 1, Balance: big.NewInt(1), CodeHash: types.EmptyCodeHash,
			StorageWiped: true,
			Storage: map[types.Hash]*uint256.Int{
				newSlot: uint256.NewInt(7),
			},
		},
	}}
	got, err := s.CalculateStateRoot(diff)
	if err != nil {
		t.Fatalf("CalculateStateRoot: %v", err)
	}

	expStorage := trie.New()
	enc, err := rlp.EncodeToBytes(uint256.NewInt(7).Bytes())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hashedNewSlot := crypto.Keccak256Hash(newSlot.Bytes())
	if _, err := expStorage.Insert(hashedNewSlot.Bytes(), enc); err != nil {
		t.Fatalf("insert: %v", err)
	}
	expStorageRoot, err := expStorage.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	expState := trie.New()
	accA := accountRLP{Nonce: 1, Balance: big.NewInt(1), Root: expStorageRoot.Bytes(), CodeHash: types.EmptyCodeHash.Bytes()}
	accB := accountRLP{Nonce: 0, Balance: big.NewInt(500), Root: types.EmptyRootHash.Bytes(), CodeHash: types.EmptyCodeHash.Bytes()}
	for addr, acc := range map[types.Address]accountRLP{f.addrA: accA, f.addrB: accB} {
		enc, err := rlp.EncodeToBytes(acc)
		if err != nil {
			t.Fatalf("encode account: %v", err)
		}
		hashed := crypto.Keccak256Hash(addr.Bytes())
		if _, err := expState.Insert(hashed.Bytes(), enc); err != nil {
			t.Fatalf("insert account: %v", err)
		}
	}
	want, err := expState.Hash()
	if err != nil {
		t.Fatalf("expected root: %v", err)
	}

	if got != want {
		t.Fatalf("state root = %s, want %s", got.Hex(), want.Hex())
	}
}

// TestCalculateStateRoot applies a diff touching every case the ordering
// rule exists for (new account, balance-only update, storage insert and
// remove within the same block, full storage wipe, account removal) and
// checks the result against a trie built independently from the same final
// values, rather than a hand-computed hash.
func TestCalculateStateRoot(t *testing.T) {
	f := buildFixture(t)
	s, err := New(f.witness, f.preStateRoot)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Hydrate A and B's storage tries via Account, as the executor contract requires.
	if _, err := s.Account(f.addrA); err != nil {
		t.Fatalf("Account(A): %v", err)
	}
	if _, err := s.Account(f.addrB); err != nil {
		t.Fatalf("Account(B): %v", err)
	}

	addrD := types.HexToAddress("0x4444444444444444444444444444444444444444")
	newSlot := types.HexToHash("0x07")

	diff := &Diff{Accounts: map[types.Address]*AccountChange{
		f.addrA: {
			Nonce: 2, Balance: big.NewInt(1500), CodeHash: types.EmptyCodeHash,
			Storage: map[types.Hash]*uint256.Int{
				f.slotA: new(uint256.Int), // clears the existing slot
				newSlot: uint256.NewInt(99),
			},
		},
		f.addrB: {Removed: true},
		addrD:   {Nonce: 0, Balance: big.NewInt(1), CodeHash: types.EmptyCodeHash},
	}}

	got, err := s.CalculateStateRoot(diff)
	if err != nil {
		t.Fatalf("CalculateStateRoot: %v", err)
	}

	// Build the expected end state independently.
	expStorageA := trie.New()
	enc, err := rlp.EncodeToBytes(uint256.NewInt(99).Bytes())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hashedNewSlot := crypto.Keccak256Hash(newSlot.Bytes())
	if _, err := expStorageA.Insert(hashedNewSlot.Bytes(), enc); err != nil {
		t.Fatalf("insert: %v", err)
	}
	expStorageARoot, err := expStorageA.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	expState := trie.New()
	accA := accountRLP{Nonce: 2, Balance: big.NewInt(1500), Root: expStorageARoot.Bytes(), CodeHash: types.EmptyCodeHash.Bytes()}
	accD := accountRLP{Nonce: 0, Balance: big.NewInt(1), Root: types.EmptyRootHash.Bytes(), CodeHash: types.EmptyCodeHash.Bytes()}
	for addr, acc := range map[types.Address]accountRLP{f.addrA: accA, addrD: accD} {
		enc, err := rlp.EncodeToBytes(acc)
		if err != nil {
			t.Fatalf("encode account: %v", err)
		}
		hashed := crypto.Keccak256Hash(addr.Bytes())
		if _, err := expState.Insert(hashed.Bytes(), enc); err != nil {
			t.Fatalf("insert account: %v", err)
		}
	}
	want, err := expState.Hash()
	if err != nil {
		t.Fatalf("expected root: %v", err)
	}

	if got != want {
		t.Fatalf("state root = %s, want %s", got.Hex(), want.Hex())
	}
}
