package trie

import (
	"bytes"

	"github.com/zeth-go/zeth/core/types"
	"github.com/zeth-go/zeth/crypto"
	"github.com/zeth-go/zeth/rlp"
)

// emptyRoot is the root hash of an empty trie: Keccak256(RLP("")) = Keccak256(0x80).
var emptyRoot = crypto.Keccak256Hash([]byte{0x80})

// EmptyRoot returns the well-known root hash of the empty trie.
func EmptyRoot() types.Hash { return emptyRoot }

// Trie is the cached Merkle-Patricia Trie described by the data model: a
// single root pointer that may be null, a fully owned subtree, a subtree
// borrowed from witness bytes, or an unresolved digest stub. resolver backs
// every borrowed pointer reached from this trie (including lazily-decoded
// descendants); it is shared, immutable, and safe to reuse across the state
// trie and every per-account storage trie built from the same witness.
type Trie struct {
	root     NodePointer
	resolver Resolver
}

// New creates a new, empty trie with no witness-backed nodes.
func New() *Trie {
	return &Trie{root: nullPointer()}
}

// HydrateFromDigest builds a trie whose root is the node addressed by root
// in the resolver's index. If root is not present in the index, the
// returned trie's root is itself an unresolved digest stub (this is legal:
// the caller may never touch it), mirroring the lazy-hydration contract of
// §4.3; callers that require the root node to be present (state-trie
// construction against pre_state_root) check for that themselves and
// surface WitnessRevealFailed.
func HydrateFromDigest(root types.Hash, r Resolver) *Trie {
	if root == emptyRoot {
		return &Trie{root: nullPointer(), resolver: r}
	}
	if raw, ok := r.lookup(root); ok {
		return &Trie{root: borrowedPointer(raw), resolver: r}
	}
	return &Trie{root: digestPointer(root), resolver: r}
}

// RootResolved reports whether the root node itself (not necessarily its
// descendants) is available, i.e. hydration found a node for the root hash.
func (t *Trie) RootResolved() bool { return !t.root.isDigest }

// Get retrieves the value associated with key. Returns ErrNotFound if the
// key is absent, or *NodeNotResolvedError if the walk descends into a
// digest stub.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.get(&t.root, keybytesToHex(key))
}

func (t *Trie) get(p *NodePointer, key []byte) ([]byte, error) {
	n, err := p.Load(t.resolver)
	if err != nil {
		return nil, err
	}
	switch n.kind {
	case KindNull:
		return nil, ErrNotFound
	case KindLeaf:
		if !bytes.Equal(n.key, key) {
			return nil, ErrNotFound
		}
		return n.value, nil
	case KindExtension:
		if len(key) < len(n.key) || !bytes.Equal(n.key, key[:len(n.key)]) {
			return nil, ErrNotFound
		}
		return t.get(&n.child, key[len(n.key):])
	case KindBranch:
		if len(key) == 0 {
			return nil, ErrNotFound
		}
		return t.get(&n.children[key[0]], key[1:])
	default:
		return nil, ErrMalformedNode
	}
}

// GetRLP retrieves and RLP-decodes the value at key into out.
func (t *Trie) GetRLP(key []byte, out interface{}) (bool, error) {
	v, err := t.Get(key)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(v, out); err != nil {
		return false, err
	}
	return true, nil
}

// Insert sets key to value, which must be non-empty (use Remove to delete).
// Returns true if the trie's structure changed (new key or changed value).
func (t *Trie) Insert(key, value []byte) (bool, error) {
	if len(value) == 0 {
		return t.Remove(key)
	}
	k := keybytesToHex(key)
	changed, newRoot, err := t.insert(&t.root, k, value)
	if err != nil {
		return false, err
	}
	if changed {
		t.root = newRoot
	}
	return changed, nil
}

// InsertRLP RLP-encodes value and inserts it.
func (t *Trie) InsertRLP(key []byte, value interface{}) (bool, error) {
	enc, err := rlp.EncodeToBytes(value)
	if err != nil {
		return false, err
	}
	return t.Insert(key, enc)
}

// insert returns whether the trie changed and, if so, the new pointer to
// install at the caller's slot. p is resolved (never mutated in place); the
// returned pointer is always an owned pointer so that the caller's parent
// naturally observes a cleared (nil) reference cache on the walked path.
func (t *Trie) insert(p *NodePointer, key, value []byte) (bool, NodePointer, error) {
	n, err := p.Load(t.resolver)
	if err != nil {
		return false, NodePointer{}, err
	}
	switch n.kind {
	case KindNull:
		return true, ownedPointer(&Node{kind: KindLeaf, key: key, value: value}), nil

	case KindLeaf:
		return t.insertAtShort(n.key, n.value, NodePointer{}, key, value, true)

	case KindExtension:
		return t.insertAtShort(n.key, nil, n.child, key, value, false)

	case KindBranch:
		if len(key) == 0 {
			return false, NodePointer{}, ErrValueInBranch
		}
		nb := &Node{kind: KindBranch, children: n.children}
		changed, child, err := t.insert(&nb.children[key[0]], key[1:], value)
		if err != nil {
			return false, NodePointer{}, err
		}
		if !changed {
			return false, NodePointer{}, nil
		}
		nb.children[key[0]] = child
		return true, ownedPointer(nb), nil

	default:
		return false, NodePointer{}, ErrMalformedNode
	}
}

// insertAtShort handles insertion at an existing leaf (isLeaf=true, child is
// unused) or extension (isLeaf=false, childVal unused, child is the
// existing subtree). existingKey is the node's current nibble path.
func (t *Trie) insertAtShort(existingKey, childVal []byte, child NodePointer, key, value []byte, isLeaf bool) (bool, NodePointer, error) {
	matchLen := prefixLen(existingKey, key)

	if matchLen == len(existingKey) && matchLen == len(key) {
		// Exact same path: update value (leaf) or recurse unchanged (extension, impossible since extension key never carries terminator equal to a full key).
		if isLeaf {
			if bytes.Equal(childVal, value) {
				return false, NodePointer{}, nil
			}
			return true, ownedPointer(&Node{kind: KindLeaf, key: existingKey, value: value}), nil
		}
	}

	if matchLen == len(existingKey) {
		// Key continues past this node: recurse into the child (extension only; a
		// leaf's key always ends in the terminator, so it can never be a strict
		// prefix of a longer, non-terminated key without the terminator
		// collision being caught below).
		if isLeaf {
			return false, NodePointer{}, ErrValueInBranch
		}
		changed, newChild, err := t.insert(&child, key[matchLen:], value)
		if err != nil {
			return false, NodePointer{}, err
		}
		if !changed {
			return false, NodePointer{}, nil
		}
		return true, ownedPointer(&Node{kind: KindExtension, key: existingKey, child: newChild}), nil
	}

	// Diverging paths. If either side has nothing left but the terminator
	// at the divergence point, one key is a strict prefix of the other:
	// Ethereum's MPT has nowhere to place such a value except directly on
	// a branch, which is never allowed.
	if existingKey[matchLen] == terminatorByte || (matchLen < len(key) && key[matchLen] == terminatorByte) || matchLen == len(key) {
		return false, NodePointer{}, ErrValueInBranch
	}

	branch := &Node{kind: KindBranch}

	var existingChild NodePointer
	if isLeaf {
		existingChild = ownedPointer(&Node{kind: KindLeaf, key: existingKey[matchLen+1:], value: childVal})
	} else if len(existingKey[matchLen+1:]) == 0 {
		existingChild = child
	} else {
		existingChild = ownedPointer(&Node{kind: KindExtension, key: existingKey[matchLen+1:], child: child})
	}
	branch.children[existingKey[matchLen]] = existingChild

	newChild := ownedPointer(&Node{kind: KindLeaf, key: key[matchLen+1:], value: value})
	branch.children[key[matchLen]] = newChild

	if matchLen > 0 {
		return true, ownedPointer(&Node{kind: KindExtension, key: existingKey[:matchLen], child: ownedPointer(branch)}), nil
	}
	return true, ownedPointer(branch), nil
}

// Remove deletes key from the trie. Returns true if a key was removed.
func (t *Trie) Remove(key []byte) (bool, error) {
	k := keybytesToHex(key)
	changed, newRoot, err := t.remove(&t.root, k)
	if err != nil {
		return false, err
	}
	if changed {
		t.root = newRoot
	}
	return changed, nil
}

func (t *Trie) remove(p *NodePointer, key []byte) (bool, NodePointer, error) {
	n, err := p.Load(t.resolver)
	if err != nil {
		return false, NodePointer{}, err
	}
	switch n.kind {
	case KindNull:
		return false, NodePointer{}, nil

	case KindLeaf:
		if !bytes.Equal(n.key, key) {
			return false, NodePointer{}, nil
		}
		return true, nullPointer(), nil

	case KindExtension:
		if len(key) < len(n.key) || !bytes.Equal(n.key, key[:len(n.key)]) {
			return false, NodePointer{}, nil
		}
		changed, newChild, err := t.remove(&n.child, key[len(n.key):])
		if err != nil {
			return false, NodePointer{}, err
		}
		if !changed {
			return false, NodePointer{}, nil
		}
		merged, err := mergeExtension(n.key, &newChild, t.resolver)
		if err != nil {
			return false, NodePointer{}, err
		}
		return true, merged, nil

	case KindBranch:
		if len(key) == 0 {
			return false, NodePointer{}, nil
		}
		nb := &Node{kind: KindBranch, children: n.children}
		changed, newChild, err := t.remove(&nb.children[key[0]], key[1:])
		if err != nil {
			return false, NodePointer{}, err
		}
		if !changed {
			return false, NodePointer{}, nil
		}
		nb.children[key[0]] = newChild

		remainingSlot := -1
		for i := 0; i < 16; i++ {
			if !isEmptyPointer(&nb.children[i]) {
				if remainingSlot >= 0 {
					return true, ownedPointer(nb), nil
				}
				remainingSlot = i
			}
		}
		if remainingSlot < 0 {
			return true, nullPointer(), nil
		}
		collapsed, err := collapseBranch(byte(remainingSlot), &nb.children[remainingSlot], t.resolver)
		if err != nil {
			return false, NodePointer{}, err
		}
		return true, collapsed, nil

	default:
		return false, NodePointer{}, ErrMalformedNode
	}
}

// isEmptyPointer reports whether p points at the null node without forcing
// resolution of a borrowed/digest child (both are non-null by construction:
// only an owned pointer can ever be explicitly null).
func isEmptyPointer(p *NodePointer) bool {
	return p.owned != nil && p.owned.kind == KindNull
}

// collapseBranch rebuilds the single-child remainder of a branch that lost
// all but one child: the branch becomes an extension (or, if the remaining
// child is a leaf, a leaf) whose path is the branch slot nibble prefixed to
// the child's own path.
func collapseBranch(slot byte, child *NodePointer, r Resolver) (NodePointer, error) {
	cn, err := child.Load(r)
	if err != nil {
		return NodePointer{}, err
	}
	switch cn.kind {
	case KindLeaf:
		return ownedPointer(&Node{kind: KindLeaf, key: concat([]byte{slot}, cn.key), value: cn.value}), nil
	case KindExtension:
		return ownedPointer(&Node{kind: KindExtension, key: concat([]byte{slot}, cn.key), child: cn.child}), nil
	default:
		return ownedPointer(&Node{kind: KindExtension, key: []byte{slot}, child: *child}), nil
	}
}

// mergeExtension rebuilds an extension node whose child changed during a
// delete: adjacent extensions collapse by path concatenation, an extension
// pointing at a leaf becomes a leaf, and an extension pointing at nothing
// (the child was the last key under it) disappears entirely.
func mergeExtension(key []byte, child *NodePointer, r Resolver) (NodePointer, error) {
	if isEmptyPointer(child) {
		return nullPointer(), nil
	}
	cn, err := child.Load(r)
	if err != nil {
		return NodePointer{}, err
	}
	switch cn.kind {
	case KindLeaf:
		return ownedPointer(&Node{kind: KindLeaf, key: concat(key, cn.key), value: cn.value}), nil
	case KindExtension:
		return ownedPointer(&Node{kind: KindExtension, key: concat(key, cn.key), child: cn.child}), nil
	default:
		return ownedPointer(&Node{kind: KindExtension, key: key, child: *child}), nil
	}
}

// Clear makes the trie empty.
func (t *Trie) Clear() {
	t.root = nullPointer()
	t.resolver = nil
}

// Hash returns keccak256(rlp(root)), forcing full hashing of the root even
// if its encoding would otherwise be inlined, per the root special case in
// the data model. The empty trie returns EmptyRoot().
func (t *Trie) Hash() (types.Hash, error) {
	if t.root.isDigest {
		return t.root.digest, nil
	}
	n, err := t.root.Load(t.resolver)
	if err != nil {
		return types.Hash{}, err
	}
	if n.kind == KindNull {
		return emptyRoot, nil
	}
	enc, err := n.encode(t.resolver)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// Reference returns the trie root's cached reference: the bare RLP bytes if
// shorter than 32 bytes, otherwise the 32-byte Keccak-256. This is what a
// parent structure embedding this trie's root (never applicable to the top
// level state trie, but relevant when treating a storage trie's root as a
// value) would splice into its own encoding.
func (t *Trie) Reference() ([]byte, error) {
	return t.root.reference(t.resolver)
}

// IsEmpty reports whether the trie has no entries (root is the null node).
func (t *Trie) IsEmpty() bool {
	return t.root.owned != nil && t.root.owned.kind == KindNull
}

// VerifyReference recursively checks that every resolved node's cached
// reference matches a fresh re-encoding of its current structure. Digest
// stubs trivially satisfy this (their reference *is* their stored hash).
// Used when a trie was built from externally supplied bytes.
func (t *Trie) VerifyReference() error {
	return verifyPointer(&t.root, t.resolver)
}

func verifyPointer(p *NodePointer, r Resolver) error {
	if p.isDigest {
		return nil
	}
	n, err := p.Load(r)
	if err != nil {
		return err
	}
	enc, err := n.encode(r)
	if err != nil {
		return err
	}
	var want []byte
	if len(enc) < 32 {
		want = enc
	} else {
		want = crypto.Keccak256(enc)
	}
	if n.ref != nil && !bytes.Equal(n.ref, want) {
		return ErrMalformedNode
	}
	switch n.kind {
	case KindExtension:
		return verifyPointer(&n.child, r)
	case KindBranch:
		for i := range n.children {
			if err := verifyPointer(&n.children[i], r); err != nil {
				return err
			}
		}
	}
	return nil
}

// CollectWitnessNodes walks every resolved node reachable from the root and
// returns the RLP encoding of each one keyed by its own Keccak-256 digest,
// skipping any node whose encoding is short enough to be inlined in its
// parent (those never get their own witness entry, since nothing ever looks
// them up by hash). This is the producer-side counterpart to a Resolver: a
// full node holding the complete trie uses it to build the witness.State
// index a stateless client hydrates from. Descending into an already
// unresolved digest stub is a no-op, since there is nothing further to walk.
func (t *Trie) CollectWitnessNodes() (map[types.Hash][]byte, error) {
	out := make(map[types.Hash][]byte)
	if err := collectWitnessNodes(&t.root, t.resolver, out); err != nil {
		return nil, err
	}
	return out, nil
}

func collectWitnessNodes(p *NodePointer, r Resolver, out map[types.Hash][]byte) error {
	if p.isDigest {
		return nil
	}
	n, err := p.Load(r)
	if err != nil {
		return err
	}
	if n.kind == KindNull {
		return nil
	}
	enc, err := n.encode(r)
	if err != nil {
		return err
	}
	if len(enc) >= 32 {
		out[crypto.Keccak256Hash(enc)] = enc
	}
	switch n.kind {
	case KindExtension:
		return collectWitnessNodes(&n.child, r, out)
	case KindBranch:
		for i := range n.children {
			if err := collectWitnessNodes(&n.children[i], r, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func concat(a, b []byte) []byte {
	r := make([]byte, len(a)+len(b))
	copy(r, a)
	copy(r[len(a):], b)
	return r
}
