// Package trie implements the sparse Merkle-Patricia Trie (MPT) that backs
// both the state trie and per-account storage tries: a single node type
// with five variants (null, branch, leaf, extension, digest stub), a cached
// reference that is lazily recomputed after mutation, and a borrowed/owned
// pointer duality so that nodes hydrated from witness bytes can be read
// without decoding subtrees that are never touched.
package trie

import (
	"github.com/zeth-go/zeth/core/types"
	"github.com/zeth-go/zeth/crypto"
)

// Kind identifies which of the four concrete node shapes a Node holds. The
// fifth MPT variant named in the data model, Digest, is represented one
// level up by NodePointer rather than by Node itself: a digest stub never
// needs a decoded body, only the 32-byte hash of the sub-trie it stands in
// for, so folding it into Node would force every consumer to handle a body
// that is always absent.
type Kind uint8

const (
	KindNull Kind = iota
	KindBranch
	KindLeaf
	KindExtension
)

// Node is the owned, mutable representation of a resolved trie node.
// Mutating operations always build a fresh Node rather than editing one in
// place, so the zero value of ref (nil) already expresses "dirty" for any
// node on a freshly walked path, while untouched siblings keep their struct
// (and its memoized ref) unchanged.
type Node struct {
	kind Kind

	// Branch: 16 children, one per hex nibble. There is no 17th slot: the
	// Ethereum-MPT convention of a value at a branch is never produced by
	// this implementation, and any witness node that carries one is
	// rejected with ErrValueInBranch during decode.
	children [16]NodePointer

	// Leaf: key is the remaining nibble path including the terminator
	// nibble (16); value is the opaque leaf payload.
	// Extension: key is the nibble path without a terminator; child is the
	// single non-null, non-empty-leaf child pointer.
	key   []byte
	value []byte
	child NodePointer

	ref []byte // cached reference: RLP bytes if <32 bytes, else the 32-byte Keccak-256. nil means uncomputed.
}

// NodePointer is a child reference in one of three states: a digest stub
// (only the 32-byte hash of an unresolved sub-trie is known), a borrowed
// reference (raw RLP bytes recovered from the witness index but not yet
// decoded), or an owned, decoded Node. Load upgrades borrowed/digest
// pointers it successfully resolves to owned form; digest pointers can
// never be upgraded since by definition no bytes are available for them.
type NodePointer struct {
	owned    *Node
	borrowed []byte
	digest   types.Hash
	isDigest bool
}

// Resolver looks up the RLP bytes of a witness node by its Keccak-256
// digest. A nil Resolver behaves as if the index were empty: every 32-byte
// child reference encountered becomes a digest stub.
type Resolver func(hash types.Hash) ([]byte, bool)

func (r Resolver) lookup(h types.Hash) ([]byte, bool) {
	if r == nil {
		return nil, false
	}
	return r(h)
}

// nullPointer returns a pointer to the empty node.
func nullPointer() NodePointer { return NodePointer{owned: &Node{kind: KindNull}} }

func ownedPointer(n *Node) NodePointer { return NodePointer{owned: n} }

func digestPointer(h types.Hash) NodePointer { return NodePointer{digest: h, isDigest: true} }

func borrowedPointer(rlpBytes []byte) NodePointer { return NodePointer{borrowed: rlpBytes} }

// IsDigest reports whether this pointer is an unresolved digest stub.
func (p *NodePointer) IsDigest() bool { return p.isDigest }

// DigestHash returns the stub's hash; only meaningful when IsDigest is true.
func (p *NodePointer) DigestHash() types.Hash { return p.digest }

// Load resolves the pointer to its owned Node, decoding borrowed RLP bytes
// on first access against r. A digest pointer always fails with
// NodeNotResolvedError: this is the point at which a defective or
// intentionally partial witness is caught.
func (p *NodePointer) Load(r Resolver) (*Node, error) {
	if p.owned != nil {
		return p.owned, nil
	}
	if p.isDigest {
		return nil, &NodeNotResolvedError{Hash: p.digest}
	}
	n, err := decodeNode(p.borrowed, r)
	if err != nil {
		return nil, err
	}
	// Seed the cached reference from the witness encoding itself: the bytes
	// were indexed by their own keccak, so this is the node's true reference
	// without a re-encode, and VerifyReference can later catch a witness
	// node whose canonical re-encoding differs from what was supplied.
	if len(p.borrowed) < 32 {
		n.ref = p.borrowed
	} else {
		n.ref = crypto.Keccak256(p.borrowed)
	}
	p.owned = n
	p.borrowed = nil
	return n, nil
}

// reference returns the pointer's cached reference without fully resolving
// a digest stub: the stub already *is* its own reference.
func (p *NodePointer) reference(r Resolver) ([]byte, error) {
	if p.isDigest {
		return p.digest[:], nil
	}
	n, err := p.Load(r)
	if err != nil {
		return nil, err
	}
	return n.reference(r)
}

// reference returns the node's cached reference, computing and memoizing it
// from the node's current structure if it has not been computed since the
// last mutation on this exact Node value.
func (n *Node) reference(r Resolver) ([]byte, error) {
	if n.ref != nil {
		return n.ref, nil
	}
	enc, err := n.encode(r)
	if err != nil {
		return nil, err
	}
	if len(enc) < 32 {
		n.ref = enc
	} else {
		n.ref = crypto.Keccak256(enc)
	}
	return n.ref, nil
}
