// Package witness holds the append-and-prove Merkle-mountain-range (MMR)
// accumulator used to batch proofs of witness inclusion across many blocks.
// It is explicitly ancillary: nothing in sparsestate or validator imports
// it, since a single block's stateless validation never needs to prove
// membership across a range of blocks.
package witness

import (
	"errors"

	"github.com/zeth-go/zeth/core/types"
	"github.com/zeth-go/zeth/crypto"
)

// ErrIndexOutOfRange is returned by Prove when the requested leaf index has
// not been appended yet.
var ErrIndexOutOfRange = errors.New("witness: leaf index out of range")

// ErrProofInvalid is returned by VerifyProof when a proof does not fold up
// to the claimed root.
var ErrProofInvalid = errors.New("witness: proof does not verify against root")

// node is one vertex of a mountain: leaves have height 0 and nil children;
// every internal node's hash is mergeNode(left.hash, right.hash).
type node struct {
	hash        types.Hash
	height      int
	left, right *node
	parent      *node
}

// MMR is an append-only Merkle-mountain-range accumulator. Leaves are
// hashed and merged right-to-left: two peaks of equal height combine into
// one peak one level higher, mirroring a binary counter. The bagged root
// over all current peaks is a single-hash commitment to every leaf
// appended so far, and any previously appended leaf can later be proven
// against that root without re-presenting the rest.
type MMR struct {
	peaks []*node
	leafs []*node // leafs[i] is the node for the i-th appended leaf
}

// NewMMR returns an empty accumulator.
func NewMMR() *MMR {
	return &MMR{}
}

// Size returns the number of leaves appended so far.
func (m *MMR) Size() uint64 { return uint64(len(m.leafs)) }

// Append adds a new leaf (its keccak256 hash) to the accumulator and
// returns the leaf's index.
func (m *MMR) Append(leaf []byte) uint64 {
	idx := uint64(len(m.leafs))
	n := &node{hash: crypto.Keccak256Hash(leaf)}
	m.leafs = append(m.leafs, n)
	m.peaks = append(m.peaks, n)

	// Merge trailing peaks of equal height, same carry rule as binary
	// addition: two height-h peaks combine into one height-(h+1) peak.
	for len(m.peaks) >= 2 {
		last := len(m.peaks) - 1
		l, r := m.peaks[last-1], m.peaks[last]
		if l.height != r.height {
			break
		}
		merged := &node{
			hash:   mergeNode(l.hash, r.hash),
			height: l.height + 1,
			left:   l,
			right:  r,
		}
		l.parent, r.parent = merged, merged
		m.peaks = append(m.peaks[:last-1], merged)
	}
	return idx
}

// Root bags every current peak into a single commitment. Peaks are folded
// right-to-left so the root changes whenever the peak set changes, even
// when only the leaf count (not the leaf contents) differs.
func (m *MMR) Root() types.Hash {
	if len(m.peaks) == 0 {
		return types.Hash{}
	}
	acc := m.peaks[len(m.peaks)-1].hash
	for i := len(m.peaks) - 2; i >= 0; i-- {
		acc = mergeNode(m.peaks[i].hash, acc)
	}
	return acc
}

// Proof is a membership proof for one leaf: the sibling hash at every step
// up to that leaf's mountain peak, then the hashes of the other peaks
// needed to re-bag the root.
type Proof struct {
	LeafIndex    uint64
	Siblings     []SiblingHash
	OtherPeaks   []types.Hash // peaks other than the one this leaf belongs to, left to right
	OwnPeakIndex int          // position of this leaf's peak within the full peak list
}

// SiblingHash is one step of a Merkle path: the sibling's hash and whether
// it sits to the left or right of the path node.
type SiblingHash struct {
	Hash   types.Hash
	IsLeft bool
}

// Prove builds a membership proof for the leaf at index against the
// accumulator's current state. The proof is only valid against the Root()
// observed at the time Prove was called; further Append calls change the
// root and invalidate it.
func (m *MMR) Prove(index uint64) (*Proof, error) {
	if index >= uint64(len(m.leafs)) {
		return nil, ErrIndexOutOfRange
	}
	leaf := m.leafs[index]

	var siblings []SiblingHash
	n := leaf
	for n.parent != nil {
		p := n.parent
		if p.left == n {
			siblings = append(siblings, SiblingHash{Hash: p.right.hash, IsLeft: false})
		} else {
			siblings = append(siblings, SiblingHash{Hash: p.left.hash, IsLeft: true})
		}
		n = p
	}
	// n is now the peak this leaf belongs to.

	ownPeakIdx := -1
	for i, pk := range m.peaks {
		if pk == n {
			ownPeakIdx = i
			break
		}
	}
	if ownPeakIdx == -1 {
		return nil, ErrProofInvalid
	}

	other := make([]types.Hash, 0, len(m.peaks)-1)
	for i, pk := range m.peaks {
		if i != ownPeakIdx {
			other = append(other, pk.hash)
		}
	}

	return &Proof{
		LeafIndex:    index,
		Siblings:     siblings,
		OtherPeaks:   other,
		OwnPeakIndex: ownPeakIdx,
	}, nil
}

// VerifyProof checks that leaf, combined with proof, folds up to root.
func VerifyProof(root types.Hash, leaf []byte, proof *Proof) error {
	acc := crypto.Keccak256Hash(leaf)
	for _, s := range proof.Siblings {
		if s.IsLeft {
			acc = mergeNode(s.Hash, acc)
		} else {
			acc = mergeNode(acc, s.Hash)
		}
	}

	if proof.OwnPeakIndex < 0 || proof.OwnPeakIndex > len(proof.OtherPeaks) {
		return ErrProofInvalid
	}
	peaks := make([]types.Hash, len(proof.OtherPeaks)+1)
	copy(peaks, proof.OtherPeaks[:proof.OwnPeakIndex])
	peaks[proof.OwnPeakIndex] = acc
	copy(peaks[proof.OwnPeakIndex+1:], proof.OtherPeaks[proof.OwnPeakIndex:])

	bagged := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		bagged = mergeNode(peaks[i], bagged)
	}
	if bagged != root {
		return ErrProofInvalid
	}
	return nil
}

func mergeNode(left, right types.Hash) types.Hash {
	return crypto.Keccak256Hash(append(append([]byte{}, left[:]...), right[:]...))
}
