package trie

import (
	"errors"
	"fmt"

	"github.com/zeth-go/zeth/core/types"
)

// ErrNotFound is returned by Get when the key is absent from the trie.
var ErrNotFound = errors.New("trie: key not found")

// ErrValueInBranch is returned when an insertion would require a value to
// live directly at a branch node (one key is a strict prefix of another's
// path), which Ethereum's MPT never allows.
var ErrValueInBranch = errors.New("trie: value in branch")

// ErrMalformedNode is returned when a node's RLP shape does not match one of
// the four decodable variants (null, 2-element leaf/extension, 17-element
// branch). A branch whose value slot is non-empty is rejected with
// ErrValueInBranch instead.
var ErrMalformedNode = errors.New("trie: malformed node rlp")

// NodeNotResolvedError is returned when a walk descends into a digest stub:
// the witness did not include the bytes for that sub-trie.
type NodeNotResolvedError struct {
	Hash types.Hash
}

func (e *NodeNotResolvedError) Error() string {
	return fmt.Sprintf("trie: node not resolved: %s", e.Hash.Hex())
}
