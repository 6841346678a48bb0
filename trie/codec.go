package trie

import (
	"bytes"

	"github.com/zeth-go/zeth/core/types"
	"github.com/zeth-go/zeth/rlp"
)

// rawItem is one decoded top-level item of an RLP list payload, retaining
// its full encoding (prefix + content) so that list-kind items can be
// recursively redecoded as embedded child nodes without re-encoding them.
type rawItem struct {
	kind    rlp.Kind
	raw     []byte
	payload []byte
}

func splitItems(data []byte) ([]rawItem, error) {
	var items []rawItem
	pos := 0
	for pos < len(data) {
		kind, payload, total, err := peekItemAt(data, pos)
		if err != nil {
			return nil, err
		}
		items = append(items, rawItem{kind: kind, raw: data[pos : pos+total], payload: payload})
		pos += total
	}
	return items, nil
}

// peekItemAt decodes a single RLP item header starting at data[pos:] using a
// throwaway Stream, returning its kind, content payload, and total length
// (prefix + content) consumed.
func peekItemAt(data []byte, pos int) (rlp.Kind, []byte, int, error) {
	s := rlp.NewStreamFromBytes(data[pos:])
	kind, payload, total, err := s.ReadItem()
	if err != nil {
		return 0, nil, 0, err
	}
	return kind, payload, total, nil
}

// decodeNode decodes the full RLP encoding of a single trie node (the null
// marker 0x80, a 2-element leaf/extension list, or a 17-element branch
// list). r resolves 32-byte child references against the witness index;
// references absent from the index become digest stubs rather than errors.
func decodeNode(raw []byte, r Resolver) (*Node, error) {
	if len(raw) == 1 && raw[0] == 0x80 {
		return &Node{kind: KindNull}, nil
	}
	kind, payload, total, err := peekItemAt(raw, 0)
	if err != nil {
		return nil, err
	}
	if kind != rlp.List || total != len(raw) {
		return nil, ErrMalformedNode
	}
	items, err := splitItems(payload)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 2:
		return decodeShortNode(items, r)
	case 17:
		return decodeBranchNode(items, r)
	default:
		return nil, ErrMalformedNode
	}
}

// isStringLike reports whether an RLP item decodes to a byte-string value:
// either the canonical String kind, or a single byte in [0x00, 0x7f] that
// self-encodes under canonical RLP (Kind Byte).
func isStringLike(k rlp.Kind) bool {
	return k == rlp.String || k == rlp.Byte
}

func decodeShortNode(items []rawItem, r Resolver) (*Node, error) {
	if !isStringLike(items[0].kind) {
		return nil, ErrMalformedNode
	}
	nibbles := compactToHex(items[0].payload)
	if hasTerm(nibbles) {
		if !isStringLike(items[1].kind) {
			return nil, ErrMalformedNode
		}
		return &Node{kind: KindLeaf, key: nibbles, value: bytes.Clone(items[1].payload)}, nil
	}
	child, err := decodeChildPointer(items[1], r)
	if err != nil {
		return nil, err
	}
	return &Node{kind: KindExtension, key: nibbles, child: child}, nil
}

func decodeBranchNode(items []rawItem, r Resolver) (*Node, error) {
	n := &Node{kind: KindBranch}
	for i := 0; i < 16; i++ {
		p, err := decodeChildPointer(items[i], r)
		if err != nil {
			return nil, err
		}
		n.children[i] = p
	}
	if items[16].kind != rlp.String || len(items[16].payload) != 0 {
		return nil, ErrValueInBranch
	}
	return n, nil
}

// decodeChildPointer interprets one child slot of a branch or the single
// child of an extension: an empty string is the null child, a 32-byte
// string is a hash reference (resolved against r or left as a digest stub),
// and a nested list is an inlined child node (its RLP encoding was short
// enough to embed directly rather than be referenced by hash).
func decodeChildPointer(it rawItem, r Resolver) (NodePointer, error) {
	switch it.kind {
	case rlp.String:
		switch len(it.payload) {
		case 0:
			return nullPointer(), nil
		case 32:
			var h types.Hash
			copy(h[:], it.payload)
			if raw, ok := r.lookup(h); ok {
				return borrowedPointer(raw), nil
			}
			return digestPointer(h), nil
		default:
			return NodePointer{}, ErrMalformedNode
		}
	case rlp.List:
		child, err := decodeNode(it.raw, r)
		if err != nil {
			return NodePointer{}, err
		}
		return ownedPointer(child), nil
	default:
		return NodePointer{}, ErrMalformedNode
	}
}

// encode returns the node's own RLP encoding (not its reference): the
// 1-byte null marker, a 2-element leaf/extension list, or a 17-element
// branch list whose final slot is always the empty string.
func (n *Node) encode(r Resolver) ([]byte, error) {
	switch n.kind {
	case KindNull:
		return []byte{0x80}, nil

	case KindLeaf:
		payload := rlp.AppendBytes(nil, hexToCompact(n.key))
		payload = rlp.AppendBytes(payload, n.value)
		return rlp.WrapList(payload), nil

	case KindExtension:
		payload := rlp.AppendBytes(nil, hexToCompact(n.key))
		childEnc, err := embedReference(&n.child, r)
		if err != nil {
			return nil, err
		}
		return rlp.WrapList(append(payload, childEnc...)), nil

	case KindBranch:
		var payload []byte
		for i := 0; i < 16; i++ {
			enc, err := embedReference(&n.children[i], r)
			if err != nil {
				return nil, err
			}
			payload = append(payload, enc...)
		}
		payload = rlp.AppendBytes(payload, nil)
		return rlp.WrapList(payload), nil

	default:
		return nil, ErrMalformedNode
	}
}

// embedReference returns the bytes a parent node splices into its own RLP
// payload for a child pointer: a 32-byte reference is wrapped as an RLP
// string (0xA0 prefix), a shorter reference is already valid RLP for the
// child and is emitted verbatim. Full hashes take the zero-allocation
// fixed-width encoder since every MPT node reference is either a 32-byte
// keccak digest or raw inline RLP, never a generic reflected value.
func embedReference(p *NodePointer, r Resolver) ([]byte, error) {
	ref, err := p.reference(r)
	if err != nil {
		return nil, err
	}
	if len(ref) == 32 {
		var h [32]byte
		copy(h[:], ref)
		return rlp.EncodeBytes32(h), nil
	}
	return ref, nil
}
