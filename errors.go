// Package zeth defines the error taxonomy shared by every stage of stateless
// block validation: trie hydration, sparse-state reads, and the validator's
// own post-execution checks. Every error here is terminal — nothing in this
// module retries a failed stage.
package zeth

import (
	"fmt"

	"github.com/zeth-go/zeth/core/types"
	"github.com/zeth-go/zeth/trie"
)

// ErrValueInBranch is re-exported from trie for callers that only import
// the zeth package; see trie.ErrValueInBranch for the underlying condition.
var ErrValueInBranch = trie.ErrValueInBranch

// WitnessRevealFailedError reports that the witness lacks the node
// identified by the pre-state root, so SparseState construction cannot
// even establish a starting point.
type WitnessRevealFailedError struct {
	Root types.Hash
}

func (e *WitnessRevealFailedError) Error() string {
	return fmt.Sprintf("zeth: witness reveal failed: root %s not in witness", e.Root.Hex())
}

// CodeNotFoundError reports that the executor requested bytecode absent
// from the witness's code index.
type CodeNotFoundError struct {
	Hash types.Hash
}

func (e *CodeNotFoundError) Error() string {
	return fmt.Sprintf("zeth: code not found: %s", e.Hash.Hex())
}

// BlockNotFoundError reports that the executor requested an ancestor block
// hash outside the witness's 256-block window.
type BlockNotFoundError struct {
	Number uint64
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("zeth: block not found: %d", e.Number)
}

// HeaderInvalidError reports a violated consensus header rule.
type HeaderInvalidError struct {
	Field string
	Cause error
}

func (e *HeaderInvalidError) Error() string {
	return fmt.Sprintf("zeth: header invalid: %s: %v", e.Field, e.Cause)
}

func (e *HeaderInvalidError) Unwrap() error { return e.Cause }

// SignatureInvalidError reports that a transaction's signature failed
// recovery or verification.
type SignatureInvalidError struct {
	TxIndex int
	Cause   error
}

func (e *SignatureInvalidError) Error() string {
	return fmt.Sprintf("zeth: signature invalid at tx %d: %v", e.TxIndex, e.Cause)
}

func (e *SignatureInvalidError) Unwrap() error { return e.Cause }

// RootMismatchKind names which post-execution root disagreed with the header.
type RootMismatchKind uint8

const (
	TransactionsRootMismatch RootMismatchKind = iota
	ReceiptsRootMismatch
	LogsBloomMismatch
	GasUsedMismatch
	StateRootMismatch
)

func (k RootMismatchKind) String() string {
	switch k {
	case TransactionsRootMismatch:
		return "transactions_root"
	case ReceiptsRootMismatch:
		return "receipts_root"
	case LogsBloomMismatch:
		return "logs_bloom"
	case GasUsedMismatch:
		return "gas_used"
	case StateRootMismatch:
		return "state_root"
	default:
		return "unknown"
	}
}

// RootMismatchError reports a post-execution field that disagrees with the
// block header: the executor (or the witness it was fed) disagrees with
// the header the validator was asked to validate.
type RootMismatchError struct {
	Kind     RootMismatchKind
	Expected string
	Got      string
}

func (e *RootMismatchError) Error() string {
	return fmt.Sprintf("zeth: %s mismatch: expected %s, got %s", e.Kind, e.Expected, e.Got)
}

// ExecutionFailedError reports that the executor rejected a transaction
// for reasons other than a bad signature (e.g. insufficient balance, gas
// exhaustion, invalid nonce).
type ExecutionFailedError struct {
	TxIndex int
	Cause   error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("zeth: execution failed at tx %d: %v", e.TxIndex, e.Cause)
}

func (e *ExecutionFailedError) Unwrap() error { return e.Cause }
