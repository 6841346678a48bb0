// Package validator implements end-to-end single-block stateless
// validation: hydrate sparse state from a witness, validate the header
// against its parent, verify every transaction signature against its
// supplied pre-recovered signer key, execute the block, and check every
// post-execution field against the header before returning the block's own
// hash as the public result.
//
// The call sequence mirrors a stateless client engine's standard
// initialize_database / validate_header / execute_transactions /
// finalize_state lifecycle. Header validation delegates to
// core.BlockValidator, whose named HeaderRuleViolation lets this package
// report exactly which consensus rule rejected a header instead of a
// single opaque failure.
package validator

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/zeth-go/zeth"
	"github.com/zeth-go/zeth/core"
	"github.com/zeth-go/zeth/core/types"
	"github.com/zeth-go/zeth/crypto"
	"github.com/zeth-go/zeth/sparsestate"
)

// Stage names the point a block has reached in the validation pipeline.
// Stages complete strictly in order; any failure is terminal, there are no
// retries and no partially-completed stages.
type Stage int

const (
	StageInit Stage = iota
	StageHydrated
	StageHeaderValidated
	StageSignaturesVerified
	StageExecuted
	StageStateRooted
	StageSealed
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "init"
	case StageHydrated:
		return "hydrated"
	case StageHeaderValidated:
		return "header_validated"
	case StageSignaturesVerified:
		return "signatures_verified"
	case StageExecuted:
		return "executed"
	case StageStateRooted:
		return "state_rooted"
	case StageSealed:
		return "sealed"
	default:
		return "unknown"
	}
}

// ExecutionResult is what an Executor returns after processing every
// transaction in the block against the sparse state.
type ExecutionResult struct {
	TransactionsRoot types.Hash
	ReceiptsRoot     types.Hash
	LogsBloom        types.Bloom
	Logs             []*types.Log // every log emitted across the block, for bloom cross-checking
	GasUsed          uint64
	TotalFees        *big.Int // sum of every receipt's Receipt.TotalGasCost, for fee accounting
	Diff             *sparsestate.Diff
}

// Executor runs a block's transactions against a SparseState. Signers is
// the pre-recovered sender address for each transaction, in order: the
// validator has already verified each one against its signing hash before
// Execute is called, so the executor never needs to re-derive it. The real
// EVM interpreter is out of scope for this module; a caller supplies its
// own Executor implementation (or the stub in this package for testing).
type Executor interface {
	Execute(header *types.Header, txs []*types.Transaction, signers []types.Address, withdrawals []*types.Withdrawal, state *sparsestate.SparseState) (*ExecutionResult, error)
}

// Validator runs ValidateBlock against one chain configuration and one
// pluggable Executor.
type Validator struct {
	chainSpec *core.ChainConfig
	headerVal *core.BlockValidator
	executor  Executor
	stage     Stage

	witnessUsed, witnessTotal int
}

// New creates a Validator for chainSpec, delegating execution to executor.
func New(chainSpec *core.ChainConfig, executor Executor) *Validator {
	return &Validator{
		chainSpec: chainSpec,
		headerVal: core.NewBlockValidator(chainSpec),
		executor:  executor,
		stage:     StageInit,
	}
}

// Stage reports the furthest stage reached by the most recent ValidateBlock
// call. A failed call leaves Stage at whatever stage was last completed.
func (v *Validator) Stage() Stage { return v.stage }

// WitnessUtilization reports how many of the witness's state nodes the most
// recent ValidateBlock call actually resolved, against how many were
// supplied. Callers building witnesses upstream can use this to size them
// down; it has no bearing on whether the block itself was valid.
func (v *Validator) WitnessUtilization() (used, total int) {
	return v.witnessUsed, v.witnessTotal
}

// ValidateBlock runs the full pipeline: hydrate → validate header → verify
// signatures → execute → check post-execution roots → compute block hash.
// signers carries one pre-recovered public key per transaction, in order,
// supplied by the host (see crypto.RecoverSignerKeys): signature recovery
// is far more expensive than verification, so the guest only checks each
// signature against its claimed key rather than re-deriving it.
// witness.Headers serves BlockHash lookups only; header validation uses
// parent, and ValidateBlock does not check that parent appears in
// witness.Headers.
func (v *Validator) ValidateBlock(block *types.Block, parent *types.Header, signers []*ecdsa.PublicKey, witness *sparsestate.Witness) (types.Hash, error) {
	v.stage = StageInit
	header := block.Header()

	state, err := sparsestate.New(witness, parent.Root)
	if err != nil {
		return types.Hash{}, err
	}
	v.stage = StageHydrated
	defer func() { v.witnessUsed, v.witnessTotal = state.WitnessUtilization() }()

	if err := v.headerVal.ValidateHeader(header, parent); err != nil {
		field := "consensus"
		var violation *core.HeaderRuleViolation
		if errors.As(err, &violation) {
			field = violation.Rule
		}
		return types.Hash{}, &zeth.HeaderInvalidError{Field: field, Cause: err}
	}
	if err := v.headerVal.ValidateBody(block); err != nil {
		return types.Hash{}, &zeth.HeaderInvalidError{Field: "body", Cause: err}
	}
	v.stage = StageHeaderValidated

	senders, err := verifySigners(block.Transactions(), signers, v.chainSpec.ChainID.Uint64())
	if err != nil {
		return types.Hash{}, err
	}
	v.stage = StageSignaturesVerified

	result, err := v.executor.Execute(header, block.Transactions(), senders, block.Withdrawals(), state)
	if err != nil {
		return types.Hash{}, &zeth.ExecutionFailedError{TxIndex: -1, Cause: err}
	}
	v.stage = StageExecuted

	if result.TransactionsRoot != header.TxHash {
		return types.Hash{}, &zeth.RootMismatchError{Kind: zeth.TransactionsRootMismatch, Expected: header.TxHash.Hex(), Got: result.TransactionsRoot.Hex()}
	}
	if result.ReceiptsRoot != header.ReceiptHash {
		return types.Hash{}, &zeth.RootMismatchError{Kind: zeth.ReceiptsRootMismatch, Expected: header.ReceiptHash.Hex(), Got: result.ReceiptsRoot.Hex()}
	}
	if result.LogsBloom != header.Bloom {
		return types.Hash{}, &zeth.RootMismatchError{
			Kind:     zeth.LogsBloomMismatch,
			Expected: fmt.Sprintf("%x (%d bits set)", header.Bloom, header.Bloom.PopCount()),
			Got:      fmt.Sprintf("%x (%d bits set)", result.LogsBloom, result.LogsBloom.PopCount()),
		}
	}
	if err := types.VerifyReceiptLogBloom(result.Logs, result.LogsBloom); err != nil {
		return types.Hash{}, &zeth.RootMismatchError{Kind: zeth.LogsBloomMismatch, Expected: "consistent log bloom", Got: err.Error()}
	}
	if result.GasUsed != header.GasUsed {
		return types.Hash{}, &zeth.RootMismatchError{Kind: zeth.GasUsedMismatch, Expected: fmt.Sprintf("%d", header.GasUsed), Got: fmt.Sprintf("%d", result.GasUsed)}
	}

	stateRoot, err := state.CalculateStateRoot(result.Diff)
	if err != nil {
		return types.Hash{}, err
	}
	v.stage = StageStateRooted

	if stateRoot != header.Root {
		return types.Hash{}, &zeth.RootMismatchError{Kind: zeth.StateRootMismatch, Expected: header.Root.Hex(), Got: stateRoot.Hex()}
	}

	v.stage = StageSealed
	return header.Hash(), nil
}

// verifySigners checks every transaction's signature against its supplied
// pre-recovered signer key (prehash verification, no ecrecover) and returns
// the sender address derived from each key. The list must carry exactly one
// key per transaction; a short or padded list is a signature failure, not a
// silent truncation.
func verifySigners(txs []*types.Transaction, signers []*ecdsa.PublicKey, chainID uint64) ([]types.Address, error) {
	if len(signers) != len(txs) {
		return nil, &zeth.SignatureInvalidError{
			TxIndex: -1,
			Cause:   fmt.Errorf("%d signer keys for %d transactions", len(signers), len(txs)),
		}
	}
	senders, errs := crypto.VerifySignerKeys(txs, chainID, signers)
	for i, err := range errs {
		if err != nil {
			return nil, &zeth.SignatureInvalidError{TxIndex: i, Cause: err}
		}
	}
	for i, tx := range txs {
		tx.SetSender(senders[i])
	}
	return senders, nil
}
