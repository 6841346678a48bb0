package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/zeth-go/zeth/core/types"
	"golang.org/x/crypto/sha3"
)

// Block validation errors.
var (
	ErrUnknownParent     = errors.New("unknown parent")
	ErrFutureBlock       = errors.New("block in the future")
	ErrInvalidNumber     = errors.New("invalid block number")
	ErrInvalidGasLimit   = errors.New("invalid gas limit")
	ErrInvalidGasUsed    = errors.New("gas used exceeds gas limit")
	ErrInvalidTimestamp  = errors.New("timestamp not greater than parent")
	ErrExtraDataTooLong  = errors.New("extra data too long")
	ErrInvalidBaseFee    = errors.New("invalid base fee")
	ErrInvalidDifficulty = errors.New("invalid difficulty for post-merge block")
	ErrInvalidUncleHash  = errors.New("invalid uncle hash for post-merge block")
	ErrInvalidNonce      = errors.New("invalid nonce for post-merge block")
)

const (
	// MaxExtraDataSize is the maximum allowed extra data in a block header.
	MaxExtraDataSize = 32

	// GasLimitBoundDivisor is the divisor for max gas limit change per block.
	GasLimitBoundDivisor uint64 = 1024

	// MinGasLimit is the minimum gas limit.
	MinGasLimit uint64 = 5000

	// MaxGasLimit is the maximum gas limit (2^63 - 1).
	MaxGasLimit uint64 = 1<<63 - 1

	// ElasticityMultiplier is the EIP-1559 elasticity multiplier.
	ElasticityMultiplier uint64 = 2

	// BaseFeeChangeDenominator is the EIP-1559 base fee change denominator.
	BaseFeeChangeDenominator uint64 = 8
)

// EmptyUncleHash is the keccak256 of RLP([]) â€” the hash of an empty uncle list.
// RLP of an empty list is 0xc0; keccak256(0xc0) = 1dcc4de8...
var EmptyUncleHash = func() types.Hash {
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte{0xc0}) // RLP empty list
	var h types.Hash
	copy(h[:], d.Sum(nil))
	return h
}()

// BlockValidator validates block headers against consensus rules.
type BlockValidator struct {
	config *ChainConfig
}

// NewBlockValidator creates a new block validator.
func NewBlockValidator(config *ChainConfig) *BlockValidator {
	return &BlockValidator{config: config}
}

// HeaderRuleViolation names the specific consensus rule a header failed,
// so a caller driving a staged pipeline (see validator.Validator) can
// surface which rule tripped rather than a single opaque "header invalid".
type HeaderRuleViolation struct {
	Rule  string
	Cause error
}

func (e *HeaderRuleViolation) Error() string {
	return fmt.Sprintf("%s: %v", e.Rule, e.Cause)
}

func (e *HeaderRuleViolation) Unwrap() error { return e.Cause }

// headerRule is one independently named consensus check ValidateHeader runs
// in sequence; splitting them out lets ValidateHeader report exactly which
// rule rejected the header instead of a generic failure.
type headerRule struct {
	name  string
	check func(v *BlockValidator, header, parent *types.Header) error
}

var headerRules = []headerRule{
	{"parent_hash", (*BlockValidator).checkParentHash},
	{"extra_data", (*BlockValidator).checkExtraData},
	{"timestamp", (*BlockValidator).checkTimestamp},
	{"number", (*BlockValidator).checkNumber},
	{"gas_limit", (*BlockValidator).checkGasLimit},
	{"gas_used", (*BlockValidator).checkGasUsed},
	{"post_merge", (*BlockValidator).checkPostMerge},
	{"base_fee", (*BlockValidator).checkBaseFee},
	{"blob_gas", (*BlockValidator).checkBlobGas},
}

// ValidateHeader checks whether a header conforms to the consensus rules,
// running each named rule in headerRules in order and stopping at the
// first violation. The parent header must be provided for validation.
func (v *BlockValidator) ValidateHeader(header, parent *types.Header) error {
	for _, r := range headerRules {
		if err := r.check(v, header, parent); err != nil {
			return &HeaderRuleViolation{Rule: r.name, Cause: err}
		}
	}
	return nil
}

func (v *BlockValidator) checkParentHash(header, parent *types.Header) error {
	if header.ParentHash != parent.Hash() {
		return fmt.Errorf("%w: want %v, got %v", ErrUnknownParent, parent.Hash(), header.ParentHash)
	}
	return nil
}

func (v *BlockValidator) checkExtraData(header, parent *types.Header) error {
	if len(header.Extra) > MaxExtraDataSize {
		return fmt.Errorf("%w: %d > %d", ErrExtraDataTooLong, len(header.Extra), MaxExtraDataSize)
	}
	return nil
}

func (v *BlockValidator) checkTimestamp(header, parent *types.Header) error {
	if header.Time <= parent.Time {
		return fmt.Errorf("%w: child %d <= parent %d", ErrInvalidTimestamp, header.Time, parent.Time)
	}
	return nil
}

func (v *BlockValidator) checkNumber(header, parent *types.Header) error {
	expected := new(big.Int).Add(parent.Number, big.NewInt(1))
	if header.Number.Cmp(expected) != 0 {
		return fmt.Errorf("%w: want %v, got %v", ErrInvalidNumber, expected, header.Number)
	}
	return nil
}

func (v *BlockValidator) checkGasLimit(header, parent *types.Header) error {
	return verifyGasLimit(parent.GasLimit, header.GasLimit)
}

func (v *BlockValidator) checkGasUsed(header, parent *types.Header) error {
	if header.GasUsed > header.GasLimit {
		return fmt.Errorf("%w: %d > %d", ErrInvalidGasUsed, header.GasUsed, header.GasLimit)
	}
	return nil
}

func (v *BlockValidator) checkPostMerge(header, parent *types.Header) error {
	return verifyPostMerge(header)
}

func (v *BlockValidator) checkBaseFee(header, parent *types.Header) error {
	if header.BaseFee == nil {
		return nil
	}
	// Every fork this config schedules (Shanghai onward) already postdates
	// EIP-1559 activation, so parent is never the pre-London block; the
	// fork-boundary gas-limit doubling CalcBaseFeeAtFork applies only to a
	// chain spec reaching further back than this validator's scope.
	expectedBaseFee := CalcBaseFeeAtFork(parent, false)
	if header.BaseFee.Cmp(expectedBaseFee) != 0 {
		return fmt.Errorf("%w: want %v, got %v", ErrInvalidBaseFee, expectedBaseFee, header.BaseFee)
	}
	return nil
}

func (v *BlockValidator) checkBlobGas(header, parent *types.Header) error {
	if v.config == nil || !v.config.IsCancun(header.Time) {
		return nil
	}
	switch {
	case v.config.IsAmsterdam(header.Time):
		return ValidateBlockBlobGasV2(header, parent)
	case v.config.IsPrague(header.Time):
		return ValidateBlockBlobGasWithSchedule(header, parent, PragueElectraBlobSchedule)
	default:
		return ValidateBlockBlobGas(header, parent)
	}
}

// ValidateBody checks the block body (transactions, uncles, withdrawals) against the header.
func (v *BlockValidator) ValidateBody(block *types.Block) error {
	header := block.Header()

	// Post-merge: no uncles allowed.
	if len(block.Uncles()) > 0 {
		return ErrInvalidUncleHash
	}

	// EIP-4844: validate blob gas used matches the sum of blob gas from transactions.
	if v.config != nil && v.config.IsCancun(header.Time) {
		var totalBlobGas uint64
		for _, tx := range block.Transactions() {
			totalBlobGas += CountBlobGas(tx)
		}
		if header.BlobGasUsed != nil && *header.BlobGasUsed != totalBlobGas {
			return fmt.Errorf("blob gas used mismatch: header %d, computed %d", *header.BlobGasUsed, totalBlobGas)
		}
	}

	// Validate withdrawals for post-Shanghai blocks.
	if v.config != nil && v.config.IsShanghai(header.Time) {
		if block.Withdrawals() == nil {
			return errors.New("post-Shanghai block missing withdrawals")
		}
		if header.WithdrawalsHash == nil {
			return errors.New("post-Shanghai header missing withdrawals hash")
		}
		want := types.WithdrawalsRoot(block.Withdrawals())
		if want != *header.WithdrawalsHash {
			return fmt.Errorf("withdrawals hash mismatch: header %v, computed %v", *header.WithdrawalsHash, want)
		}
	}

	return nil
}

// verifyGasLimit checks that the gas limit change is within bounds.
func verifyGasLimit(parentGasLimit, headerGasLimit uint64) error {
	if headerGasLimit < MinGasLimit {
		return fmt.Errorf("%w: %d < minimum %d", ErrInvalidGasLimit, headerGasLimit, MinGasLimit)
	}
	if headerGasLimit > MaxGasLimit {
		return fmt.Errorf("%w: %d > maximum %d", ErrInvalidGasLimit, headerGasLimit, MaxGasLimit)
	}

	// Gas limit can change by at most 1/1024 per block.
	diff := headerGasLimit
	if headerGasLimit < parentGasLimit {
		diff = parentGasLimit - headerGasLimit
	} else {
		diff = headerGasLimit - parentGasLimit
	}
	limit := parentGasLimit / GasLimitBoundDivisor
	if diff >= limit {
		return fmt.Errorf("%w: change %d exceeds limit %d", ErrInvalidGasLimit, diff, limit)
	}
	return nil
}

// verifyPostMerge checks that post-merge consensus fields are correct.
func verifyPostMerge(header *types.Header) error {
	if !header.IsPostMerge() {
		return fmt.Errorf("%w: got %v", ErrInvalidDifficulty, header.Difficulty)
	}

	// Nonce must be 0 post-merge.
	if header.Nonce != (types.BlockNonce{}) {
		return fmt.Errorf("%w: got %v", ErrInvalidNonce, header.Nonce)
	}

	// Uncle hash must be empty post-merge.
	if header.UncleHash != (types.Hash{}) && header.UncleHash != EmptyUncleHash {
		return fmt.Errorf("%w: got %v", ErrInvalidUncleHash, header.UncleHash)
	}

	return nil
}
