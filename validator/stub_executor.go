package validator

import (
	"fmt"
	"math/big"

	"github.com/zeth-go/zeth/core/types"
	"github.com/zeth-go/zeth/crypto"
	"github.com/zeth-go/zeth/rlp"
	"github.com/zeth-go/zeth/sparsestate"
	"github.com/zeth-go/zeth/trie"
)

// StubExecutor is a minimal Executor standing in for the real EVM, which
// callers supply as an external dependency. It handles plain value transfers
// (empty calldata, non-nil recipient) at a fixed 21000 gas, EIP-4895
// beacon-chain withdrawal credits, and EIP-7702 SetCodeTx authorization
// processing (delegation designator installation only; it never executes
// the delegated code), which is enough to exercise the sparse-state
// read/write contract end to end; any transaction it cannot interpret
// fails with ExecutionFailedError.
type StubExecutor struct {
	GasPrice *big.Int // flat gas price charged when header.BaseFee is nil (pre-1559 chain config)
}

// NewStubExecutor creates a StubExecutor falling back to the given flat gas
// price on chain configs with no EIP-1559 base fee.
func NewStubExecutor(gasPrice *big.Int) *StubExecutor {
	return &StubExecutor{GasPrice: gasPrice}
}

const transferGas = 21000

// applyAuthorizations processes an EIP-7702 SetCodeTx's authorization list:
// each entry that recovers to a valid signature and whose nonce matches its
// authority's current account nonce has its code replaced by a delegation
// designator pointing at auth.Address, and its nonce bumped by one. An
// authorization that fails recovery or nonce matching is skipped rather
// than failing the whole transaction, per EIP-7702.
func applyAuthorizations(accounts map[types.Address]*sparsestate.AccountChange, state *sparsestate.SparseState, auths []types.Authorization) error {
	for _, auth := range auths {
		authority, err := types.RecoverAuthority(auth)
		if err != nil {
			continue
		}
		change, ok := accounts[authority]
		if !ok {
			acc, err := state.Account(authority)
			if err != nil {
				return err
			}
			change = &sparsestate.AccountChange{CodeHash: types.EmptyCodeHash, Balance: new(big.Int)}
			if acc != nil {
				change.Nonce = acc.Nonce
				change.Balance = new(big.Int).Set(acc.Balance)
				change.CodeHash = types.BytesToHash(acc.CodeHash)
			}
			accounts[authority] = change
		}
		if change.Nonce != auth.Nonce {
			continue
		}
		change.CodeHash = crypto.Keccak256Hash(types.AddressToDelegation(auth.Address))
		change.Nonce++
	}
	return nil
}

// Execute applies every transaction as a plain value transfer: debit
// sender.balance by value + gas*effectiveGasPrice, credit recipient.balance
// by value, and bump sender.nonce. The fee charged per transaction is its
// EIP-1559 effective gas price against header.BaseFee (min(gasFeeCap,
// gasTipCap+baseFee)), falling back to the executor's flat GasPrice only
// when the header carries no base fee at all. account() is always called
// before storage() per the sparse-state contract, though this stub never
// reads storage.
func (e *StubExecutor) Execute(header *types.Header, txs []*types.Transaction, signers []types.Address, withdrawals []*types.Withdrawal, state *sparsestate.SparseState) (*ExecutionResult, error) {
	accounts := make(map[types.Address]*sparsestate.AccountChange)
	txTrie := trie.New()
	receiptTrie := trie.New()
	var gasUsed uint64
	receipts := make([]*types.Receipt, 0, len(txs))

	for i, tx := range txs {
		if len(tx.Data()) != 0 || tx.To() == nil {
			return nil, fmt.Errorf("stub executor: tx %d: only plain value transfers are supported", i)
		}

		if tx.Type() == types.SetCodeTxType {
			if err := applyAuthorizations(accounts, state, tx.AuthorizationList()); err != nil {
				return nil, fmt.Errorf("stub executor: tx %d: authorizations: %w", i, err)
			}
		}

		sender := signers[i]
		senderAcc, err := state.Account(sender)
		if err != nil {
			return nil, fmt.Errorf("stub executor: tx %d: %w", i, err)
		}
		if senderAcc == nil {
			return nil, fmt.Errorf("stub executor: tx %d: sender %s has no account", i, sender.Hex())
		}
		senderChange, ok := accounts[sender]
		if !ok {
			senderChange = &sparsestate.AccountChange{
				Nonce:    senderAcc.Nonce,
				Balance:  new(big.Int).Set(senderAcc.Balance),
				CodeHash: types.BytesToHash(senderAcc.CodeHash),
			}
			accounts[sender] = senderChange
		}
		if senderChange.Nonce != tx.Nonce() {
			return nil, fmt.Errorf("stub executor: tx %d: nonce mismatch: account %d, tx %d", i, senderChange.Nonce, tx.Nonce())
		}

		gasPrice := tx.EffectiveGasPrice(header.BaseFee)
		if header.BaseFee == nil {
			gasPrice = e.GasPrice
		}
		fee := new(big.Int).Mul(gasPrice, big.NewInt(transferGas))
		cost := new(big.Int).Add(tx.Value(), fee)
		if senderChange.Balance.Cmp(cost) < 0 {
			return nil, fmt.Errorf("stub executor: tx %d: insufficient balance", i)
		}
		senderChange.Balance.Sub(senderChange.Balance, cost)
		senderChange.Nonce++

		recipient := *tx.To()
		recipientAcc, err := state.Account(recipient)
		if err != nil {
			return nil, fmt.Errorf("stub executor: tx %d: %w", i, err)
		}
		recipientChange, ok := accounts[recipient]
		if !ok {
			recipientChange = &sparsestate.AccountChange{CodeHash: types.EmptyCodeHash}
			if recipientAcc != nil {
				recipientChange.Nonce = recipientAcc.Nonce
				recipientChange.Balance = new(big.Int).Set(recipientAcc.Balance)
				recipientChange.CodeHash = types.BytesToHash(recipientAcc.CodeHash)
			} else {
				recipientChange.Balance = new(big.Int)
			}
			accounts[recipient] = recipientChange
		}
		recipientChange.Balance.Add(recipientChange.Balance, tx.Value())

		gasUsed += transferGas

		key, _ := rlp.EncodeToBytes(uint64(i))
		txEnc, err := tx.EncodeRLP()
		if err != nil {
			return nil, err
		}
		if _, err := txTrie.Insert(key, txEnc); err != nil {
			return nil, err
		}

		receipt := types.NewReceipt(types.ReceiptStatusSuccessful, gasUsed)
		receipt.GasUsed = transferGas
		receipt.EffectiveGasPrice = gasPrice
		receipt.Bloom = types.LogsBloom(receipt.Logs)
		receipts = append(receipts, receipt)
		receiptEnc, err := receipt.EncodeRLP()
		if err != nil {
			return nil, err
		}
		if _, err := receiptTrie.Insert(key, receiptEnc); err != nil {
			return nil, err
		}
	}

	// EIP-4895: credit each withdrawal's Gwei amount to its address's
	// balance. Withdrawals never consume gas and cannot fail at this
	// point: ValidateBody already rejected a malformed list (duplicate
	// index, too many entries, bad withdrawals-hash) before Execute runs.
	credits, err := types.ProcessWithdrawals(withdrawals)
	if err != nil {
		return nil, fmt.Errorf("stub executor: withdrawals: %w", err)
	}
	for addr, gwei := range credits {
		change, ok := accounts[addr]
		if !ok {
			acc, err := state.Account(addr)
			if err != nil {
				return nil, fmt.Errorf("stub executor: withdrawal credit: %w", err)
			}
			change = &sparsestate.AccountChange{CodeHash: types.EmptyCodeHash, Balance: new(big.Int)}
			if acc != nil {
				change.Nonce = acc.Nonce
				change.Balance = new(big.Int).Set(acc.Balance)
				change.CodeHash = types.BytesToHash(acc.CodeHash)
			}
			accounts[addr] = change
		}
		wei := new(big.Int).Mul(new(big.Int).SetUint64(gwei), big.NewInt(1_000_000_000))
		change.Balance.Add(change.Balance, wei)
	}

	txRoot, err := txTrie.Hash()
	if err != nil {
		return nil, err
	}
	receiptRoot, err := receiptTrie.Hash()
	if err != nil {
		return nil, err
	}

	var logs []*types.Log
	totalFees := new(big.Int)
	for _, r := range receipts {
		logs = append(logs, r.Logs...)
		totalFees.Add(totalFees, r.TotalGasCost())
	}

	diff := &sparsestate.Diff{Accounts: accounts}
	return &ExecutionResult{
		TransactionsRoot: txRoot,
		ReceiptsRoot:     receiptRoot,
		LogsBloom:        types.CreateBloom(receipts),
		Logs:             logs,
		GasUsed:          gasUsed,
		TotalFees:        totalFees,
		Diff:             diff,
	}, nil
}
