package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Provider exposes the chain-state operations the pipeline consumes. All
// reads are pinned to explicit heights; implementations must be safe for
// concurrent use.
type Provider interface {
	// CurrentHeight returns the chain head height.
	CurrentHeight(ctx context.Context) (uint64, error)

	// BlockWithSenders returns the block at height with recovered senders.
	// It fails if the block is absent.
	BlockWithSenders(ctx context.Context, height uint64) (*BlockWithSenders, error)

	// TraceBlock returns per-transaction call traces for the block at
	// height. It fails if the block is absent.
	TraceBlock(ctx context.Context, height uint64) ([]TxTrace, error)

	// Call simulates a contract call against the state after block height,
	// patched with the given overrides, and returns the raw return data.
	Call(ctx context.Context, height uint64, overrides StateOverride, to common.Address, input []byte) ([]byte, error)

	// ApplyTransaction simulates tx against the state after block height,
	// patched with the given overrides. On successful execution the returned
	// diff holds the state changes the transaction would commit. A reverted
	// or halted transaction is not an error; it is reported via TxResult.
	ApplyTransaction(ctx context.Context, height uint64, overrides StateOverride, tx ReplayTx) (*TxResult, StateDiff, error)
}

// ReplayTx is the subset of a transaction needed to re-execute it.
type ReplayTx struct {
	Hash  common.Hash
	Index uint64
	From  common.Address
	To    *common.Address
	Gas   uint64
	Value *big.Int
	Data  []byte
}

// BlockWithSenders is a block body with sender addresses recovered.
type BlockWithSenders struct {
	Number   uint64
	GasLimit uint64
	BaseFee  *big.Int
	Time     uint64
	Txs      []ReplayTx
}

// TxResult reports the outcome of a simulated transaction.
type TxResult struct {
	Reverted bool
	VMError  string
	Output   []byte
}

// Failed reports whether the simulated transaction reverted or halted.
func (r *TxResult) Failed() bool {
	return r.Reverted || r.VMError != ""
}

// AccountDiff is the post-execution change set for one account. Nil fields
// are unchanged; Storage holds only mutated slots.
type AccountDiff struct {
	Balance *big.Int
	Nonce   *uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// StateDiff maps accounts to their post-execution changes.
type StateDiff map[common.Address]AccountDiff

// OverrideAccount patches one account in a pinned state view. The JSON shape
// matches the eth_call/debug_traceCall state-override object.
type OverrideAccount struct {
	Nonce     *hexutil.Uint64             `json:"nonce,omitempty"`
	Code      hexutil.Bytes               `json:"code,omitempty"`
	Balance   *hexutil.Big                `json:"balance,omitempty"`
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

// StateOverride is the set of account patches applied on top of a pinned
// state view.
type StateOverride map[common.Address]OverrideAccount

// TxTrace is the flattened call trace of one transaction.
type TxTrace struct {
	TxHash common.Hash
	Frames []CallFrame
	Failed bool
}

// CallFrame is a single call within a transaction trace.
type CallFrame struct {
	Type   string
	From   common.Address
	To     common.Address
	Input  []byte
	Output []byte
	Error  string
}
