package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client implements Provider over an archive node that serves the standard
// eth/debug namespaces plus parity-style trace_replayBlockTransactions.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	signerOnce sync.Once
	signer     types.Signer
	signerErr  error
}

// NewClient dials the node at rpcURL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// CurrentHeight returns the latest block number.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

func (c *Client) blockSigner(ctx context.Context) (types.Signer, error) {
	c.signerOnce.Do(func() {
		chainID, err := c.ethClient.ChainID(ctx)
		if err != nil {
			c.signerErr = fmt.Errorf("get chain id: %w", err)
			return
		}
		c.signer = types.LatestSignerForChainID(chainID)
	})
	return c.signer, c.signerErr
}

// BlockWithSenders fetches the block at height and recovers each sender.
func (c *Client) BlockWithSenders(ctx context.Context, height uint64) (*BlockWithSenders, error) {
	signer, err := c.blockSigner(ctx)
	if err != nil {
		return nil, err
	}

	block, err := c.ethClient.BlockByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", height, err)
	}
	if block == nil {
		return nil, fmt.Errorf("no block found for height %d", height)
	}

	out := &BlockWithSenders{
		Number:   block.NumberU64(),
		GasLimit: block.GasLimit(),
		BaseFee:  block.BaseFee(),
		Time:     block.Time(),
		Txs:      make([]ReplayTx, 0, len(block.Transactions())),
	}

	for i, tx := range block.Transactions() {
		from, err := types.Sender(signer, tx)
		if err != nil {
			return nil, fmt.Errorf("recover sender for tx %s: %w", tx.Hash().Hex(), err)
		}
		out.Txs = append(out.Txs, ReplayTx{
			Hash:  tx.Hash(),
			Index: uint64(i),
			From:  from,
			To:    tx.To(),
			Gas:   tx.Gas(),
			Value: tx.Value(),
			Data:  tx.Data(),
		})
	}

	return out, nil
}

// rawTraceResult mirrors one entry of trace_replayBlockTransactions.
type rawTraceResult struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	Trace           []rawTraceFrame `json:"trace"`
}

type rawTraceFrame struct {
	Type   string          `json:"type"`
	Action rawTraceAction  `json:"action"`
	Result *rawTraceOutput `json:"result"`
	Error  string          `json:"error"`
}

type rawTraceAction struct {
	CallType string         `json:"callType"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Input    hexutil.Bytes  `json:"input"`
}

type rawTraceOutput struct {
	Output hexutil.Bytes `json:"output"`
}

// TraceBlock replays the block's transactions and returns flattened call
// traces.
func (c *Client) TraceBlock(ctx context.Context, height uint64) ([]TxTrace, error) {
	var raw []rawTraceResult
	err := c.rpcClient.CallContext(ctx, &raw,
		"trace_replayBlockTransactions", hexutil.Uint64(height), []string{"trace"})
	if err != nil {
		return nil, fmt.Errorf("trace block %d: %w", height, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("no traces found for block %d", height)
	}

	traces := make([]TxTrace, 0, len(raw))
	for _, tx := range raw {
		trace := TxTrace{TxHash: tx.TransactionHash, Frames: make([]CallFrame, 0, len(tx.Trace))}
		for _, frame := range tx.Trace {
			if frame.Error != "" {
				trace.Failed = true
			}
			if frame.Type != "call" {
				continue
			}
			out := CallFrame{
				Type:  frame.Action.CallType,
				From:  frame.Action.From,
				To:    frame.Action.To,
				Input: frame.Action.Input,
				Error: frame.Error,
			}
			if frame.Result != nil {
				out.Output = frame.Result.Output
			}
			trace.Frames = append(trace.Frames, out)
		}
		traces = append(traces, trace)
	}

	return traces, nil
}

type callArgs struct {
	From     *common.Address `json:"from,omitempty"`
	To       *common.Address `json:"to,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
}

// Call executes an eth_call against the state after block height with the
// overrides applied.
func (c *Client) Call(ctx context.Context, height uint64, overrides StateOverride, to common.Address, input []byte) ([]byte, error) {
	args := callArgs{To: &to, Data: input}

	params := []interface{}{args, hexutil.Uint64(height)}
	if len(overrides) > 0 {
		params = append(params, overrides)
	}

	var result hexutil.Bytes
	if err := c.rpcClient.CallContext(ctx, &result, "eth_call", params...); err != nil {
		return nil, fmt.Errorf("call %s at block %d: %w", to.Hex(), height, err)
	}
	return result, nil
}

// callTracerResult is the top frame of a debug_traceCall callTracer run.
type callTracerResult struct {
	Output       hexutil.Bytes `json:"output"`
	Error        string        `json:"error"`
	RevertReason string        `json:"revertReason"`
}

// prestateDiff is the diffMode output of the prestateTracer.
type prestateDiff struct {
	Post map[common.Address]prestateAccount `json:"post"`
}

type prestateAccount struct {
	Balance *hexutil.Big                `json:"balance"`
	Nonce   *hexutil.Uint64             `json:"nonce"`
	Code    hexutil.Bytes               `json:"code"`
	Storage map[common.Hash]common.Hash `json:"storage"`
}

type traceCallConfig struct {
	Tracer         string          `json:"tracer"`
	TracerConfig   map[string]bool `json:"tracerConfig,omitempty"`
	StateOverrides StateOverride   `json:"stateOverrides,omitempty"`
}

// ApplyTransaction simulates tx with a zeroed gas price against the state
// after block height plus overrides, returning its outcome and, on success,
// the state changes it would commit.
func (c *Client) ApplyTransaction(ctx context.Context, height uint64, overrides StateOverride, tx ReplayTx) (*TxResult, StateDiff, error) {
	gas := hexutil.Uint64(tx.Gas)
	args := callArgs{
		From: &tx.From,
		To:   tx.To,
		Gas:  &gas,
		// Gas price pinned to zero so replays are not rejected under a
		// changed fee schedule.
		GasPrice: (*hexutil.Big)(new(big.Int)),
		Data:     tx.Data,
	}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(tx.Value)
	}

	blockRef := hexutil.Uint64(height)

	var call callTracerResult
	err := c.rpcClient.CallContext(ctx, &call, "debug_traceCall", args, blockRef,
		&traceCallConfig{Tracer: "callTracer", StateOverrides: overrides})
	if err != nil {
		return nil, nil, fmt.Errorf("trace call for tx %s: %w", tx.Hash.Hex(), err)
	}
	if call.Error != "" {
		result := &TxResult{Output: call.Output}
		if call.Error == "execution reverted" || call.RevertReason != "" {
			result.Reverted = true
		} else {
			result.VMError = call.Error
		}
		return result, nil, nil
	}

	var diff prestateDiff
	err = c.rpcClient.CallContext(ctx, &diff, "debug_traceCall", args, blockRef,
		&traceCallConfig{
			Tracer:         "prestateTracer",
			TracerConfig:   map[string]bool{"diffMode": true},
			StateOverrides: overrides,
		})
	if err != nil {
		return nil, nil, fmt.Errorf("state diff for tx %s: %w", tx.Hash.Hex(), err)
	}

	out := make(StateDiff, len(diff.Post))
	for addr, account := range diff.Post {
		entry := AccountDiff{}
		if account.Balance != nil {
			entry.Balance = (*big.Int)(account.Balance)
		}
		if account.Nonce != nil {
			nonce := uint64(*account.Nonce)
			entry.Nonce = &nonce
		}
		if len(account.Code) > 0 {
			entry.Code = account.Code
		}
		if len(account.Storage) > 0 {
			entry.Storage = make(map[common.Hash]common.Hash, len(account.Storage))
			for slot, value := range account.Storage {
				entry.Storage[slot] = value
			}
		}
		out[addr] = entry
	}

	return &TxResult{Output: call.Output}, out, nil
}
