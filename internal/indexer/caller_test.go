package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"

	"poolstates/internal/chain"
	"poolstates/internal/model"
	"poolstates/internal/pools"
	"poolstates/internal/replay"
)

var (
	replayPool = common.HexToAddress("0x1111111111111111111111111111111111111111")
	decodePool = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type callerProvider struct{}

func (p *callerProvider) CurrentHeight(ctx context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}

func (p *callerProvider) BlockWithSenders(ctx context.Context, height uint64) (*chain.BlockWithSenders, error) {
	return &chain.BlockWithSenders{
		Number: height,
		Txs: []chain.ReplayTx{
			{Hash: common.Hash{1}, Index: 0},
			{Hash: common.Hash{2}, Index: 1},
		},
	}, nil
}

func (p *callerProvider) TraceBlock(ctx context.Context, height uint64) ([]chain.TxTrace, error) {
	return []chain.TxTrace{
		{
			TxHash: common.Hash{1},
			Frames: []chain.CallFrame{{Type: "call", To: replayPool, Input: []byte{1, 2, 3, 4}, Output: []byte{}}},
		},
		{
			TxHash: common.Hash{2},
			Frames: []chain.CallFrame{{Type: "call", To: decodePool, Input: []byte{5, 6, 7, 8}, Output: []byte{9}}},
		},
	}, nil
}

func (p *callerProvider) Call(ctx context.Context, height uint64, overrides chain.StateOverride, to common.Address, input []byte) ([]byte, error) {
	return nil, nil
}

func (p *callerProvider) ApplyTransaction(ctx context.Context, height uint64, overrides chain.StateOverride, tx chain.ReplayTx) (*chain.TxResult, chain.StateDiff, error) {
	return &chain.TxResult{}, nil, nil
}

type fakeExtractor struct {
	pool     common.Address
	earliest uint64
	replays  bool
	decodes  bool
}

func (f *fakeExtractor) PoolAddress() common.Address { return f.pool }
func (f *fakeExtractor) EarliestBlock() uint64       { return f.earliest }
func (f *fakeExtractor) NeedsReplay() bool           { return f.replays }
func (f *fakeExtractor) NeedsDecode() bool           { return f.decodes }

func (f *fakeExtractor) Extract(ctx context.Context, call replay.CallFn, blockNumber uint64, txHash common.Hash, txIndex uint64) ([]model.Record, error) {
	return []model.Record{{Slot0: &model.Slot0{
		BlockNumber: blockNumber,
		PoolAddress: f.pool,
		TxHash:      txHash,
		TxIndex:     txIndex,
	}}}, nil
}

func (f *fakeExtractor) DecodeCalls(blockNumber uint64, calls []chain.TraceCall) ([]model.Record, error) {
	var out []model.Record
	for _, call := range calls {
		out = append(out, model.Record{Trade: &model.Trade{
			BlockNumber: blockNumber,
			PoolAddress: f.pool,
			TxHash:      call.TxHash,
		}})
	}
	return out, nil
}

func TestCallerMergesReplayAndDecodePaths(t *testing.T) {
	workers := pond.NewPool(4)
	defer workers.StopAndWait()

	caller := NewCaller(&callerProvider{}, []pools.Extractor{
		&fakeExtractor{pool: replayPool, replays: true},
		&fakeExtractor{pool: decodePool, decodes: true},
	}, workers, nil)

	records, err := caller.Process(context.Background(), 100)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	var slot0s, trades int
	for _, r := range records {
		switch r.Kind() {
		case model.KindSlot0:
			slot0s++
			if r.Slot0.PoolAddress != replayPool || r.Slot0.TxHash != (common.Hash{1}) {
				t.Fatalf("replay record = %+v", r.Slot0)
			}
		case model.KindTrade:
			trades++
			if r.Trade.PoolAddress != decodePool || r.Trade.TxHash != (common.Hash{2}) {
				t.Fatalf("decode record = %+v", r.Trade)
			}
		}
	}
	if slot0s != 1 || trades != 1 {
		t.Fatalf("records = %+v, want one slot0 and one trade", records)
	}
}

func TestCallerFiltersByEarliestBlock(t *testing.T) {
	workers := pond.NewPool(4)
	defer workers.StopAndWait()

	caller := NewCaller(&callerProvider{}, []pools.Extractor{
		&fakeExtractor{pool: replayPool, replays: true, earliest: 200},
		&fakeExtractor{pool: decodePool, decodes: true, earliest: 50},
	}, workers, nil)

	if units := caller.WorkUnits(100); units != 1 {
		t.Fatalf("work units at 100 = %d, want 1", units)
	}
	if units := caller.WorkUnits(250); units != 2 {
		t.Fatalf("work units at 250 = %d, want 2", units)
	}

	records, err := caller.Process(context.Background(), 100)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	for _, r := range records {
		if r.Kind() != model.KindTrade {
			t.Fatalf("unexpected record kind %v before activation height", r.Kind())
		}
	}
}

func TestCallerNoApplicableExtractors(t *testing.T) {
	workers := pond.NewPool(4)
	defer workers.StopAndWait()

	caller := NewCaller(&callerProvider{}, []pools.Extractor{
		&fakeExtractor{pool: replayPool, replays: true, earliest: 500},
	}, workers, nil)

	records, err := caller.Process(context.Background(), 100)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %+v, want none", records)
	}
	if units := caller.WorkUnits(100); units != 1 {
		t.Fatalf("work units = %d, want floor of 1", units)
	}
}
