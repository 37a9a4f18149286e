package replay

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"poolstates/internal/chain"
	"poolstates/internal/model"
)

type fakeProvider struct {
	results map[common.Hash]*chain.TxResult
	diffs   map[common.Hash]chain.StateDiff
	applied []common.Hash
}

func (f *fakeProvider) CurrentHeight(ctx context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeProvider) BlockWithSenders(ctx context.Context, height uint64) (*chain.BlockWithSenders, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) TraceBlock(ctx context.Context, height uint64) ([]chain.TxTrace, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) Call(ctx context.Context, height uint64, overrides chain.StateOverride, to common.Address, input []byte) ([]byte, error) {
	return nil, nil
}

func (f *fakeProvider) ApplyTransaction(ctx context.Context, height uint64, overrides chain.StateOverride, tx chain.ReplayTx) (*chain.TxResult, chain.StateDiff, error) {
	f.applied = append(f.applied, tx.Hash)
	result, ok := f.results[tx.Hash]
	if !ok {
		result = &chain.TxResult{}
	}
	return result, f.diffs[tx.Hash], nil
}

func hashOf(b byte) common.Hash {
	return common.Hash{b}
}

func testBlock(hashes ...common.Hash) *chain.BlockWithSenders {
	block := &chain.BlockWithSenders{Number: 42}
	for i, h := range hashes {
		block.Txs = append(block.Txs, chain.ReplayTx{
			Hash:  h,
			Index: uint64(i),
			Value: big.NewInt(0),
		})
	}
	return block
}

func markerExtraction(log *[][2]uint64) Extraction {
	return func(ctx context.Context, call CallFn, blockNumber uint64, txHash common.Hash, txIndex uint64) ([]model.Record, error) {
		*log = append(*log, [2]uint64{blockNumber, txIndex})
		return []model.Record{{Slot0: &model.Slot0{
			BlockNumber: blockNumber,
			TxHash:      txHash,
			TxIndex:     txIndex,
		}}}, nil
	}
}

func TestSessionReplaysInIndexOrder(t *testing.T) {
	hashes := []common.Hash{hashOf(1), hashOf(2), hashOf(3), hashOf(4)}
	provider := &fakeProvider{results: map[common.Hash]*chain.TxResult{}}
	session := NewSession(provider, NewOverlay(41), testBlock(hashes...), []common.Hash{hashes[2]}, nil)

	var calls [][2]uint64
	records, err := session.Run(context.Background(), markerExtraction(&calls))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !reflect.DeepEqual(provider.applied, hashes) {
		t.Fatalf("applied order = %v, want %v", provider.applied, hashes)
	}
	if len(records) != 1 || records[0].Slot0.TxIndex != 2 {
		t.Fatalf("records = %+v, want one record at tx index 2", records)
	}
	if want := [][2]uint64{{42, 2}}; !reflect.DeepEqual(calls, want) {
		t.Fatalf("extraction calls = %v, want %v", calls, want)
	}
}

func TestSessionSkipsCommitAndRecordOnRevert(t *testing.T) {
	slot := common.Hash{0xaa}
	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")

	provider := &fakeProvider{
		results: map[common.Hash]*chain.TxResult{
			hashOf(1): {Reverted: true},
		},
		diffs: map[common.Hash]chain.StateDiff{
			hashOf(1): {pool: chain.AccountDiff{Storage: map[common.Hash]common.Hash{slot: {0x01}}}},
			hashOf(2): {pool: chain.AccountDiff{Storage: map[common.Hash]common.Hash{slot: {0x02}}}},
		},
	}

	overlay := NewOverlay(41)
	session := NewSession(provider, overlay, testBlock(hashOf(1), hashOf(2)), []common.Hash{hashOf(1)}, nil)

	var calls [][2]uint64
	records, err := session.Run(context.Background(), markerExtraction(&calls))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// The matched transaction reverted: a miss, not an error, and nothing of
	// its diff may land in the overlay.
	if len(records) != 0 || len(calls) != 0 {
		t.Fatalf("records = %+v, extraction calls = %v, want none", records, calls)
	}
	got := overlay.Overrides()[pool].StateDiff[slot]
	if want := (common.Hash{0x02}); got != want {
		t.Fatalf("overlay slot = %v, want only the second tx's write %v", got, want)
	}
}

func TestSessionIsIdempotentAcrossRuns(t *testing.T) {
	hashes := []common.Hash{hashOf(1), hashOf(2)}
	pool := common.HexToAddress("0x2222222222222222222222222222222222222222")

	newProvider := func() *fakeProvider {
		return &fakeProvider{
			results: map[common.Hash]*chain.TxResult{},
			diffs: map[common.Hash]chain.StateDiff{
				hashOf(1): {pool: chain.AccountDiff{Balance: big.NewInt(7)}},
			},
		}
	}

	base := NewOverlay(41)
	run := func(provider *fakeProvider) []model.Record {
		session := NewSession(provider, base.Clone(), testBlock(hashes...), hashes, nil)
		var calls [][2]uint64
		records, err := session.Run(context.Background(), markerExtraction(&calls))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return records
	}

	first := run(newProvider())
	second := run(newProvider())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replays differ:\n%+v\n%+v", first, second)
	}
}
