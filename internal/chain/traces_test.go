package chain

import (
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	poolA  = common.HexToAddress("0x5777d92f208679db4b9778590fa3cab3ac9e2168")
	poolB  = common.HexToAddress("0xcbcdf9626bc03e24f779434178a73a0b4bad62ed")
	caller = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func poolSet(addrs ...common.Address) map[common.Address]struct{} {
	set := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return set
}

func TestTouchedPools(t *testing.T) {
	tx1 := common.HexToHash("0x01")
	tx2 := common.HexToHash("0x02")
	tx3 := common.HexToHash("0x03")

	traces := []TxTrace{
		{
			TxHash: tx1,
			Frames: []CallFrame{
				{From: caller, To: poolA},
				{From: caller, To: poolA}, // second touch, same tx
			},
		},
		{
			TxHash: tx2,
			Frames: []CallFrame{
				{From: poolB, To: caller}, // pool as caller counts too
			},
		},
		{
			TxHash: tx3,
			Frames: []CallFrame{
				{From: caller, To: caller},
			},
		},
	}

	got := TouchedPools(traces, poolSet(poolA, poolB))

	if want := []common.Hash{tx1}; !reflect.DeepEqual(got[poolA], want) {
		t.Fatalf("poolA hashes mismatch: %v != %v", got[poolA], want)
	}
	if want := []common.Hash{tx2}; !reflect.DeepEqual(got[poolB], want) {
		t.Fatalf("poolB hashes mismatch: %v != %v", got[poolB], want)
	}
}

func TestPoolCallsSkipsFailedTx(t *testing.T) {
	input := []byte{0x12, 0x34, 0x56, 0x78, 0xaa}
	output := []byte{0x01}

	traces := []TxTrace{
		{
			TxHash: common.HexToHash("0x01"),
			Failed: true,
			Frames: []CallFrame{{From: caller, To: poolA, Input: input, Output: output}},
		},
		{
			TxHash: common.HexToHash("0x02"),
			Frames: []CallFrame{{From: caller, To: poolA, Input: input, Output: output}},
		},
	}

	got := PoolCalls(traces, poolSet(poolA))
	if len(got[poolA]) != 1 {
		t.Fatalf("expected one call, got %d", len(got[poolA]))
	}

	call := got[poolA][0]
	if call.TxHash != common.HexToHash("0x02") {
		t.Fatalf("unexpected tx hash: %s", call.TxHash.Hex())
	}
	if call.Selector != [4]byte{0x12, 0x34, 0x56, 0x78} {
		t.Fatalf("unexpected selector: %x", call.Selector)
	}
}

func TestPoolCallsIgnoresShortInput(t *testing.T) {
	traces := []TxTrace{
		{
			TxHash: common.HexToHash("0x01"),
			Frames: []CallFrame{{From: caller, To: poolA, Input: []byte{0x01}, Output: []byte{}}},
		},
	}

	got := PoolCalls(traces, poolSet(poolA))
	if len(got[poolA]) != 0 {
		t.Fatalf("expected no calls, got %d", len(got[poolA]))
	}
}
