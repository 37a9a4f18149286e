package chain

import (
	"github.com/ethereum/go-ethereum/common"
)

// TraceCall is a successful call into a monitored pool, extracted from a
// block trace.
type TraceCall struct {
	TxHash   common.Hash
	Selector [4]byte
	Input    []byte
	Output   []byte
}

// TouchedPools maps each monitored pool to the ordered, deduplicated list of
// transaction hashes whose traces touch it, either as caller or callee.
func TouchedPools(traces []TxTrace, pools map[common.Address]struct{}) map[common.Address][]common.Hash {
	out := make(map[common.Address][]common.Hash, len(pools))
	for _, tx := range traces {
		matched := make(map[common.Address]struct{})
		for _, frame := range tx.Frames {
			if _, ok := pools[frame.From]; ok {
				matched[frame.From] = struct{}{}
			}
			if _, ok := pools[frame.To]; ok {
				matched[frame.To] = struct{}{}
			}
		}
		for pool := range matched {
			out[pool] = append(out[pool], tx.TxHash)
		}
	}
	return out
}

// PoolCalls maps each monitored pool to the calls made into it, in trace
// order. Transactions with any errored frame contribute nothing: their call
// outputs do not reflect committed state.
func PoolCalls(traces []TxTrace, pools map[common.Address]struct{}) map[common.Address][]TraceCall {
	out := make(map[common.Address][]TraceCall, len(pools))
	for _, tx := range traces {
		if tx.Failed {
			continue
		}
		for _, frame := range tx.Frames {
			if _, ok := pools[frame.To]; !ok {
				continue
			}
			if len(frame.Input) < 4 || frame.Output == nil {
				continue
			}
			call := TraceCall{
				TxHash: tx.TxHash,
				Input:  frame.Input,
				Output: frame.Output,
			}
			copy(call.Selector[:], frame.Input[:4])
			out[frame.To] = append(out[frame.To], call)
		}
	}
	return out
}
