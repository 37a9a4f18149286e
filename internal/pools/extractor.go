package pools

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolstates/internal/chain"
	"poolstates/internal/model"
	"poolstates/internal/replay"
)

// Extractor turns chain-state results for one pool into records of one kind.
// Exactly one of the two extraction paths applies, declared by the
// capability methods: NeedsReplay extractors run inside a replay session
// with a call capability bound to post-transaction state; NeedsDecode
// extractors work from already-executed call traces.
type Extractor interface {
	PoolAddress() common.Address
	EarliestBlock() uint64
	NeedsReplay() bool
	NeedsDecode() bool

	// Extract runs on the replay path, immediately after a touched
	// transaction committed its diff.
	Extract(ctx context.Context, call replay.CallFn, blockNumber uint64, txHash common.Hash, txIndex uint64) ([]model.Record, error)

	// DecodeCalls runs on the decode path over the pool's trace calls for
	// one block.
	DecodeCalls(blockNumber uint64, calls []chain.TraceCall) ([]model.Record, error)
}

// EnabledKinds selects which record kinds to extract.
type EnabledKinds struct {
	TickInfo bool
	Slot0    bool
	Trades   bool
}

// Any reports whether at least one kind is enabled.
func (e EnabledKinds) Any() bool {
	return e.TickInfo || e.Slot0 || e.Trades
}

// Build constructs the extractor set for the descriptor list: one extractor
// per (pool, enabled kind).
func Build(descriptors []model.PoolDescriptor, kinds EnabledKinds, logger *zap.Logger) ([]Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var out []Extractor
	for _, desc := range descriptors {
		if err := desc.Validate(); err != nil {
			return nil, err
		}
		addr, _ := desc.PoolAddress()

		if kinds.TickInfo {
			out = append(out, NewTickExtractor(addr, desc.EarliestBlock, logger))
		}
		if kinds.Slot0 {
			out = append(out, NewSlot0Extractor(addr, desc.Token0, desc.Token1, desc.EarliestBlock, logger))
		}
		if kinds.Trades {
			trade, err := NewTradeExtractor(addr, desc.Token0, desc.Token1, desc.EarliestBlock, logger)
			if err != nil {
				return nil, fmt.Errorf("pool %s: %w", desc.Address, err)
			}
			out = append(out, trade)
		}
	}
	return out, nil
}
