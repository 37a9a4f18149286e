package replay

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolstates/internal/chain"
	"poolstates/internal/model"
)

// CallFn simulates a contract call against the session's current overlay.
type CallFn func(ctx context.Context, to common.Address, input []byte) ([]byte, error)

// Extraction turns the post-transaction pool state into records. It runs
// immediately after the matched transaction's diff is committed, with a call
// capability bound to the now-current overlay.
type Extraction func(ctx context.Context, call CallFn, blockNumber uint64, txHash common.Hash, txIndex uint64) ([]model.Record, error)

// Session replays one block's transactions for one pool against a private
// overlay seeded from the parent block's state.
type Session struct {
	provider chain.Provider
	overlay  *Overlay
	block    *chain.BlockWithSenders
	touched  map[common.Hash]struct{}
	logger   *zap.Logger
}

// NewSession builds a session. The overlay must be private to this session;
// touched holds the hashes of transactions that touch the pool of interest.
func NewSession(provider chain.Provider, overlay *Overlay, block *chain.BlockWithSenders, touched []common.Hash, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[common.Hash]struct{}, len(touched))
	for _, h := range touched {
		set[h] = struct{}{}
	}
	return &Session{
		provider: provider,
		overlay:  overlay,
		block:    block,
		touched:  set,
		logger:   logger,
	}
}

// Run replays the block's transactions in index order, committing each
// successful transaction's diff before evaluating the next, and invokes
// extract for every touched transaction. EVM state is order-dependent, so
// the loop must never reorder or skip ahead.
func (s *Session) Run(ctx context.Context, extract Extraction) ([]model.Record, error) {
	var records []model.Record

	for _, tx := range s.block.Txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, diff, err := s.provider.ApplyTransaction(ctx, s.overlay.Height(), s.overlay.Overrides(), tx)
		if err != nil {
			return nil, fmt.Errorf("replay tx %s (index %d): %w", tx.Hash.Hex(), tx.Index, err)
		}

		_, matched := s.touched[tx.Hash]

		if result.Failed() {
			// Reverted or halted: nothing to commit. A matched transaction
			// that failed yields no record; it is a miss, not an error.
			if matched {
				s.logger.Debug("matched transaction failed in replay",
					zap.Uint64("block", s.block.Number),
					zap.String("tx", tx.Hash.Hex()),
					zap.Bool("reverted", result.Reverted),
					zap.String("vm_error", result.VMError),
				)
			}
			continue
		}

		s.overlay.Commit(diff)

		if !matched {
			continue
		}

		extracted, err := extract(ctx, s.call, s.block.Number, tx.Hash, tx.Index)
		if err != nil {
			return nil, fmt.Errorf("extract after tx %s: %w", tx.Hash.Hex(), err)
		}
		records = append(records, extracted...)
	}

	return records, nil
}

func (s *Session) call(ctx context.Context, to common.Address, input []byte) ([]byte, error) {
	return s.provider.Call(ctx, s.overlay.Height(), s.overlay.Overrides(), to, input)
}
