package storage

import (
	"context"
	"fmt"

	"poolstates/internal/model"
)

// Store persists extracted records. Implementations must tolerate re-insertion
// of the same (block_number, pool_address, tx_hash/tx_index) key: the pipeline
// delivers at least once.
type Store interface {
	InsertTickInfos(ctx context.Context, records []model.TickInfo) error
	InsertSlot0s(ctx context.Context, records []model.Slot0) error
	InsertTrades(ctx context.Context, records []model.Trade) error
}

// InsertRecords splits a mixed batch by kind and inserts every kind. The
// batch is tried in whole: any failure means the caller must retry the whole
// batch, relying on the store's idempotent-key semantics.
func InsertRecords(ctx context.Context, store Store, records []model.Record) error {
	ticks, slot0s, trades := model.Combine(records)

	if len(ticks) > 0 {
		if err := store.InsertTickInfos(ctx, ticks); err != nil {
			return fmt.Errorf("insert tick infos: %w", err)
		}
	}
	if len(slot0s) > 0 {
		if err := store.InsertSlot0s(ctx, slot0s); err != nil {
			return fmt.Errorf("insert slot0s: %w", err)
		}
	}
	if len(trades) > 0 {
		if err := store.InsertTrades(ctx, trades); err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}
	}
	return nil
}
