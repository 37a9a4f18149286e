package sink

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"poolstates/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	batches  [][]model.Trade
	failures int
}

func (f *fakeStore) InsertTickInfos(ctx context.Context, records []model.TickInfo) error {
	return nil
}

func (f *fakeStore) InsertSlot0s(ctx context.Context, records []model.Slot0) error {
	return nil
}

func (f *fakeStore) InsertTrades(ctx context.Context, records []model.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]model.Trade(nil), records...))
	if f.failures > 0 {
		f.failures--
		return errors.New("storage unavailable")
	}
	return nil
}

func tradeGroup(n int, startBlock uint64) []model.Record {
	group := make([]model.Record, 0, n)
	for i := 0; i < n; i++ {
		group = append(group, model.Record{Trade: &model.Trade{BlockNumber: startBlock + uint64(i)}})
	}
	return group
}

func TestSinkFlushesAtBatchSizeAndOnClose(t *testing.T) {
	store := &fakeStore{}
	s := New(store, 3, nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	block := uint64(100)
	for _, n := range []int{1, 1, 2, 1} {
		s.In() <- tradeGroup(n, block)
		block += uint64(n)
	}
	s.Close()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	var sizes []int
	for _, batch := range store.batches {
		sizes = append(sizes, len(batch))
	}
	if want := []int{3, 2}; !reflect.DeepEqual(sizes, want) {
		t.Fatalf("flush sizes = %v, want %v", sizes, want)
	}

	var blocks []uint64
	for _, batch := range store.batches {
		for _, trade := range batch {
			blocks = append(blocks, trade.BlockNumber)
		}
	}
	if want := []uint64{100, 101, 102, 103, 104}; !reflect.DeepEqual(blocks, want) {
		t.Fatalf("flushed blocks = %v, want %v", blocks, want)
	}
}

func TestSinkRetriesIdenticalBatch(t *testing.T) {
	store := &fakeStore{failures: 3}
	s := New(store, 2, nil)
	s.retryDelay = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	s.In() <- tradeGroup(2, 500)
	s.Close()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.batches) != 4 {
		t.Fatalf("attempts = %d, want 4", len(store.batches))
	}
	for i := 1; i < len(store.batches); i++ {
		if !reflect.DeepEqual(store.batches[i], store.batches[0]) {
			t.Fatalf("attempt %d batch differs from attempt 1", i+1)
		}
	}
}

func TestSinkStopsOnCancel(t *testing.T) {
	store := &fakeStore{failures: 1 << 30}
	s := New(store, 1, nil)
	s.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.In() <- tradeGroup(1, 1)
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run error = %v, want context.Canceled", err)
	}
}
