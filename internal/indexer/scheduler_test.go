package indexer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"poolstates/internal/model"
)

type fakeProcessor struct {
	units        int64
	failuresLeft map[uint64]int

	mu         sync.Mutex
	inFlight   int64
	maxSeen    int64
	successes  []uint64
	totalCalls int
}

func (f *fakeProcessor) WorkUnits(height uint64) int64 {
	return f.units
}

func (f *fakeProcessor) Process(ctx context.Context, height uint64) ([]model.Record, error) {
	f.mu.Lock()
	f.totalCalls++
	f.inFlight += f.units
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	fail := f.failuresLeft[height] > 0
	if fail {
		f.failuresLeft[height]--
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight -= f.units
		f.mu.Unlock()
	}()

	if fail {
		return nil, errors.New("state view timeout")
	}

	f.mu.Lock()
	f.successes = append(f.successes, height)
	f.mu.Unlock()
	return []model.Record{{Trade: &model.Trade{BlockNumber: height}}}, nil
}

func drain(out <-chan []model.Record) *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range out {
		}
	}()
	return &wg
}

func TestSchedulerCompletesEveryHeightOnce(t *testing.T) {
	processor := &fakeProcessor{
		units: 1,
		failuresLeft: map[uint64]int{
			101: 2,
			105: 1,
			110: 3,
		},
	}
	out := make(chan []model.Record, 16)
	wg := drain(out)

	s := NewScheduler(processor, out, 3, nil, nil)
	if err := s.Run(context.Background(), 100, 110); err != nil {
		t.Fatalf("run: %v", err)
	}
	close(out)
	wg.Wait()

	sort.Slice(processor.successes, func(i, j int) bool {
		return processor.successes[i] < processor.successes[j]
	})
	if len(processor.successes) != 11 {
		t.Fatalf("completed %d heights, want 11", len(processor.successes))
	}
	for i, height := range processor.successes {
		if want := uint64(100 + i); height != want {
			t.Fatalf("completed heights = %v, want each of [100,110] exactly once", processor.successes)
		}
	}

	// 11 successes plus the injected failures.
	if want := 11 + 2 + 1 + 3; processor.totalCalls != want {
		t.Fatalf("process calls = %d, want %d", processor.totalCalls, want)
	}
}

func TestSchedulerRespectsWorkUnitBudget(t *testing.T) {
	processor := &fakeProcessor{units: 2, failuresLeft: map[uint64]int{}}
	out := make(chan []model.Record, 16)
	wg := drain(out)

	s := NewScheduler(processor, out, 5, nil, nil)
	if err := s.Run(context.Background(), 1, 20); err != nil {
		t.Fatalf("run: %v", err)
	}
	close(out)
	wg.Wait()

	// Budget 5 admits at most two tasks of weight 2 at a time.
	if processor.maxSeen > 4 {
		t.Fatalf("max in-flight units = %d, want <= 4", processor.maxSeen)
	}
}

func TestSchedulerRejectsInvertedRange(t *testing.T) {
	processor := &fakeProcessor{units: 1, failuresLeft: map[uint64]int{}}
	out := make(chan []model.Record, 1)

	s := NewScheduler(processor, out, 1, nil, nil)
	if err := s.Run(context.Background(), 10, 5); err == nil {
		t.Fatal("expected error for inverted range")
	}
}
