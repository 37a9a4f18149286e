package indexer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"poolstates/internal/model"
)

// BlockProcessor produces the records for one block, or fails with an error
// the scheduler treats as retryable.
type BlockProcessor interface {
	// WorkUnits is the admission weight of processing the height.
	WorkUnits(height uint64) int64
	Process(ctx context.Context, height uint64) ([]model.Record, error)
}

// Scheduler walks a closed block range, keeping at most maxUnits work units
// in flight. The budget is measured in work units rather than block count
// because every open state view counts against a hard provider-side handle
// cap; admission control here is what keeps the provider from rejecting
// reads.
type Scheduler struct {
	processor  BlockProcessor
	out        chan<- []model.Record
	budget     *semaphore.Weighted
	maxUnits   int64
	checkpoint *CheckpointStore
	logger     *zap.Logger

	mu        sync.Mutex
	completed map[uint64]struct{}
	frontier  uint64
}

func NewScheduler(processor BlockProcessor, out chan<- []model.Record, maxUnits int64, checkpoint *CheckpointStore, logger *zap.Logger) *Scheduler {
	if maxUnits < 1 {
		maxUnits = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		processor:  processor,
		out:        out,
		budget:     semaphore.NewWeighted(maxUnits),
		maxUnits:   maxUnits,
		checkpoint: checkpoint,
		logger:     logger,
		completed:  make(map[uint64]struct{}),
	}
}

// Run processes every height in [start, end] exactly once to success. A
// failed height is retried in place, holding its work units: the failure is
// assumed infrastructural, and releasing budget to other blocks would only
// pile more load on a struggling provider. Run returns once the cursor is
// exhausted and no in-flight work remains.
func (s *Scheduler) Run(ctx context.Context, start, end uint64) error {
	if end < start {
		return fmt.Errorf("end block %d is below start block %d", end, start)
	}

	s.mu.Lock()
	s.frontier = start - 1
	s.mu.Unlock()

	var wg sync.WaitGroup
	var spawnErr error

	for height := start; height <= end; height++ {
		units := s.processor.WorkUnits(height)
		if units > s.maxUnits {
			units = s.maxUnits
		}
		if err := s.budget.Acquire(ctx, units); err != nil {
			spawnErr = err
			break
		}

		wg.Add(1)
		go func(height uint64, units int64) {
			defer wg.Done()
			defer s.budget.Release(units)
			s.processUntilSuccess(ctx, height)
		}(height, units)
	}

	wg.Wait()

	if spawnErr != nil {
		return spawnErr
	}
	return ctx.Err()
}

func (s *Scheduler) processUntilSuccess(ctx context.Context, height uint64) {
	for attempt := 1; ; attempt++ {
		records, err := s.processor.Process(ctx, height)
		if err == nil {
			select {
			case s.out <- records:
			case <-ctx.Done():
				return
			}
			s.markCompleted(height)
			s.logger.Info("block completed",
				zap.Uint64("block", height),
				zap.Int("records", len(records)),
				zap.Int("attempt", attempt),
			)
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("block failed, retrying",
			zap.Uint64("block", height),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

// markCompleted records the height and advances the contiguous frontier.
// Blocks complete out of order, so the checkpoint only moves once every
// height up to it has succeeded; resuming from it can never skip a block.
func (s *Scheduler) markCompleted(height uint64) {
	s.mu.Lock()
	s.completed[height] = struct{}{}
	advanced := false
	for {
		if _, ok := s.completed[s.frontier+1]; !ok {
			break
		}
		s.frontier++
		delete(s.completed, s.frontier)
		advanced = true
	}
	frontier := s.frontier
	s.mu.Unlock()

	if advanced && s.checkpoint != nil {
		if err := s.checkpoint.Save(frontier); err != nil {
			s.logger.Warn("checkpoint save failed", zap.Uint64("frontier", frontier), zap.Error(err))
		}
	}
}
