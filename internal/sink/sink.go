package sink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"poolstates/internal/model"
	"poolstates/internal/storage"
)

const defaultRetryDelay = 2 * time.Second

// Sink buffers record groups arriving from block processing and flushes them
// to storage in fixed-size batches. A failed flush is retried with the same
// batch until it lands: the pipeline promises at-least-once delivery and the
// stores dedupe on their row keys.
type Sink struct {
	store      storage.Store
	batchSize  int
	retryDelay time.Duration
	logger     *zap.Logger
	in         chan []model.Record
}

func New(store storage.Store, batchSize int, logger *zap.Logger) *Sink {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		store:      store,
		batchSize:  batchSize,
		retryDelay: defaultRetryDelay,
		logger:     logger,
		in:         make(chan []model.Record, 64),
	}
}

// In is the input channel. Each send is one block's worth of records and is
// appended to the pending buffer as a unit.
func (s *Sink) In() chan<- []model.Record {
	return s.in
}

// Close signals that no further groups will arrive. Run drains the pending
// buffer and returns after the final flush.
func (s *Sink) Close() {
	close(s.in)
}

// Run consumes groups until the input closes and everything pending has been
// flushed. It returns early only on context cancellation.
func (s *Sink) Run(ctx context.Context) error {
	var pending []model.Record

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case group, ok := <-s.in:
			if !ok {
				if len(pending) > 0 {
					return s.flush(ctx, pending)
				}
				return nil
			}
			pending = append(pending, group...)
			for len(pending) >= s.batchSize {
				batch := pending[:s.batchSize:s.batchSize]
				if err := s.flush(ctx, batch); err != nil {
					return err
				}
				pending = pending[s.batchSize:]
			}
		}
	}
}

// flush inserts the batch, retrying the identical batch until it succeeds.
func (s *Sink) flush(ctx context.Context, batch []model.Record) error {
	for attempt := 1; ; attempt++ {
		err := storage.InsertRecords(ctx, s.store, batch)
		if err == nil {
			s.logger.Debug("batch inserted",
				zap.Int("records", len(batch)),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		s.logger.Warn("batch insert failed, retrying",
			zap.Int("records", len(batch)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}
