package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shohag/hookline/internal/storage"
)

// RetrySweeper is the safety net behind the worker's self-scheduled
// retries: it re-enqueues due retrying deliveries, recovers pending rows
// that never made it onto the queue (crash between record creation and
// enqueue, or a full queue), and releases claims abandoned by a dead
// worker. Re-enqueuing is idempotent; the worker's claim guards against
// double delivery.
type RetrySweeper struct {
	store        storage.Storage
	queue        *Queue
	interval     time.Duration
	batch        int
	pendingGrace time.Duration
	claimTTL     time.Duration
	log          zerolog.Logger
	stop         chan struct{}
	wg           sync.WaitGroup
}

func NewRetrySweeper(store storage.Storage, queue *Queue, interval time.Duration, batch int, pendingGrace, claimTTL time.Duration, log zerolog.Logger) *RetrySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	if pendingGrace <= 0 {
		pendingGrace = time.Minute
	}
	if claimTTL <= 0 {
		claimTTL = 10 * time.Minute
	}
	return &RetrySweeper{
		store:        store,
		queue:        queue,
		interval:     interval,
		batch:        batch,
		pendingGrace: pendingGrace,
		claimTTL:     claimTTL,
		log:          log,
		stop:         make(chan struct{}),
	}
}

func (s *RetrySweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.log.Error().Err(err).Msg("retry sweep failed")
				}
			}
		}
	}()
}

func (s *RetrySweeper) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// Sweep runs one pass and returns how many deliveries were re-enqueued.
func (s *RetrySweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	released, err := s.store.ReleaseStaleClaims(ctx, now.Add(-s.claimTTL))
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.log.Warn().Int64("count", released).Msg("released stale delivery claims")
	}

	due, err := s.store.ListDueRetries(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}

	stale, err := s.store.ListStalePending(ctx, now.Add(-s.pendingGrace), s.batch)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range append(due, stale...) {
		s.queue.Enqueue(id)
		count++
	}

	if count > 0 {
		s.log.Info().Int("count", count).Msg("re-queued webhook deliveries")
	}
	return count, nil
}

// RetentionSweeper deletes terminal deliveries past the retention age.
// Pending and retrying rows are never touched regardless of age: a
// long-stuck non-terminal delivery is a bug signal, not a cleanup target.
type RetentionSweeper struct {
	store    storage.Storage
	maxAge   time.Duration
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewRetentionSweeper(store storage.Storage, maxAge, interval time.Duration, log zerolog.Logger) *RetentionSweeper {
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionSweeper{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (s *RetentionSweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Cleanup(ctx); err != nil {
					s.log.Error().Err(err).Msg("retention sweep failed")
				}
			}
		}
	}()
}

func (s *RetentionSweeper) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// Cleanup runs one pass and returns how many rows were deleted.
func (s *RetentionSweeper) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.maxAge)
	deleted, err := s.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("count", deleted).Msg("cleaned up old webhook deliveries")
	}
	return deleted, nil
}
