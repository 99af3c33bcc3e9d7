package delivery

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shohag/hookline/internal/config"
	"github.com/shohag/hookline/internal/registry"
	"github.com/shohag/hookline/internal/storage"
)

// Pool runs a fixed set of workers consuming the delivery queue.
type Pool struct {
	worker  *Worker
	queue   *Queue
	workers int
	log     zerolog.Logger
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewPool(cfg config.DeliveryConfig, store storage.Storage, reg *registry.Registry, queue *Queue, log zerolog.Logger) *Pool {
	sender := NewSender(cfg.Timeout)

	delays := cfg.RetryDelays
	if len(delays) == 0 {
		delays = DefaultRetryDelays
	}

	worker := NewWorker(store, reg, sender, queue, delays, log)

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	return &Pool{
		worker:  worker,
		queue:   queue,
		workers: workers,
		log:     log,
		stop:    make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Msg("starting delivery worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
}

func (p *Pool) Stop() {
	p.log.Info().Msg("stopping delivery worker pool")
	close(p.stop)
	p.wg.Wait()
	p.log.Info().Msg("delivery worker pool stopped")
}

func (p *Pool) run(ctx context.Context) {
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case id := <-p.queue.C():
			p.worker.Process(ctx, id)
		}
	}
}
