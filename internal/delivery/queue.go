package delivery

import (
	"time"

	"github.com/rs/zerolog"
)

// Queue is the in-process work queue of delivery IDs. Enqueue never
// blocks: when the buffer is full the ID is dropped and the retry sweeper
// recovers the durable record on its next pass.
type Queue struct {
	ch  chan string
	log zerolog.Logger
}

func NewQueue(size int, log zerolog.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{
		ch:  make(chan string, size),
		log: log,
	}
}

func (q *Queue) Enqueue(deliveryID string) {
	select {
	case q.ch <- deliveryID:
	default:
		q.log.Warn().Str("delivery_id", deliveryID).Msg("queue full, dropping enqueue; sweeper will recover")
	}
}

// EnqueueAfter schedules a delayed enqueue, used for self-scheduled
// retries.
func (q *Queue) EnqueueAfter(deliveryID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		q.Enqueue(deliveryID)
	})
}

// C is the consumer side, read by the worker pool.
func (q *Queue) C() <-chan string {
	return q.ch
}
