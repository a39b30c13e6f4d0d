// service/queue.go
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"proxyvote/models"
)

var ErrQueueClosed = errors.New("broadcast queue is closed")

// Broadcaster hands an accepted submission to the ledger transport.
type Broadcaster interface {
	Broadcast(ctx context.Context, sub *models.Submission) error
}

// LogBroadcaster only logs submissions. It stands in for a real transport.
type LogBroadcaster struct{}

func (LogBroadcaster) Broadcast(ctx context.Context, sub *models.Submission) error {
	log.Info("Broadcasting proxy ballot", "id", sub.ID, "ballot", sub.BallotID, "voter", sub.Voter, "seq", sub.Sequence)
	return nil
}

// BroadcastQueue feeds accepted submissions to a Broadcaster from a single
// worker, in acceptance order.
type BroadcastQueue struct {
	broadcaster Broadcaster
	metrics     *MetricsCollector
	ch          chan *models.Submission
	mu          sync.RWMutex
	closed      bool
	wg          sync.WaitGroup
}

// NewBroadcastQueue creates a new queue holding up to size pending submissions
func NewBroadcastQueue(b Broadcaster, size int, metrics *MetricsCollector) *BroadcastQueue {
	if size < 1 {
		size = 1
	}
	return &BroadcastQueue{
		broadcaster: b,
		metrics:     metrics,
		ch:          make(chan *models.Submission, size),
	}
}

// Start begins broadcasting queued submissions
func (q *BroadcastQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.worker(ctx)
}

// Enqueue blocks until the submission is queued or ctx is done.
func (q *BroadcastQueue) Enqueue(ctx context.Context, sub *models.Submission) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- sub:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued submissions
func (q *BroadcastQueue) Pending() int {
	return len(q.ch)
}

// Stop refuses new submissions and waits until the queued ones are broadcast
func (q *BroadcastQueue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *BroadcastQueue) worker(ctx context.Context) {
	defer q.wg.Done()

	for sub := range q.ch {
		start := time.Now()
		err := q.broadcaster.Broadcast(ctx, sub)
		q.metrics.RecordBroadcast(time.Since(start), err)
		if err != nil {
			log.Warn("Broadcast failed", "id", sub.ID, "ballot", sub.BallotID, "err", err)
		}
	}
}
