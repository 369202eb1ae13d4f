package ingest

import (
	"context"

	"github.com/st243452-ship-it/smart-analyst-saas/pkg/queue"
)

// Dispatcher hands an upload to the ingestion pipeline. The document stays
// in its queued state until a worker picks it up.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID, documentID string) error
}

// QueueDispatcher enqueues jobs on the Redis stream for the worker pool.
type QueueDispatcher struct {
	queue *queue.RedisJobQueue
}

func NewQueueDispatcher(q *queue.RedisJobQueue) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, sessionID, documentID string) error {
	_, err := d.queue.Enqueue(ctx, documentID, sessionID)
	return err
}

// InlineDispatcher processes uploads on a local goroutine. Used when no
// Redis queue is configured.
type InlineDispatcher struct {
	worker *Worker
}

func NewInlineDispatcher(w *Worker) *InlineDispatcher {
	return &InlineDispatcher{worker: w}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, sessionID, documentID string) error {
	go func() {
		// Detach from the request context; ingestion outlives the upload
		// request.
		_ = d.worker.Process(context.Background(), sessionID, documentID)
	}()
	return nil
}
