// Package memory is an in-process job queue for single-binary deployments and tests.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

var ErrClosed = errors.New("memory queue closed")

type Queue struct {
	jobs        chan domain.IngestionJob
	concurrency int

	closeOnce sync.Once
	closed    chan struct{}
}

func New(capacity, concurrency int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Queue{
		jobs:        make(chan domain.IngestionJob, capacity),
		concurrency: concurrency,
		closed:      make(chan struct{}),
	}
}

// Enqueue blocks while the buffer is full.
func (q *Queue) Enqueue(ctx context.Context, job domain.IngestionJob) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers every job to exactly one of Concurrency workers until ctx
// is done or the queue is closed, then waits for in-flight handlers.
func (q *Queue) Consume(ctx context.Context, handler func(context.Context, domain.IngestionJob) error) error {
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.closed:
					return
				case job := <-q.jobs:
					if err := handler(ctx, job); err != nil {
						slog.Error("ingestion_job_failed", "document_id", job.DocumentID, "error", err)
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
