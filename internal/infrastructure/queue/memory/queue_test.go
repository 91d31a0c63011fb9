package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

func TestConsumeDeliversEachJobOnce(t *testing.T) {
	q := New(16, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	wg.Add(10)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(_ context.Context, job domain.IngestionJob) error {
			mu.Lock()
			seen[job.DocumentID]++
			mu.Unlock()
			wg.Done()
			return nil
		})
	}()

	for i := 0; i < 10; i++ {
		if err := q.Enqueue(ctx, domain.IngestionJob{DocumentID: fmt.Sprintf("doc-%d", i)}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	wg.Wait()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if len(seen) != 10 {
		t.Fatalf("expected 10 distinct jobs, got %d", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("job %s delivered %d times", id, n)
		}
	}
}

func TestEnqueueHonoursContextWhenFull(t *testing.T) {
	q := New(1, 1)
	if err := q.Enqueue(context.Background(), domain.IngestionJob{DocumentID: "a"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, domain.IngestionJob{DocumentID: "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New(1, 1)
	q.Close()
	q.Close()
	if err := q.Enqueue(context.Background(), domain.IngestionJob{DocumentID: "a"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := q.Consume(context.Background(), func(context.Context, domain.IngestionJob) error { return nil }); err != nil {
		t.Fatalf("Consume() after close error = %v", err)
	}
}
