package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/core/ports"
)

// batchWriter buffers drafts and persists each full buffer as one atomic
// batch. A failed flush is returned as is and never retried.
type batchWriter struct {
	repo       ports.ChapterRepository
	observer   ports.JobObserver
	documentID string
	size       int
	buf        []domain.ChapterDraft
	written    int
	onFlush    func([]domain.Chapter)
}

func newBatchWriter(
	repo ports.ChapterRepository,
	observer ports.JobObserver,
	documentID string,
	size int,
	onFlush func([]domain.Chapter),
) *batchWriter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &batchWriter{
		repo:       repo,
		observer:   observer,
		documentID: documentID,
		size:       size,
		buf:        make([]domain.ChapterDraft, 0, size),
		onFlush:    onFlush,
	}
}

func (w *batchWriter) Add(ctx context.Context, draft domain.ChapterDraft) error {
	w.buf = append(w.buf, draft)
	if len(w.buf) >= w.size {
		return w.Flush(ctx)
	}
	return nil
}

func (w *batchWriter) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	batch := w.buf
	w.buf = make([]domain.ChapterDraft, 0, w.size)

	chapters, err := w.repo.CreateBatch(ctx, w.documentID, batch)
	w.observer.BatchFlushed(len(batch), err)
	if err != nil {
		return fmt.Errorf(
			"write chapters %d-%d: %w",
			batch[0].Ordinal, batch[len(batch)-1].Ordinal, err,
		)
	}
	w.written += len(chapters)
	if w.onFlush != nil {
		w.onFlush(chapters)
	}
	return nil
}

// Written is the number of chapters persisted so far.
func (w *batchWriter) Written() int {
	return w.written
}
