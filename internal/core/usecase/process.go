package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/core/ports"
)

const DefaultBatchSize = 10

type RunnerOptions struct {
	BatchSize int
	// JobTimeout bounds a single job; zero means no bound.
	JobTimeout time.Duration
}

// IngestionRunner drives one document from PENDING to a terminal status.
type IngestionRunner struct {
	documents ports.DocumentRepository
	chapters  ports.ChapterRepository
	opener    ports.LineSourceOpener
	segmenter ports.ChapterSegmenter
	storage   ports.ObjectStorage
	notifier  ports.ProgressNotifier
	observer  ports.JobObserver
	opts      RunnerOptions
}

func NewIngestionRunner(
	documents ports.DocumentRepository,
	chapters ports.ChapterRepository,
	opener ports.LineSourceOpener,
	segmenter ports.ChapterSegmenter,
	storage ports.ObjectStorage,
	notifier ports.ProgressNotifier,
	observer ports.JobObserver,
	opts RunnerOptions,
) *IngestionRunner {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &IngestionRunner{
		documents: documents,
		chapters:  chapters,
		opener:    opener,
		segmenter: segmenter,
		storage:   storage,
		notifier:  notifier,
		observer:  observer,
		opts:      opts,
	}
}

// Process runs the job to completion. Once started it is not cancelled by
// the caller's context; only JobTimeout can cut it short. The returned error
// is the pipeline failure already recorded as FAILED.
func (r *IngestionRunner) Process(ctx context.Context, job domain.IngestionJob) error {
	ctx = context.WithoutCancel(ctx)
	if r.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.JobTimeout)
		defer cancel()
	}
	logger := slog.With("document_id", job.DocumentID, "session_id", job.SessionID)

	if err := r.documents.UpdateStatus(ctx, job.DocumentID, domain.StatusProcessing, ""); err != nil {
		switch {
		case domain.IsKind(err, domain.ErrInvalidTransition):
			logger.Warn("ingestion_skipped", "reason", "document is not pending", "error", err)
			return nil
		case domain.IsKind(err, domain.ErrDocumentNotFound):
			logger.Warn("ingestion_skipped", "reason", "document not found")
			r.removeSource(ctx, job)
			return nil
		}
		r.observer.JobStarted(job)
		return r.fail(ctx, logger, job, 0, fmt.Errorf("set status=processing: %w", err))
	}

	r.observer.JobStarted(job)
	logger.Info("ingestion_started", "file_path", job.FilePath)
	r.notifier.Notify(job.SessionID, domain.NewProgressEvent(domain.ProcessingStarted{DocumentID: job.DocumentID}))

	written, err := r.ingest(ctx, logger, job)
	if err != nil {
		return r.fail(ctx, logger, job, written, err)
	}

	if err := r.documents.UpdateStatus(ctx, job.DocumentID, domain.StatusCompleted, ""); err != nil {
		return r.fail(ctx, logger, job, written, fmt.Errorf("set status=completed: %w", err))
	}
	r.notifier.Notify(job.SessionID, domain.NewProgressEvent(domain.ProcessingCompleted{
		DocumentID:   job.DocumentID,
		ChapterCount: written,
	}))
	r.removeSource(ctx, job)
	r.observer.JobFinished(job, domain.StatusCompleted, written)
	logger.Info("ingestion_completed", "chapters", written)
	return nil
}

func (r *IngestionRunner) ingest(ctx context.Context, logger *slog.Logger, job domain.IngestionJob) (int, error) {
	src, err := r.opener.Open(ctx, job.FilePath)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("line_source_close_failed", "error", err)
		}
	}()

	writer := newBatchWriter(r.chapters, r.observer, job.DocumentID, r.opts.BatchSize, func(batch []domain.Chapter) {
		summaries := make([]domain.ChapterSummary, 0, len(batch))
		for _, ch := range batch {
			summaries = append(summaries, ch.Summary())
		}
		logger.Info("chapter_batch_written",
			"batch", len(batch),
			"ordinal_from", batch[0].Ordinal,
			"ordinal_to", batch[len(batch)-1].Ordinal,
		)
		r.notifier.Notify(job.SessionID, domain.NewProgressEvent(domain.ChapterBatchReady{
			DocumentID: job.DocumentID,
			Chapters:   summaries,
		}))
	})

	for draft := range r.segmenter.Chapters(src.Lines()) {
		// A read failure ends the line stream early; the trailing draft is then
		// incomplete and must not be written.
		if err := src.Err(); err != nil {
			return writer.Written(), err
		}
		if err := ctx.Err(); err != nil {
			return writer.Written(), fmt.Errorf("ingest aborted: %w", err)
		}
		if err := writer.Add(ctx, draft); err != nil {
			return writer.Written(), err
		}
	}
	if err := src.Err(); err != nil {
		return writer.Written(), err
	}
	if err := writer.Flush(ctx); err != nil {
		return writer.Written(), err
	}
	return writer.Written(), nil
}

// fail records FAILED on a best-effort basis, then notifies and cleans up.
func (r *IngestionRunner) fail(ctx context.Context, logger *slog.Logger, job domain.IngestionJob, written int, cause error) error {
	logger.Error("ingestion_failed", "chapters_written", written, "error", cause)

	statusCtx := context.WithoutCancel(ctx)
	if err := r.documents.UpdateStatus(statusCtx, job.DocumentID, domain.StatusFailed, cause.Error()); err != nil {
		logger.Error("mark_failed_error", "error", err)
	}
	r.notifier.Notify(job.SessionID, domain.NewProgressEvent(domain.ProcessingFailed{
		DocumentID: job.DocumentID,
		Error:      cause.Error(),
	}))
	r.removeSource(statusCtx, job)
	r.observer.JobFinished(job, domain.StatusFailed, written)
	return cause
}

func (r *IngestionRunner) removeSource(ctx context.Context, job domain.IngestionJob) {
	if job.FilePath == "" {
		return
	}
	if err := r.storage.Remove(ctx, job.FilePath); err != nil {
		slog.Warn("source_cleanup_failed", "document_id", job.DocumentID, "path", job.FilePath, "error", err)
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, domain.ProgressEvent) {}

type nopObserver struct{}

func (nopObserver) JobStarted(domain.IngestionJob)                              {}
func (nopObserver) JobFinished(domain.IngestionJob, domain.DocumentStatus, int) {}
func (nopObserver) BatchFlushed(int, error)                                     {}
