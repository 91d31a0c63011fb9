package ports

import (
	"context"
	"io"
	"iter"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
}

// ChapterRepository persists chapters in atomic batches.
type ChapterRepository interface {
	// CreateBatch inserts all drafts in one transaction and returns them in input order.
	CreateBatch(ctx context.Context, documentID string, drafts []domain.ChapterDraft) ([]domain.Chapter, error)
	ListSummaries(ctx context.Context, documentID string) ([]domain.ChapterSummary, error)
	GetContent(ctx context.Context, chapterID string) (*domain.ChapterContent, error)
}

// ObjectStorage stores uploaded source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (string, error)
	Remove(ctx context.Context, path string) error
}

// JobQueue hands ingestion jobs from intake to workers.
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.IngestionJob) error
	Consume(ctx context.Context, handler func(context.Context, domain.IngestionJob) error) error
}

// EncodingDetector guesses the character encoding of a leading byte sample.
type EncodingDetector interface {
	Detect(sample []byte) domain.EncodingGuess
}

// LineSource is a decoded, file-ordered line stream. Err reports the first
// read or decode failure once Lines stops early.
type LineSource interface {
	Lines() iter.Seq[string]
	Err() error
	Close() error
}

// LineSourceOpener opens a source file as a line stream.
type LineSourceOpener interface {
	Open(ctx context.Context, path string) (LineSource, error)
}

// ChapterSegmenter groups a line stream into ordered chapter drafts.
type ChapterSegmenter interface {
	Chapters(lines iter.Seq[string]) iter.Seq[domain.ChapterDraft]
}

// ProgressNotifier delivers progress events to a live session. It never blocks
// and never fails the caller.
type ProgressNotifier interface {
	Notify(sessionID string, event domain.ProgressEvent)
}

// JobObserver receives ingestion lifecycle measurements.
type JobObserver interface {
	JobStarted(job domain.IngestionJob)
	JobFinished(job domain.IngestionJob, status domain.DocumentStatus, chapters int)
	BatchFlushed(size int, err error)
}
