package ports

import (
	"context"
	"io"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

// UploadRequest carries an accepted upload from the front door.
type UploadRequest struct {
	Filename  string
	MimeType  string
	Title     string
	OwnerID   string
	SessionID string
	Body      io.Reader
}

// DocumentIngestor is the inbound contract for upload intake.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.Document, error)
}

// DocumentReader is the inbound read model for documents and their chapters.
type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error)
	ListChapters(ctx context.Context, documentID string) ([]domain.ChapterSummary, error)
	GetChapter(ctx context.Context, chapterID string) (*domain.ChapterContent, error)
}

// JobProcessor is the inbound contract for asynchronous ingestion.
type JobProcessor interface {
	Process(ctx context.Context, job domain.IngestionJob) error
}
