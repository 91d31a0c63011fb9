package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.JobQueue
	accepts func(filename string) bool
}

// NewIngestDocumentUseCase builds the upload intake. accepts filters filenames
// by extension; nil accepts everything.
func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.JobQueue,
	accepts func(filename string) bool,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		accepts: accepts,
	}
}

// Upload stores the file, records a PENDING document and enqueues its job. It
// returns before ingestion begins.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.Document, error) {
	if req.Body == nil || strings.TrimSpace(req.Filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file is required"))
	}
	if uc.accepts != nil && !uc.accepts(req.Filename) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"upload document",
			fmt.Errorf("unsupported file type %q", filepath.Ext(req.Filename)),
		)
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(req.Filename))
	now := time.Now().UTC()

	path, err := uc.storage.Save(ctx, storageKey, req.Body)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	doc := &domain.Document{
		ID:         id,
		Title:      documentTitle(req.Title, req.Filename),
		Filename:   req.Filename,
		MimeType:   req.MimeType,
		SourcePath: path,
		OwnerID:    req.OwnerID,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discard(ctx, path)
		return nil, fmt.Errorf("create document: %w", err)
	}

	job := domain.IngestionJob{
		DocumentID: doc.ID,
		FilePath:   path,
		SessionID:  req.SessionID,
		EnqueuedAt: now,
	}
	if err := uc.queue.Enqueue(ctx, job); err != nil {
		// A document without a queued job must not stay PENDING.
		if failErr := uc.repo.UpdateStatus(context.WithoutCancel(ctx), doc.ID, domain.StatusFailed, "enqueue failed: "+err.Error()); failErr != nil {
			slog.Error("mark_failed_after_enqueue_error", "document_id", doc.ID, "error", failErr)
		}
		uc.discard(ctx, path)
		return nil, fmt.Errorf("enqueue ingestion job: %w", err)
	}

	slog.Info("document_accepted",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"owner_id", doc.OwnerID,
		"session_id", req.SessionID,
	)
	return doc, nil
}

func (uc *IngestDocumentUseCase) discard(ctx context.Context, path string) {
	if err := uc.storage.Remove(context.WithoutCancel(ctx), path); err != nil {
		slog.Warn("upload_cleanup_failed", "path", path, "error", err)
	}
}

func documentTitle(title, filename string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	base := filepath.Base(filename)
	if t := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base))); t != "" {
		return t
	}
	return base
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.txt"
	}
	return base
}
