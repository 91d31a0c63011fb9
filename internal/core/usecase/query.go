package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/core/ports"
)

// DocumentQueryUseCase is the read side for documents and chapters.
type DocumentQueryUseCase struct {
	documents ports.DocumentRepository
	chapters  ports.ChapterRepository
}

func NewDocumentQueryUseCase(documents ports.DocumentRepository, chapters ports.ChapterRepository) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{documents: documents, chapters: chapters}
}

func (uc *DocumentQueryUseCase) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("id is required"))
	}
	return uc.documents.GetByID(ctx, id)
}

func (uc *DocumentQueryUseCase) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	docs, err := uc.documents.ListByOwner(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// ListChapters returns chapter summaries in ordinal order. An unknown document
// is reported as not found rather than as an empty list.
func (uc *DocumentQueryUseCase) ListChapters(ctx context.Context, documentID string) ([]domain.ChapterSummary, error) {
	if _, err := uc.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	chapters, err := uc.chapters.ListSummaries(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return chapters, nil
}

func (uc *DocumentQueryUseCase) GetChapter(ctx context.Context, chapterID string) (*domain.ChapterContent, error) {
	if strings.TrimSpace(chapterID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get chapter", errors.New("id is required"))
	}
	return uc.chapters.GetContent(ctx, chapterID)
}
