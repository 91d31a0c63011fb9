package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

const chapterColumns = 5

// MaxBatchRows is the largest batch one INSERT can carry within the 65535
// bind parameter limit of the Postgres protocol.
const MaxBatchRows = 65535 / chapterColumns

type ChapterRepository struct {
	db *sql.DB
}

func NewChapterRepository(db *sql.DB) *ChapterRepository {
	return &ChapterRepository{db: db}
}

// CreateBatch writes all drafts with one multi-row INSERT inside a transaction.
// Either the whole batch is persisted or none of it.
func (r *ChapterRepository) CreateBatch(ctx context.Context, documentID string, drafts []domain.ChapterDraft) ([]domain.Chapter, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	if len(drafts) > MaxBatchRows {
		return nil, fmt.Errorf("chapter batch of %d rows exceeds %d", len(drafts), MaxBatchRows)
	}

	values := make([]string, 0, len(drafts))
	args := make([]any, 0, len(drafts)*chapterColumns)
	for i, d := range drafts {
		base := i * chapterColumns
		values = append(values, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5))
		args = append(args, documentID, d.Ordinal, d.Title, d.Body, d.WordCount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin chapter batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
INSERT INTO chapters (document_id, ordinal, title, body, word_count)
VALUES `+strings.Join(values, ",")+`
RETURNING id::text, ordinal, created_at
`, args...)
	if err != nil {
		return nil, fmt.Errorf("insert chapter batch: %w", err)
	}

	type generated struct {
		id        string
		createdAt time.Time
	}
	byOrdinal := make(map[int]generated, len(drafts))
	for rows.Next() {
		var (
			g       generated
			ordinal int
		)
		if err := rows.Scan(&g.id, &ordinal, &g.createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan chapter id: %w", err)
		}
		byOrdinal[ordinal] = g
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate chapter ids: %w", err)
	}
	_ = rows.Close()

	out := make([]domain.Chapter, 0, len(drafts))
	for _, d := range drafts {
		g, ok := byOrdinal[d.Ordinal]
		if !ok {
			return nil, fmt.Errorf("chapter batch: missing generated id for ordinal %d", d.Ordinal)
		}
		out = append(out, domain.Chapter{
			ID:         g.id,
			DocumentID: documentID,
			Ordinal:    d.Ordinal,
			Title:      d.Title,
			Body:       d.Body,
			WordCount:  d.WordCount,
			CreatedAt:  g.createdAt,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit chapter batch: %w", err)
	}
	return out, nil
}

func (r *ChapterRepository) ListSummaries(ctx context.Context, documentID string) ([]domain.ChapterSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id::text, title, ordinal, word_count
FROM chapters
WHERE document_id = $1
ORDER BY ordinal ASC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChapterSummary, 0)
	for rows.Next() {
		var s domain.ChapterSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Ordinal, &s.WordCount); err != nil {
			return nil, fmt.Errorf("scan chapter summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", err)
	}
	return out, nil
}

func (r *ChapterRepository) GetContent(ctx context.Context, chapterID string) (*domain.ChapterContent, error) {
	if _, err := uuid.Parse(chapterID); err != nil {
		return nil, domain.WrapError(domain.ErrChapterNotFound, "get chapter", fmt.Errorf("id=%s", chapterID))
	}

	var content domain.ChapterContent
	err := r.db.QueryRowContext(ctx, `
SELECT id::text, document_id, ordinal, title, body, word_count, created_at
FROM chapters
WHERE id = $1
`, chapterID).Scan(
		&content.ID,
		&content.DocumentID,
		&content.Ordinal,
		&content.Title,
		&content.Body,
		&content.WordCount,
		&content.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChapterNotFound, "get chapter", fmt.Errorf("id=%s", chapterID))
		}
		return nil, fmt.Errorf("scan chapter: %w", err)
	}

	var prev, next sql.NullString
	err = r.db.QueryRowContext(ctx, `
SELECT
	(SELECT id::text FROM chapters WHERE document_id = $1 AND ordinal < $2 ORDER BY ordinal DESC LIMIT 1),
	(SELECT id::text FROM chapters WHERE document_id = $1 AND ordinal > $2 ORDER BY ordinal ASC LIMIT 1)
`, content.DocumentID, content.Ordinal).Scan(&prev, &next)
	if err != nil {
		return nil, fmt.Errorf("find neighbour chapters: %w", err)
	}
	if prev.Valid {
		content.PreviousID = &prev.String
	}
	if next.Valid {
		content.NextID = &next.String
	}
	return &content, nil
}
