package domain

import "time"

// MaxChapterTitleRunes mirrors the width of the chapters.title column.
const MaxChapterTitleRunes = 255

// ChapterDraft is a segmented chapter that has not been persisted yet.
type ChapterDraft struct {
	Ordinal   int
	Title     string
	Body      string
	WordCount int
}

type Chapter struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	WordCount  int       `json:"word_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChapterSummary is the body-less projection pushed to clients and used in listings.
type ChapterSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Ordinal   int    `json:"ordinal"`
	WordCount int    `json:"word_count"`
}

func (c Chapter) Summary() ChapterSummary {
	return ChapterSummary{
		ID:        c.ID,
		Title:     c.Title,
		Ordinal:   c.Ordinal,
		WordCount: c.WordCount,
	}
}

// ChapterContent is a full chapter plus its neighbours for page-turning.
type ChapterContent struct {
	Chapter
	PreviousID *string `json:"previous_id"`
	NextID     *string `json:"next_id"`
}
