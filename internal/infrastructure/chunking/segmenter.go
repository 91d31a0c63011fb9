package chunking

import (
	"iter"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

// DefaultHeadingMaxRunes is the longest line still considered a heading.
const DefaultHeadingMaxRunes = 100

// headingPattern matches CJK/arabic numbered chapter markers ("第1章", "第 十二 章")
// and Latin "Chapter N" anywhere in the line.
var headingPattern = regexp.MustCompile(`第\s*[0-9０-９零〇一二两三四五六七八九十百千万]+\s*章|Chapter\s+\d+`)

// Segmenter groups lines into chapters. A line that is at most HeadingMaxRunes
// long and matches the heading pattern opens a new chapter; lines before the
// first heading are dropped.
type Segmenter struct {
	HeadingMaxRunes int
}

func NewSegmenter(headingMaxRunes int) *Segmenter {
	if headingMaxRunes <= 0 {
		headingMaxRunes = DefaultHeadingMaxRunes
	}
	return &Segmenter{HeadingMaxRunes: headingMaxRunes}
}

// State is the fold accumulator. The zero value means no heading seen yet.
type State struct {
	open      bool
	ordinal   int
	title     string
	body      []byte
	wordCount int
}

// IsHeading reports whether line starts a new chapter.
func (s *Segmenter) IsHeading(line string) bool {
	if utf8.RuneCountInString(line) > s.HeadingMaxRunes {
		return false
	}
	return headingPattern.MatchString(line)
}

// Step advances the fold by one line and returns the chapter it closed, if any.
func (s *Segmenter) Step(state State, line string) (State, *domain.ChapterDraft) {
	if s.IsHeading(line) {
		var emitted *domain.ChapterDraft
		if state.open {
			emitted = state.draft()
		}
		return State{
			open:    true,
			ordinal: state.ordinal + 1,
			title:   truncateRunes(strings.TrimSpace(line), domain.MaxChapterTitleRunes),
		}, emitted
	}

	if !state.open {
		return state, nil
	}
	state.body = append(state.body, line...)
	state.body = append(state.body, '\n')
	state.wordCount += utf8.RuneCountInString(line)
	return state, nil
}

// Finish flushes the trailing chapter at end of input.
func (s *Segmenter) Finish(state State) *domain.ChapterDraft {
	if !state.open {
		return nil
	}
	return state.draft()
}

// Chapters lazily segments lines. The sequence is single-use because lines is.
func (s *Segmenter) Chapters(lines iter.Seq[string]) iter.Seq[domain.ChapterDraft] {
	return func(yield func(domain.ChapterDraft) bool) {
		var state State
		var emitted *domain.ChapterDraft
		for line := range lines {
			state, emitted = s.Step(state, line)
			if emitted != nil && !yield(*emitted) {
				return
			}
		}
		if last := s.Finish(state); last != nil {
			yield(*last)
		}
	}
}

func (st State) draft() *domain.ChapterDraft {
	return &domain.ChapterDraft{
		Ordinal:   st.ordinal,
		Title:     st.title,
		Body:      string(st.body),
		WordCount: st.wordCount,
	}
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
