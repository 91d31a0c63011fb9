package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"sync"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/core/ports"
)

// documentRepoFake enforces the status state machine like the SQL guard does.
type documentRepoFake struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	history   map[string][]domain.DocumentStatus
	createErr error
	statusErr map[domain.DocumentStatus]error
}

func newDocumentRepoFake() *documentRepoFake {
	return &documentRepoFake{
		docs:      map[string]*domain.Document{},
		history:   map[string][]domain.DocumentStatus{},
		statusErr: map[domain.DocumentStatus]error{},
	}
}

func (f *documentRepoFake) seed(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id] = &domain.Document{ID: id, Status: domain.StatusPending}
	f.history[id] = []domain.DocumentStatus{domain.StatusPending}
}

func (f *documentRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.docs[doc.ID] = &cp
	f.history[doc.ID] = append(f.history[doc.ID], doc.Status)
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	cp := *doc
	return &cp, nil
}

func (f *documentRepoFake) ListByOwner(_ context.Context, ownerID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Document{}
	for _, d := range f.docs {
		if ownerID == "" || d.OwnerID == ownerID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *documentRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	if err := f.statusErr[status]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", fmt.Errorf("id=%s", id))
	}
	if !doc.Status.CanTransition(status) {
		return domain.WrapError(domain.ErrInvalidTransition, "update status", fmt.Errorf("%s -> %s", doc.Status, status))
	}
	doc.Status = status
	doc.Error = errMessage
	f.history[id] = append(f.history[id], status)
	return nil
}

func (f *documentRepoFake) statuses(id string) []domain.DocumentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.history[id])
}

type chapterRepoFake struct {
	mu         sync.Mutex
	chapters   map[string][]domain.Chapter
	calls      int
	failOnCall int
	failErr    error
}

func newChapterRepoFake() *chapterRepoFake {
	return &chapterRepoFake{chapters: map[string][]domain.Chapter{}}
}

func (f *chapterRepoFake) CreateBatch(_ context.Context, documentID string, drafts []domain.ChapterDraft) ([]domain.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOnCall > 0 && f.calls == f.failOnCall {
		return nil, f.failErr
	}
	out := make([]domain.Chapter, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, domain.Chapter{
			ID:         fmt.Sprintf("%s-ch-%d", documentID, d.Ordinal),
			DocumentID: documentID,
			Ordinal:    d.Ordinal,
			Title:      d.Title,
			Body:       d.Body,
			WordCount:  d.WordCount,
		})
	}
	f.chapters[documentID] = append(f.chapters[documentID], out...)
	return out, nil
}

func (f *chapterRepoFake) ListSummaries(_ context.Context, documentID string) ([]domain.ChapterSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ChapterSummary{}
	for _, ch := range f.chapters[documentID] {
		out = append(out, ch.Summary())
	}
	return out, nil
}

func (f *chapterRepoFake) GetContent(_ context.Context, chapterID string) (*domain.ChapterContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, list := range f.chapters {
		for i, ch := range list {
			if ch.ID != chapterID {
				continue
			}
			content := &domain.ChapterContent{Chapter: ch}
			if i > 0 {
				content.PreviousID = &list[i-1].ID
			}
			if i+1 < len(list) {
				content.NextID = &list[i+1].ID
			}
			return content, nil
		}
	}
	return nil, domain.WrapError(domain.ErrChapterNotFound, "get chapter", errors.New(chapterID))
}

func (f *chapterRepoFake) ordinals(documentID string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []int{}
	for _, ch := range f.chapters[documentID] {
		out = append(out, ch.Ordinal)
	}
	return out
}

type storageFake struct {
	mu      sync.Mutex
	saved   map[string]string
	removed []string
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{saved: map[string]string{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "/uploads/" + key
	f.saved[path] = string(raw)
	return path, nil
}

func (f *storageFake) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func (f *storageFake) removedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.removed)
}

type queueFake struct {
	mu   sync.Mutex
	jobs []domain.IngestionJob
	err  error
}

func (f *queueFake) Enqueue(_ context.Context, job domain.IngestionJob) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *queueFake) Consume(context.Context, func(context.Context, domain.IngestionJob) error) error {
	return errors.New("not implemented")
}

// lineSourceFake yields fixed lines and may fail after a prefix of them.
type lineSourceFake struct {
	lines   []string
	failAt  int
	failErr error
	err     error
	closed  bool
}

func (s *lineSourceFake) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for i, line := range s.lines {
			if s.failErr != nil && i == s.failAt {
				s.err = s.failErr
				return
			}
			if !yield(line) {
				return
			}
		}
	}
}

func (s *lineSourceFake) Err() error   { return s.err }
func (s *lineSourceFake) Close() error { s.closed = true; return nil }

type openerFake struct {
	sources map[string]*lineSourceFake
}

func (o *openerFake) Open(_ context.Context, path string) (ports.LineSource, error) {
	src, ok := o.sources[path]
	if !ok {
		return nil, domain.WrapError(domain.ErrDecode, "open line source", fmt.Errorf("%s: no such file", path))
	}
	return src, nil
}

type recordedEvent struct {
	sessionID string
	event     domain.ProgressEvent
}

type notifierFake struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *notifierFake) Notify(sessionID string, event domain.ProgressEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{sessionID: sessionID, event: event})
}

func (n *notifierFake) forSession(sessionID string) []domain.ProgressEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := []domain.ProgressEvent{}
	for _, e := range n.events {
		if e.sessionID == sessionID {
			out = append(out, e.event)
		}
	}
	return out
}

type observerFake struct {
	mu       sync.Mutex
	started  int
	finished map[domain.DocumentStatus]int
	flushes  int
	flushErr int
}

func newObserverFake() *observerFake {
	return &observerFake{finished: map[domain.DocumentStatus]int{}}
}

func (o *observerFake) JobStarted(domain.IngestionJob) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *observerFake) JobFinished(_ domain.IngestionJob, status domain.DocumentStatus, _ int) {
	o.mu.Lock()
	o.finished[status]++
	o.mu.Unlock()
}

func (o *observerFake) BatchFlushed(_ int, err error) {
	o.mu.Lock()
	o.flushes++
	if err != nil {
		o.flushErr++
	}
	o.mu.Unlock()
}
