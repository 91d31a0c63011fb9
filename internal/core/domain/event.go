package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind values are the numeric type codes clients switch on.
type EventKind int

const (
	EventProcessingStarted EventKind = 19
	EventChapterBatchReady EventKind = 20
	EventCompleted         EventKind = 21
	EventFailed            EventKind = 22
)

func (k EventKind) String() string {
	switch k {
	case EventProcessingStarted:
		return "processing-started"
	case EventChapterBatchReady:
		return "chapter-batch-ready"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the event closes a document's event stream.
func (k EventKind) IsTerminal() bool {
	return k == EventCompleted || k == EventFailed
}

// EventPayload is the closed set of progress payloads. Each payload type
// determines the kind of the event carrying it.
type EventPayload interface {
	Kind() EventKind
}

type ProcessingStarted struct {
	DocumentID string `json:"document_id"`
}

type ChapterBatchReady struct {
	DocumentID string           `json:"document_id"`
	Chapters   []ChapterSummary `json:"chapters"`
}

type ProcessingCompleted struct {
	DocumentID   string `json:"document_id"`
	ChapterCount int    `json:"chapter_count"`
}

type ProcessingFailed struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

func (ProcessingStarted) Kind() EventKind   { return EventProcessingStarted }
func (ChapterBatchReady) Kind() EventKind   { return EventChapterBatchReady }
func (ProcessingCompleted) Kind() EventKind { return EventCompleted }
func (ProcessingFailed) Kind() EventKind    { return EventFailed }

type ProgressEvent struct {
	ID        string
	Timestamp time.Time
	Payload   EventPayload
}

func NewProgressEvent(payload EventPayload) ProgressEvent {
	return ProgressEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

func (e ProgressEvent) Kind() EventKind {
	if e.Payload == nil {
		return 0
	}
	return e.Payload.Kind()
}

// Message is a human-readable line shown next to the event on the client.
func (e ProgressEvent) Message() string {
	switch p := e.Payload.(type) {
	case ProcessingStarted:
		return "processing started"
	case ChapterBatchReady:
		return "chapters ready"
	case ProcessingCompleted:
		return "processing completed"
	case ProcessingFailed:
		if p.Error != "" {
			return "processing failed: " + p.Error
		}
		return "processing failed"
	default:
		return ""
	}
}
