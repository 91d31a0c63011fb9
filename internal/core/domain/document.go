package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "PENDING"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusCompleted  DocumentStatus = "COMPLETED"
	StatusFailed     DocumentStatus = "FAILED"
)

// IsTerminal reports whether no further transition may leave the status.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition enforces PENDING -> PROCESSING -> {COMPLETED | FAILED}.
// PENDING -> FAILED is allowed for jobs that never reached a worker.
func (s DocumentStatus) CanTransition(to DocumentStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// PreviousStatuses lists the statuses a document may hold right before entering to.
func PreviousStatuses(to DocumentStatus) []DocumentStatus {
	out := make([]DocumentStatus, 0, 2)
	for _, from := range []DocumentStatus{StatusPending, StatusProcessing} {
		if from.CanTransition(to) {
			out = append(out, from)
		}
	}
	return out
}

type Document struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Filename   string         `json:"filename"`
	MimeType   string         `json:"mime_type"`
	SourcePath string         `json:"-"`
	OwnerID    string         `json:"owner_id,omitempty"`
	Status     DocumentStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
