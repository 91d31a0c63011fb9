package domain

import "time"

// IngestionJob is the message handed from intake to a worker.
type IngestionJob struct {
	DocumentID string    `json:"document_id"`
	FilePath   string    `json:"file_path"`
	SessionID  string    `json:"session_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
