package models

import (
	"time"
)

// DocumentStatus is the lifecycle stage of an uploaded document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// IsTerminal reports whether no further transition happens without a new ingest call.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FailureReason is the machine readable cause stored on a failed document.
type FailureReason string

const (
	ReasonNone                 FailureReason = ""
	ReasonStorage              FailureReason = "storage_error"
	ReasonExtraction           FailureReason = "extraction_error"
	ReasonEmptyContent         FailureReason = "empty_content"
	ReasonUnsupportedMediaType FailureReason = "unsupported_media_type"
	ReasonEmbedding            FailureReason = "embedding_error"
	ReasonPersistence          FailureReason = "persistence_error"
	ReasonTimeout              FailureReason = "timeout"
	ReasonCanceled             FailureReason = "canceled"
)

// Document represents a class material uploaded by a student.
type Document struct {
	ID            string         `db:"id" json:"id"`
	UserID        string         `db:"user_id" json:"user_id"`
	ClassID       string         `db:"class_id" json:"class_id"`
	FileName      string         `db:"file_name" json:"file_name"`
	StoragePath   string         `db:"storage_path" json:"storage_path"` // object key inside the bucket
	ContentType   string         `db:"content_type" json:"content_type"`
	FileSize      int64          `db:"file_size" json:"file_size"`
	Status        DocumentStatus `db:"status" json:"status"`
	FailureReason FailureReason  `db:"failure_reason" json:"failure_reason,omitempty"`
	ChunkCount    int            `db:"chunk_count" json:"chunk_count"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one embedded text segment of a document.
// ClassID and UserID are copied from the owning document so similarity
// search can be scoped without a join.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Content    string    `db:"content" json:"content"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	CreatedAt  time.Time `db:"created_at" json:"created_at"`

	// Similarity is only set on search results.
	Similarity float64 `db:"-" json:"similarity,omitempty"`
}
