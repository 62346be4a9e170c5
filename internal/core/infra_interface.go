package core

import (
	"context"
	"io"

	"github.com/markdave123-py/Studyhall/internal/models"
)

// DocumentStore persists document rows and their processing status.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByClass(ctx context.Context, userID, classID string) ([]models.Document, error)

	// ClaimDocument atomically moves a document into processing. It reports
	// false when the document is already processing or does not exist.
	ClaimDocument(ctx context.Context, id string) (bool, error)
	MarkDocumentFailed(ctx context.Context, id string, reason models.FailureReason) error

	// DeleteDocument removes the document row; its chunks go with it.
	DeleteDocument(ctx context.Context, id string) error
}

// ChunkQuery scopes a similarity search. Empty ClassID or UserID means no
// filter on that column.
type ChunkQuery struct {
	ClassID string
	UserID  string
	Vector  []float32
	Limit   int
}

// ChunkStore persists embedded chunks for similarity search.
type ChunkStore interface {
	// CommitDocumentChunks replaces every chunk of the document and marks it
	// completed in one transaction. The commit is refused unless the document
	// is still processing.
	CommitDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	SearchChunks(ctx context.Context, q ChunkQuery) ([]models.DocumentChunk, error)
}

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	DocumentStore
	ChunkStore
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}
