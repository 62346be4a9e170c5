package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/Studyhall/internal/core"
	"github.com/markdave123-py/Studyhall/internal/core/ingestion_engine"
	"github.com/markdave123-py/Studyhall/internal/logger"
	"github.com/markdave123-py/Studyhall/internal/models"
)

const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
)

// ErrInvalidInput marks requests rejected before touching any store.
var ErrInvalidInput = errors.New("invalid input")

type DocumentService struct {
	db        core.DbClient
	storage   core.ObjectClient
	embedder  core.QueryEmbedder
	ingestor  ingestion_engine.Ingestor
	scheduler ingestion_engine.Scheduler
	bucket    string
}

func NewDocumentService(
	db core.DbClient,
	storage core.ObjectClient,
	embedder core.QueryEmbedder,
	ingestor ingestion_engine.Ingestor,
	scheduler ingestion_engine.Scheduler,
	bucket string,
) *DocumentService {
	return &DocumentService{
		db:        db,
		storage:   storage,
		embedder:  embedder,
		ingestor:  ingestor,
		scheduler: scheduler,
		bucket:    bucket,
	}
}

type UploadInput struct {
	UserID      string
	ClassID     string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Upload stores the file, records a pending document and schedules its
// ingestion. A scheduling failure is logged, not returned: the document is
// saved and can still be processed on demand.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*models.Document, error) {
	if in.UserID == "" || strings.TrimSpace(in.ClassID) == "" {
		return nil, fmt.Errorf("%w: user and class are required", ErrInvalidInput)
	}
	if !ingestion_engine.IsSupportedMediaType(in.ContentType) {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedMediaType, in.ContentType)
	}

	docID := uuid.NewString()
	key := s.objectKey(in.UserID, in.ClassID, docID, in.FileName)

	if err := s.storage.UploadFile(ctx, s.bucket, key, in.Body, in.Size, in.ContentType); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
	}

	doc := &models.Document{
		ID:          docID,
		UserID:      in.UserID,
		ClassID:     in.ClassID,
		FileName:    in.FileName,
		StoragePath: key,
		ContentType: ingestion_engine.MediaTypePDF,
		FileSize:    in.Size,
		Status:      models.StatusPending,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		if derr := s.storage.DeleteFile(context.WithoutCancel(ctx), s.bucket, key); derr != nil {
			logger.Warnw("orphaned upload", "key", key, "error", derr)
		}
		return nil, fmt.Errorf("store document metadata: %w", err)
	}

	if err := s.scheduler.Enqueue(ctx, doc.ID); err != nil {
		logger.Errorw("could not schedule ingestion", "document_id", doc.ID, "error", err)
	} else {
		logger.Infow("document uploaded", "document_id", doc.ID, "class_id", doc.ClassID, "bytes", doc.FileSize)
	}
	return doc, nil
}

// Get returns the document when it belongs to userID.
func (s *DocumentService) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.UserID != userID {
		return nil, fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	return doc, nil
}

// ListByClass lists the user's documents, all of them when classID is empty.
func (s *DocumentService) ListByClass(ctx context.Context, userID, classID string) ([]models.Document, error) {
	docs, err := s.db.ListDocumentsByClass(ctx, userID, classID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// Process runs ingestion synchronously for one of the user's documents.
func (s *DocumentService) Process(ctx context.Context, userID, id string) (int, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return 0, err
	}
	return s.ingestor.Ingest(ctx, id)
}

// Delete removes the document row, its chunks and then the stored file.
func (s *DocumentService) Delete(ctx context.Context, userID, id string) error {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.storage.DeleteFile(ctx, s.bucket, doc.StoragePath); err != nil {
		logger.Warnw("document deleted but file remains", "document_id", doc.ID, "key", doc.StoragePath, "error", err)
	}
	return nil
}

type SearchInput struct {
	UserID  string
	ClassID string
	Query   string
	Limit   int
}

// Search embeds the query and returns the closest chunks of the user's
// documents, optionally within one class.
func (s *DocumentService) Search(ctx context.Context, in SearchInput) ([]models.DocumentChunk, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}

	limit := in.Limit
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbedding, err)
	}

	chunks, err := s.db.SearchChunks(ctx, core.ChunkQuery{
		ClassID: in.ClassID,
		UserID:  in.UserID,
		Vector:  vec,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []models.DocumentChunk{}
	}
	return chunks, nil
}

// objectKey creates a consistent object key layout.
func (s *DocumentService) objectKey(userID, classID, docID, filename string) string {
	filename = path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	filename = strings.ReplaceAll(filename, " ", "_")
	if filename == "." || filename == "/" || filename == "" {
		filename = "document.pdf"
	}
	return path.Join("users", userID, "classes", classID, "documents", docID, filename)
}
