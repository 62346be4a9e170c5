package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/markdave123-py/Studyhall/internal/core"
	"github.com/markdave123-py/Studyhall/internal/models"
)

// memStore is an in-memory core.DbClient with the same status rules as the
// Postgres client.
type memStore struct {
	mu        sync.Mutex
	docs      map[string]*models.Document
	chunks    map[string][]models.DocumentChunk
	commitErr error
	loadErr   error
	claimErr  error
}

var _ core.DbClient = (*memStore)(nil)

func newMemStore(docs ...*models.Document) *memStore {
	s := &memStore{docs: map[string]*models.Document{}, chunks: map[string][]models.DocumentChunk{}}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *memStore) doc(id string) models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.docs[id]
}

func (s *memStore) chunksOf(id string) []models.DocumentChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DocumentChunk(nil), s.chunks[id]...)
}

func (s *memStore) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *memStore) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	d, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) ListDocumentsByClass(_ context.Context, userID, classID string) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Document
	for _, d := range s.docs {
		if d.UserID == userID && (classID == "" || d.ClassID == classID) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memStore) ClaimDocument(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return false, s.claimErr
	}
	d, ok := s.docs[id]
	if !ok || d.Status == models.StatusProcessing {
		return false, nil
	}
	d.Status = models.StatusProcessing
	d.FailureReason = models.ReasonNone
	return true, nil
}

func (s *memStore) MarkDocumentFailed(_ context.Context, id string, reason models.FailureReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	delete(s.chunks, id)
	d.Status = models.StatusFailed
	d.FailureReason = reason
	d.ChunkCount = 0
	return nil
}

func (s *memStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return core.ErrDocumentNotFound
	}
	delete(s.docs, id)
	delete(s.chunks, id)
	return nil
}

func (s *memStore) CommitDocumentChunks(_ context.Context, documentID string, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	d, ok := s.docs[documentID]
	if !ok || d.Status != models.StatusProcessing {
		return errors.New("document is no longer processing")
	}
	s.chunks[documentID] = append([]models.DocumentChunk(nil), chunks...)
	d.Status = models.StatusCompleted
	d.ChunkCount = len(chunks)
	return nil
}

func (s *memStore) GetChunksByDocument(_ context.Context, documentID string) ([]models.DocumentChunk, error) {
	return s.chunksOf(documentID), nil
}

func (s *memStore) SearchChunks(context.Context, core.ChunkQuery) ([]models.DocumentChunk, error) {
	return nil, nil
}

func (s *memStore) Close() error { return nil }

type fakeObjects struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
	gets  int
}

func (o *fakeObjects) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files[bucket+"/"+key] = b
	return nil
}

func (o *fakeObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gets++
	if o.err != nil {
		return nil, o.err
	}
	b, ok := o.files[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("missing object %s/%s", bucket, key)
	}
	return b, nil
}

func (o *fakeObjects) DeleteFile(_ context.Context, bucket, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.files, bucket+"/"+key)
	return nil
}

// textExtractor returns the stored bytes as text.
type textExtractor struct {
	err error
}

func (e textExtractor) ExtractText(_ context.Context, data []byte, _ string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return string(data), nil
}

// lenEmbedder encodes each text's rune count in the first vector component
// so tests can check that vectors stay attached to their chunk.
type lenEmbedder struct {
	dim     int
	delay   func(batch []string) time.Duration
	failOn  string
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (e *lenEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if e.started != nil {
		e.once.Do(func() { close(e.started) })
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.delay != nil {
		select {
		case <-time.After(e.delay(texts)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failOn != "" && t == e.failOn {
			return nil, errors.New("embedding service unavailable")
		}
		v := make([]float32, e.dim)
		v[0] = float32(utf8.RuneCountInString(t))
		out[i] = v
	}
	return out, nil
}
