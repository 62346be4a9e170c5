package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Studyhall/internal/core"
	"github.com/markdave123-py/Studyhall/internal/models"
)

const testBucket = "materials"

type harness struct {
	store    *memStore
	objects  *fakeObjects
	embedder *lenEmbedder
	ing      *DocumentIngestor
}

func newHarness(t *testing.T, text string, cfg *IngestConfig, ext core.DocumentExtractor, docs ...*models.Document) *harness {
	t.Helper()
	if len(docs) == 0 {
		docs = []*models.Document{newDoc("doc-1", models.StatusPending)}
	}
	h := &harness{
		store:    newMemStore(docs...),
		objects:  &fakeObjects{files: map[string][]byte{}},
		embedder: &lenEmbedder{dim: 4},
	}
	for _, d := range docs {
		h.objects.files[testBucket+"/"+d.StoragePath] = []byte(text)
	}
	if cfg == nil {
		cfg = &IngestConfig{}
	}
	cfg.Bucket = testBucket
	if cfg.EmbedDim == 0 {
		cfg.EmbedDim = 4
	}
	if ext == nil {
		ext = textExtractor{}
	}
	h.ing = NewDocumentIngestor(h.store, h.objects, h.embedder, ext, cfg)
	return h
}

func newDoc(id string, status models.DocumentStatus) *models.Document {
	return &models.Document{
		ID:          id,
		UserID:      "user-1",
		ClassID:     "class-1",
		FileName:    "notes.pdf",
		StoragePath: "users/user-1/classes/class-1/documents/" + id + "/notes.pdf",
		ContentType: MediaTypePDF,
		Status:      status,
	}
}

func TestIngest_CompletesDocument(t *testing.T) {
	h := newHarness(t, newtonText, &IngestConfig{ChunkSize: 50, BatchSize: 2, EmbedConcurrency: 2}, nil)

	n, err := h.ing.Ingest(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	doc := h.store.doc("doc-1")
	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, models.ReasonNone, doc.FailureReason)

	chunks := h.store.chunksOf("doc-1")
	require.Len(t, chunks, 3)
	want := NewChunker(50).Split(newtonText)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, want[i], ch.Content)
		assert.Equal(t, "class-1", ch.ClassID)
		assert.Equal(t, "user-1", ch.UserID)
		assert.Equal(t, "doc-1", ch.DocumentID)
		assert.Len(t, ch.Embedding, 4)
	}
}

func TestIngest_PreservesOrderWhenBatchesFinishOutOfOrder(t *testing.T) {
	var text string
	for i := 0; i < 12; i++ {
		text += fmt.Sprintf("Sentence number %d has %s. ", i, strings.Repeat("x", i%4))
	}
	h := newHarness(t, text, &IngestConfig{ChunkSize: 30, BatchSize: 1, EmbedConcurrency: 6}, nil)
	// later chunks return first
	calls := 0
	var mu sync.Mutex
	h.embedder.delay = func([]string) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return time.Duration(20-calls) * time.Millisecond
	}

	n, err := h.ing.Ingest(context.Background(), "doc-1")
	require.NoError(t, err)

	chunks := h.store.chunksOf("doc-1")
	require.Len(t, chunks, n)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, float32(len([]rune(ch.Content))), ch.Embedding[0], "chunk %d carries another chunk's vector", i)
	}
}

func TestIngest_EmptyContentFails(t *testing.T) {
	h := newHarness(t, "", nil, textExtractor{err: core.ErrEmptyContent})

	n, err := h.ing.Ingest(context.Background(), "doc-1")
	require.Error(t, err)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, core.ErrEmptyContent)
	assert.False(t, core.IsRetryable(err))

	doc := h.store.doc("doc-1")
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, models.ReasonEmptyContent, doc.FailureReason)
	assert.Empty(t, h.store.chunksOf("doc-1"))
}

func TestIngest_WhitespaceTextIsEmptyContent(t *testing.T) {
	h := newHarness(t, "   \n\t  ", nil, nil)

	_, err := h.ing.Ingest(context.Background(), "doc-1")
	assert.ErrorIs(t, err, core.ErrEmptyContent)
	assert.Equal(t, models.StatusFailed, h.store.doc("doc-1").Status)
}

func TestIngest_NoPunctuationSingleChunk(t *testing.T) {
	h := newHarness(t, "lorem ipsum dolor sit amet", nil, nil)

	n, err := h.ing.Ingest(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "lorem ipsum dolor sit amet", h.store.chunksOf("doc-1")[0].Content)
}

func TestIngest_NotFound(t *testing.T) {
	h := newHarness(t, newtonText, nil, nil)

	_, err := h.ing.Ingest(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)
}

func TestIngest_AlreadyProcessingLeavesDocumentAlone(t *testing.T) {
	doc := newDoc("doc-1", models.StatusProcessing)
	h := newHarness(t, newtonText, nil, nil, doc)
	h.store.chunks["doc-1"] = []models.DocumentChunk{{ID: "old", DocumentID: "doc-1", Content: "kept"}}

	_, err := h.ing.Ingest(context.Background(), "doc-1")
	assert.ErrorIs(t, err, core.ErrAlreadyProcessing)

	assert.Equal(t, models.StatusProcessing, h.store.doc("doc-1").Status)
	assert.Len(t, h.store.chunksOf("doc-1"), 1)
	assert.Zero(t, h.objects.gets)
}

func TestIngest_ConcurrentCallsRunOnce(t *testing.T) {
	h := newHarness(t, newtonText, &IngestConfig{ChunkSize: 50}, nil)
	h.embedder.block = make(chan struct{})
	h.embedder.started = make(chan struct{})

	type result struct {
		n   int
		err error
	}
	first := make(chan result, 1)
	go func() {
		n, err := h.ing.Ingest(context.Background(), "doc-1")
		first <- result{n, err}
	}()

	<-h.embedder.started
	_, err := h.ing.Ingest(context.Background(), "doc-1")
	assert.ErrorIs(t, err, core.ErrAlreadyProcessing)

	close(h.embedder.block)
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, 3, r.n)
	assert.Len(t, h.store.chunksOf("doc-1"), 3)
	assert.Equal(t, 1, h.objects.gets)
}

func TestIngest_EmbeddingFailureWritesNothing(t *testing.T) {
	doc := newDoc("doc-1", models.StatusCompleted)
	h := newHarness(t, newtonText, &IngestConfig{ChunkSize: 50, BatchSize: 1}, nil, doc)
	h.store.chunks["doc-1"] = []models.DocumentChunk{{ID: "stale", DocumentID: "doc-1"}}
	h.embedder.failOn = "The second law relates force and mass."

	_, err := h.ing.Ingest(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.True(t, core.IsRetryable(err))

	d := h.store.doc("doc-1")
	assert.Equal(t, models.StatusFailed, d.Status)
	assert.Equal(t, models.ReasonEmbedding, d.FailureReason)
	assert.Empty(t, h.store.chunksOf("doc-1"))
}

func TestIngest_DimensionMismatch(t *testing.T) {
	h := newHarness(t, newtonText, &IngestConfig{EmbedDim: 768}, nil)

	_, err := h.ing.Ingest(context.Background(), "doc-1")
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.Contains(t, err.Error(), "dimension 4, want 768")
}

func TestIngest_StorageFailure(t *testing.T) {
	h := newHarness(t, newtonText, nil, nil)
	h.objects.err = errors.New("connection refused")

	_, err := h.ing.Ingest(context.Background(), "doc-1")
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.True(t, core.IsRetryable(err))
	assert.Equal(t, models.ReasonStorage, h.store.doc("doc-1").FailureReason)
}

func TestIngest_ExtractionFailureIsPermanent(t *testing.T) {
	h := newHarness(t, newtonText, nil, textExtractor{err: fmt.Errorf("%w: broken xref", core.ErrExtraction)})

	_, err := h.ing.Ingest(context.Background(), "doc-1")
	assert.ErrorIs(t, err, core.ErrExtraction)
	assert.False(t, core.IsRetryable(err))
	assert.Equal(t, models.ReasonExtraction, h.store.doc("doc-1").FailureReason)
}

func TestIngest_UnsupportedMediaTypeSkipsDownload(t *testing.T) {
	doc := newDoc("doc-1", models.StatusPending)
	doc.ContentType = "image/png"
	h := newHarness(t, newtonText, nil, nil, doc)

	_, err := h.ing.Ingest(context.Background(), "doc-1")
	assert.ErrorIs(t, err, core.ErrUnsupportedMediaType)
	assert.Zero(t, h.objects.gets)
	assert.Equal(t, models.ReasonUnsupportedMediaType, h.store.doc("doc-1").FailureReason)
}

func TestIngest_PersistenceFailure(t *testing.T) {
	h := newHarness(t, newtonText, nil, nil)
	h.store.commitErr = errors.New("deadlock detected")

	_, err := h.ing.Ingest(context.Background(), "doc-1")
	assert.ErrorIs(t, err, core.ErrPersistence)
	d := h.store.doc("doc-1")
	assert.Equal(t, models.StatusFailed, d.Status)
	assert.Equal(t, models.ReasonPersistence, d.FailureReason)
}

func TestIngest_TimeoutMarksFailed(t *testing.T) {
	h := newHarness(t, newtonText, &IngestConfig{Timeout: 30 * time.Millisecond}, nil)
	h.embedder.block = make(chan struct{})

	_, err := h.ing.Ingest(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.True(t, core.IsRetryable(err))

	d := h.store.doc("doc-1")
	assert.Equal(t, models.StatusFailed, d.Status)
	assert.Equal(t, models.ReasonTimeout, d.FailureReason)
	assert.Empty(t, h.store.chunksOf("doc-1"))
}

func TestIngest_CancellationIsTransient(t *testing.T) {
	h := newHarness(t, newtonText, nil, nil)
	h.embedder.block = make(chan struct{})
	h.embedder.started = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-h.embedder.started
		cancel()
	}()

	_, err := h.ing.Ingest(ctx, "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCanceled)
	assert.True(t, core.IsRetryable(err))

	d := h.store.doc("doc-1")
	assert.Equal(t, models.StatusFailed, d.Status)
	assert.Equal(t, models.ReasonCanceled, d.FailureReason)
	assert.Empty(t, h.store.chunksOf("doc-1"))
}

func TestIngest_StoreErrorsBeforeClaimAreTransient(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*memStore)
	}{
		{"load", func(s *memStore) { s.loadErr = errors.New("connection refused") }},
		{"claim", func(s *memStore) { s.claimErr = errors.New("connection refused") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, newtonText, nil, nil)
			tt.setup(h.store)

			_, err := h.ing.Ingest(context.Background(), "doc-1")
			require.Error(t, err)
			assert.True(t, core.IsRetryable(err))
			assert.False(t, core.IsPermanent(err))
			assert.ErrorIs(t, err, core.ErrPersistence)

			h.store.loadErr, h.store.claimErr = nil, nil
			d := h.store.doc("doc-1")
			assert.Equal(t, models.StatusPending, d.Status, "document is left untouched")
			assert.Equal(t, models.ReasonNone, d.FailureReason)
			assert.Zero(t, h.objects.gets)
		})
	}
}

func TestIngest_ReingestReplacesChunks(t *testing.T) {
	h := newHarness(t, newtonText, &IngestConfig{ChunkSize: 50}, nil)

	_, err := h.ing.Ingest(context.Background(), "doc-1")
	require.NoError(t, err)
	first := h.store.chunksOf("doc-1")

	n, err := h.ing.Ingest(context.Background(), "doc-1")
	require.NoError(t, err)
	second := h.store.chunksOf("doc-1")

	require.Len(t, second, n)
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].ChunkIndex, second[i].ChunkIndex)
	}
}

func TestWorkerPool_ProcessesQueuedDocuments(t *testing.T) {
	docs := []*models.Document{
		newDoc("doc-1", models.StatusPending),
		newDoc("doc-2", models.StatusPending),
		newDoc("doc-3", models.StatusPending),
	}
	h := newHarness(t, newtonText, &IngestConfig{ChunkSize: 50, QueueSize: 1}, nil, docs...)

	ctx, cancel := context.WithCancel(context.Background())
	h.ing.Start(ctx, 2)

	for _, d := range docs {
		require.NoError(t, h.ing.Enqueue(ctx, d.ID))
	}

	require.Eventually(t, func() bool {
		for _, d := range docs {
			if h.store.doc(d.ID).Status != models.StatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	h.ing.Wait()
}

func TestEnqueue_RespectsContextWhenFull(t *testing.T) {
	h := newHarness(t, newtonText, &IngestConfig{QueueSize: 1}, nil)
	require.NoError(t, h.ing.Enqueue(context.Background(), "doc-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.ing.Enqueue(ctx, "doc-2")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
