package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Studyhall/internal/core"
	"github.com/markdave123-py/Studyhall/internal/logger"
	"github.com/markdave123-py/Studyhall/internal/models"
)

const markFailedTimeout = 15 * time.Second

var (
	_ Ingestor  = (*DocumentIngestor)(nil)
	_ Scheduler = (*DocumentIngestor)(nil)
)

// NewDocumentIngestor constructs the ingestor with a bounded job queue.
func NewDocumentIngestor(db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, extractor core.DocumentExtractor, cfg *IngestConfig) *DocumentIngestor {
	cfg = cfg.withDefaults()
	return &DocumentIngestor{
		db:        db,
		obj:       obj,
		embedder:  emb,
		extractor: extractor,
		chunker:   NewChunker(cfg.ChunkSize),
		cfg:       cfg,
		jobs:      make(chan string, cfg.QueueSize),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel until ctx
// is cancelled.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			for {
				select {
				case <-ctx.Done():
					logger.Infow("ingest worker stopping", "worker", w)
					return
				case docID := <-i.jobs:
					n, err := i.Ingest(ctx, docID)
					if err != nil {
						logger.Errorw("ingestion failed", "worker", w, "document_id", docID, "reason", core.ReasonOf(err), "error", err)
						continue
					}
					logger.Infow("ingestion finished", "worker", w, "document_id", docID, "chunks", n)
				}
			}
		}()
	}
}

// Enqueue schedules a document for the worker pool. It blocks while the
// queue is full, until ctx is done.
func (i *DocumentIngestor) Enqueue(ctx context.Context, docID string) error {
	select {
	case i.jobs <- docID:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", docID, ctx.Err())
	}
}

// Wait blocks until every worker started by Start has returned.
func (i *DocumentIngestor) Wait() {
	i.wg.Wait()
}

// Ingest extracts, chunks, embeds and persists one document.
//
// The document is claimed with a conditional status update, so concurrent
// calls for the same id yield core.ErrAlreadyProcessing. Chunks are written
// in a single transaction together with the completed status. Any failure
// after the claim leaves the document failed with its reason recorded and
// without chunks.
func (i *DocumentIngestor) Ingest(ctx context.Context, documentID string) (int, error) {
	// store errors before the claim leave the document untouched and are
	// reported as transient
	doc, err := i.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return 0, core.NewIngestError(documentID, models.ReasonPersistence, fmt.Errorf("load document: %w", err))
	}
	if doc == nil {
		return 0, fmt.Errorf("%w: %s", core.ErrDocumentNotFound, documentID)
	}

	claimed, err := i.db.ClaimDocument(ctx, documentID)
	if err != nil {
		return 0, core.NewIngestError(documentID, models.ReasonPersistence, fmt.Errorf("claim document: %w", err))
	}
	if !claimed {
		return 0, fmt.Errorf("%w: %s", core.ErrAlreadyProcessing, documentID)
	}
	logger.Infow("document claimed", "document_id", documentID, "stage", models.StatusProcessing)

	runCtx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	n, err := i.process(runCtx, doc)
	if err != nil {
		switch cerr := runCtx.Err(); {
		case errors.Is(cerr, context.DeadlineExceeded):
			err = core.NewIngestError(documentID, models.ReasonTimeout, err)
		case cerr != nil:
			err = core.NewIngestError(documentID, models.ReasonCanceled, err)
		}
		i.markFailed(ctx, documentID, err)
		return 0, err
	}

	logger.Infow("document completed", "document_id", documentID, "stage", models.StatusCompleted, "chunks", n)
	return n, nil
}

func (i *DocumentIngestor) process(ctx context.Context, doc *models.Document) (int, error) {
	if !IsSupportedMediaType(doc.ContentType) {
		return 0, core.NewIngestError(doc.ID, models.ReasonUnsupportedMediaType,
			fmt.Errorf("content type %q", doc.ContentType))
	}

	data, err := i.obj.GetFile(ctx, i.cfg.Bucket, doc.StoragePath)
	if err != nil {
		return 0, core.NewIngestError(doc.ID, models.ReasonStorage, err)
	}
	logger.Infow("document downloaded", "document_id", doc.ID, "stage", "download", "bytes", len(data))

	text, err := i.extractor.ExtractText(ctx, data, doc.ContentType)
	if err != nil {
		return 0, core.NewIngestError(doc.ID, extractionReason(err), err)
	}

	pieces := i.chunker.Split(text)
	if len(pieces) == 0 {
		return 0, core.NewIngestError(doc.ID, models.ReasonEmptyContent, nil)
	}
	logger.Infow("document chunked", "document_id", doc.ID, "stage", "chunk", "chunks", len(pieces))

	vectors, err := i.embedChunks(ctx, pieces)
	if err != nil {
		return 0, core.NewIngestError(doc.ID, models.ReasonEmbedding, err)
	}

	chunks := make([]models.DocumentChunk, len(pieces))
	for idx, content := range pieces {
		chunks[idx] = models.DocumentChunk{
			DocumentID: doc.ID,
			ClassID:    doc.ClassID,
			UserID:     doc.UserID,
			Content:    content,
			ChunkIndex: idx,
			Embedding:  vectors[idx],
		}
	}

	if err := i.db.CommitDocumentChunks(ctx, doc.ID, chunks); err != nil {
		return 0, core.NewIngestError(doc.ID, models.ReasonPersistence, err)
	}
	return len(chunks), nil
}

func extractionReason(err error) models.FailureReason {
	switch {
	case errors.Is(err, core.ErrEmptyContent):
		return models.ReasonEmptyContent
	case errors.Is(err, core.ErrUnsupportedMediaType):
		return models.ReasonUnsupportedMediaType
	default:
		return models.ReasonExtraction
	}
}

// embedChunks embeds texts in batches of BatchSize with at most
// EmbedConcurrency requests in flight. Vectors land at their chunk position,
// so completion order does not matter.
func (i *DocumentIngestor) embedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.EmbedConcurrency)

	for start := 0; start < len(texts); start += i.cfg.BatchSize {
		end := min(start+i.cfg.BatchSize, len(texts))
		g.Go(func() error {
			out, err := i.embedder.EmbedTexts(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(out) != end-start {
				return fmt.Errorf("embed size mismatch: got %d want %d", len(out), end-start)
			}
			for k, v := range out {
				if i.cfg.EmbedDim > 0 && len(v) != i.cfg.EmbedDim {
					return fmt.Errorf("chunk %d: embedding dimension %d, want %d", start+k, len(v), i.cfg.EmbedDim)
				}
				vectors[start+k] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// markFailed runs on a context detached from the caller so a timeout or
// shutdown still records the failure.
func (i *DocumentIngestor) markFailed(ctx context.Context, documentID string, cause error) {
	reason := core.ReasonOf(cause)
	if reason == models.ReasonNone {
		reason = models.ReasonPersistence
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()

	if err := i.db.MarkDocumentFailed(fctx, documentID, reason); err != nil {
		logger.Errorw("could not mark document failed", "document_id", documentID, "reason", reason, "error", err)
		return
	}
	logger.Warnw("document failed", "document_id", documentID, "stage", models.StatusFailed, "reason", reason, "error", cause)
}
