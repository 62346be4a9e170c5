package ingestion_engine

import (
	"sync"
	"time"

	"github.com/markdave123-py/Studyhall/internal/config"
	"github.com/markdave123-py/Studyhall/internal/core"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize:        target characters per chunk.
// BatchSize:        chunks sent to the embedder per request.
// EmbedConcurrency: embedding requests in flight for one document.
// EmbedDim:         expected vector length; 0 skips the check.
// Timeout:          upper bound for one Ingest call.
// Bucket:           blob store bucket holding the uploads.
// QueueSize:        capacity of the in-process job queue.
type IngestConfig struct {
	ChunkSize        int
	BatchSize        int
	EmbedConcurrency int
	EmbedDim         int
	Timeout          time.Duration
	Bucket           string
	QueueSize        int
}

// IngestConfigFromEnv maps the service configuration onto pipeline knobs.
func IngestConfigFromEnv(c *config.Config) *IngestConfig {
	return &IngestConfig{
		ChunkSize:        c.ChunkSize,
		BatchSize:        c.EmbedBatchSize,
		EmbedConcurrency: c.EmbedConcurrency,
		EmbedDim:         c.EmbedDim,
		Timeout:          c.IngestTimeout,
		Bucket:           c.BucketName,
		QueueSize:        c.IngestQueueSize,
	}
}

func (c *IngestConfig) withDefaults() *IngestConfig {
	out := *c
	if out.ChunkSize <= 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 16
	}
	if out.EmbedConcurrency <= 0 {
		out.EmbedConcurrency = 1
	}
	if out.Timeout <= 0 {
		out.Timeout = 5 * time.Minute
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 64
	}
	return &out
}

// DocumentIngestor orchestrates ingestion:
//
// db:        document status and chunk persistence.
// obj:       blob store holding the uploaded bytes.
// embedder:  embedding provider (Gemini/OpenAI).
// extractor: bytes to plain text.
// chunker:   plain text to sentence-aligned chunks.
// jobs:      in-memory queue of document IDs for the worker pool.
type DocumentIngestor struct {
	db        core.DbClient
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	chunker   *Chunker
	cfg       *IngestConfig
	jobs      chan string
	wg        sync.WaitGroup
}
