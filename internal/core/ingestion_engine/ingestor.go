package ingestion_engine

import "context"

// Ingestor runs the pipeline for one document and reports the number of
// chunks written.
type Ingestor interface {
	Ingest(ctx context.Context, documentID string) (int, error)
}

// Scheduler hands a document to background ingestion. The in-process worker
// pool and the Kafka producer both implement it.
type Scheduler interface {
	Enqueue(ctx context.Context, documentID string) error
}
