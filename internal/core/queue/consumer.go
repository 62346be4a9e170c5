package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/markdave123-py/Studyhall/internal/core"
	"github.com/markdave123-py/Studyhall/internal/core/ingestion_engine"
	"github.com/markdave123-py/Studyhall/internal/logger"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds the Kafka reader settings and the retry policy.
type ConsumerConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	MaxAttempts int
	Backoff     time.Duration
}

// Consumer reads upload events and runs ingestion for each one.
//
// Transient and unclassified failures are retried in place with a growing
// backoff until
// MaxAttempts is reached. The attempt count lives in the AttemptTracker so a
// restarted consumer picks up where the last one stopped. The offset is
// committed once the event is settled: ingested, failed permanently, out of
// attempts, or owned by another run.
type Consumer struct {
	reader      messageReader
	ingestor    ingestion_engine.Ingestor
	attempts    AttemptTracker
	maxAttempts int64
	backoff     time.Duration
}

func NewConsumer(cfg ConsumerConfig, ing ingestion_engine.Ingestor, attempts AttemptTracker) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(r, ing, attempts, cfg.MaxAttempts, cfg.Backoff)
}

func newConsumer(r messageReader, ing ingestion_engine.Ingestor, attempts AttemptTracker, maxAttempts int, backoff time.Duration) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Consumer{
		reader:      r,
		ingestor:    ing,
		attempts:    attempts,
		maxAttempts: int64(maxAttempts),
		backoff:     backoff,
	}
}

// Run consumes until ctx is cancelled or the reader fails, then closes the
// reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			logger.Error("close kafka reader", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch upload event: %w", err)
		}

		if err := c.handle(ctx, m); err != nil {
			// shutting down mid-retry: leave the offset for the next consumer
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", m.Offset, err)
		}
	}
}

// handle returns nil when the message may be committed.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	var ev UploadEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.DocumentID == "" {
		logger.Warnw("dropping malformed upload event", "offset", m.Offset, "value", string(m.Value), "error", err)
		return nil
	}
	docID := ev.DocumentID

	for {
		n, err := c.ingestor.Ingest(ctx, docID)
		switch {
		case err == nil:
			logger.Infow("upload event ingested", "document_id", docID, "chunks", n, "offset", m.Offset)
			c.reset(ctx, docID)
			return nil
		case errors.Is(err, core.ErrAlreadyProcessing), errors.Is(err, core.ErrDocumentNotFound):
			logger.Warnw("skipping upload event", "document_id", docID, "error", err)
			return nil
		case core.IsPermanent(err):
			logger.Errorw("ingestion failed permanently", "document_id", docID, "reason", core.ReasonOf(err), "error", err)
			c.reset(ctx, docID)
			return nil
		}

		attempt, aerr := c.attempts.Incr(ctx, docID)
		if aerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("count attempts for %s: %w", docID, aerr)
		}
		if attempt >= c.maxAttempts {
			logger.Errorw("giving up on document", "document_id", docID, "attempts", attempt, "reason", core.ReasonOf(err), "error", err)
			c.reset(ctx, docID)
			return nil
		}

		wait := c.backoff * time.Duration(attempt)
		logger.Warnw("retrying ingestion", "document_id", docID, "attempt", attempt, "backoff", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) reset(ctx context.Context, docID string) {
	if err := c.attempts.Reset(ctx, docID); err != nil {
		logger.Warnw("could not reset attempt counter", "document_id", docID, "error", err)
	}
}
