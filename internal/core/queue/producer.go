// Package queue moves upload events through Kafka to the ingestion pipeline.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/markdave123-py/Studyhall/internal/logger"
)

// UploadEvent is the message published once a document's bytes are stored.
type UploadEvent struct {
	DocumentID string `json:"document_id"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes upload events. Messages are keyed by document id so
// every event for a document lands on the same partition.
type Producer struct {
	writer messageWriter
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	logger.Infow("kafka producer ready", "brokers", brokers, "topic", topic)
	return &Producer{writer: w, topic: topic}
}

// Enqueue publishes an upload event for docID.
func (p *Producer) Enqueue(ctx context.Context, docID string) error {
	payload, err := json.Marshal(UploadEvent{DocumentID: docID})
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(docID), Value: payload}); err != nil {
		return fmt.Errorf("publish upload event %s: %w", docID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
