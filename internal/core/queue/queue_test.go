package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Studyhall/internal/core"
	"github.com/markdave123-py/Studyhall/internal/models"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

// scriptedIngestor returns the queued results for each document in order,
// then succeeds.
type scriptedIngestor struct {
	mu      sync.Mutex
	results map[string][]error
	calls   map[string]int
}

func (s *scriptedIngestor) Ingest(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	if q := s.results[id]; len(q) > 0 {
		s.results[id] = q[1:]
		return 0, q[0]
	}
	return 3, nil
}

func (s *scriptedIngestor) callsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func event(t *testing.T, offset int64, docID string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(UploadEvent{DocumentID: docID})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func transient(id string) error {
	return core.NewIngestError(id, models.ReasonEmbedding, errors.New("503"))
}

func runConsumer(t *testing.T, r *fakeReader, ing *scriptedIngestor, attempts AttemptTracker, maxAttempts, wantCommits int) {
	t.Helper()
	c := newConsumer(r, ing, attempts, maxAttempts, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(r.commits()) == wantCommits }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, r.closed)
}

func TestConsumer_CommitsSettledEvents(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		event(t, 1, "ok"),
		event(t, 2, "bad-pdf"),
		event(t, 3, "busy"),
		{Offset: 4, Value: []byte("{not json")},
	}}
	ing := &scriptedIngestor{
		calls: map[string]int{},
		results: map[string][]error{
			"bad-pdf": {core.NewIngestError("bad-pdf", models.ReasonExtraction, errors.New("xref"))},
			"busy":    {core.ErrAlreadyProcessing},
		},
	}

	runConsumer(t, r, ing, NewMemoryAttempts(), 3, 4)

	assert.Equal(t, []int64{1, 2, 3, 4}, r.commits())
	assert.Equal(t, 1, ing.callsFor("bad-pdf"))
	assert.Equal(t, 1, ing.callsFor("busy"))
}

func TestConsumer_RetriesTransientFailures(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{event(t, 7, "flaky")}}
	ing := &scriptedIngestor{
		calls:   map[string]int{},
		results: map[string][]error{"flaky": {transient("flaky"), transient("flaky")}},
	}
	attempts := NewMemoryAttempts()

	runConsumer(t, r, ing, attempts, 3, 1)

	assert.Equal(t, 3, ing.callsFor("flaky"))
	n, _ := attempts.Incr(context.Background(), "flaky")
	assert.Equal(t, int64(1), n, "counter is reset after success")
}

func TestConsumer_GivesUpAfterMaxAttempts(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{event(t, 9, "down")}}
	ing := &scriptedIngestor{
		calls:   map[string]int{},
		results: map[string][]error{"down": {transient("down"), transient("down"), transient("down"), transient("down")}},
	}

	runConsumer(t, r, ing, NewMemoryAttempts(), 3, 1)

	assert.Equal(t, 3, ing.callsFor("down"))
	assert.Equal(t, []int64{9}, r.commits())
}

func TestConsumer_RetriesUnclassifiedErrors(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{event(t, 1, "doc-1")}}
	refused := fmt.Errorf("load document doc-1: %w", errors.New("dial tcp: connection refused"))
	ing := &scriptedIngestor{
		calls:   map[string]int{},
		results: map[string][]error{"doc-1": {refused, refused}},
	}

	runConsumer(t, r, ing, NewMemoryAttempts(), 3, 1)

	assert.Equal(t, 3, ing.callsFor("doc-1"))
	assert.Equal(t, []int64{1}, r.commits())
}

func TestConsumer_RetriesStoreErrorsBeforeClaim(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{event(t, 5, "doc-2")}}
	loadErr := core.NewIngestError("doc-2", models.ReasonPersistence, errors.New("connection refused"))
	ing := &scriptedIngestor{
		calls:   map[string]int{},
		results: map[string][]error{"doc-2": {loadErr, loadErr, loadErr}},
	}

	runConsumer(t, r, ing, NewMemoryAttempts(), 3, 1)

	assert.Equal(t, 3, ing.callsFor("doc-2"), "gives up only after MaxAttempts")
}

type failingAttempts struct{}

func (failingAttempts) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("redis: connection refused")
}
func (failingAttempts) Reset(context.Context, string) error { return nil }

func TestConsumer_StopsWithoutCommitWhenCounterFails(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{event(t, 1, "flaky")}}
	ing := &scriptedIngestor{
		calls:   map[string]int{},
		results: map[string][]error{"flaky": {transient("flaky")}},
	}
	c := newConsumer(r, ing, failingAttempts{}, 3, time.Millisecond)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count attempts")
	assert.Empty(t, r.commits())
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer_Enqueue(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "uploads"}

	require.NoError(t, p.Enqueue(context.Background(), "doc-1"))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("doc-1"), w.msgs[0].Key)
	assert.JSONEq(t, `{"document_id":"doc-1"}`, string(w.msgs[0].Value))

	w.err = errors.New("broker down")
	err := p.Enqueue(context.Background(), "doc-2")
	assert.ErrorContains(t, err, "doc-2")
}

func TestMemoryAttempts(t *testing.T) {
	a := NewMemoryAttempts()
	ctx := context.Background()

	n, _ := a.Incr(ctx, "d")
	assert.Equal(t, int64(1), n)
	n, _ = a.Incr(ctx, "d")
	assert.Equal(t, int64(2), n)

	require.NoError(t, a.Reset(ctx, "d"))
	n, _ = a.Incr(ctx, "d")
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "ingest:attempts:d", attemptsKey("d"))
}
