package queue

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const attemptsTTL = 24 * time.Hour

// AttemptTracker counts failed ingestion attempts per document.
type AttemptTracker interface {
	Incr(ctx context.Context, docID string) (int64, error)
	Reset(ctx context.Context, docID string) error
}

// RedisAttempts keeps counters in Redis so they survive consumer restarts
// and are shared across consumer instances.
type RedisAttempts struct {
	rdb *redis.Client
}

var _ AttemptTracker = (*RedisAttempts)(nil)

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func NewRedisAttempts(rdb *redis.Client) *RedisAttempts {
	return &RedisAttempts{rdb: rdb}
}

func attemptsKey(docID string) string {
	return "ingest:attempts:" + docID
}

func (a *RedisAttempts) Incr(ctx context.Context, docID string) (int64, error) {
	key := attemptsKey(docID)
	pipe := a.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, attemptsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (a *RedisAttempts) Reset(ctx context.Context, docID string) error {
	return a.rdb.Del(ctx, attemptsKey(docID)).Err()
}

// MemoryAttempts is the single-process fallback used without Redis.
type MemoryAttempts struct {
	mu     sync.Mutex
	counts map[string]int64
}

var _ AttemptTracker = (*MemoryAttempts)(nil)

func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{counts: map[string]int64{}}
}

func (a *MemoryAttempts) Incr(_ context.Context, docID string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[docID]++
	return a.counts[docID], nil
}

func (a *MemoryAttempts) Reset(_ context.Context, docID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.counts, docID)
	return nil
}
