// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Studyhall/internal/config"
	"github.com/markdave123-py/Studyhall/internal/core"
	db "github.com/markdave123-py/Studyhall/internal/core/database"
	"github.com/markdave123-py/Studyhall/internal/core/ingestion_engine"
	"github.com/markdave123-py/Studyhall/internal/core/llm"
	objectclient "github.com/markdave123-py/Studyhall/internal/core/object-client"
	"github.com/markdave123-py/Studyhall/internal/core/queue"
	"github.com/markdave123-py/Studyhall/internal/logger"
	"github.com/markdave123-py/Studyhall/internal/services"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	cfg          *config.Config
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Embedder     llm.Embedder
	Ingestor     *ingestion_engine.DocumentIngestor
	Producer     *queue.Producer
	Consumers    []*queue.Consumer
	Redis        *redis.Client
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	logger.Info("Database initialized and ready.")

	a.ObjectClient, err = objectclient.New(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the object client: %w", err)
	}
	logger.Infow("Object client initialized and ready.", "provider", cfg.BlobProvider)

	a.Embedder, err = llm.NewEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	var extractor core.DocumentExtractor
	switch cfg.Extractor {
	case "docconv":
		extractor = ingestion_engine.NewDocconvExtractor(false)
	default:
		extractor = ingestion_engine.NewPDFExtractor()
	}

	a.Ingestor = ingestion_engine.NewDocumentIngestor(
		a.DBClient, a.ObjectClient, a.Embedder, extractor, ingestion_engine.IngestConfigFromEnv(cfg),
	)

	var scheduler ingestion_engine.Scheduler = a.Ingestor
	if cfg.KafkaEnabled() {
		if err := a.initQueue(appCtx); err != nil {
			return nil, err
		}
		scheduler = a.Producer
	}

	docs := services.NewDocumentService(a.DBClient, a.ObjectClient, a.Embedder, a.Ingestor, scheduler, cfg.BucketName)
	a.Server = NewServer(cfg, docs)

	ok = true
	return a, nil
}

// initQueue wires the Kafka producer, one consumer per ingest worker, and
// the attempt counter (Redis when configured).
func (a *App) initQueue(ctx context.Context) error {
	var attempts queue.AttemptTracker = queue.NewMemoryAttempts()
	if a.cfg.RedisAddr != "" {
		rdb, err := queue.NewRedisClient(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = rdb
		attempts = queue.NewRedisAttempts(rdb)
		logger.Infow("Redis attempt counter ready", "addr", a.cfg.RedisAddr)
	} else {
		logger.Warnf("REDIS_ADDR not set; retry counts are kept in memory")
	}

	a.Producer = queue.NewProducer(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
	for i := 0; i < a.cfg.IngestWorkers; i++ {
		a.Consumers = append(a.Consumers, queue.NewConsumer(queue.ConsumerConfig{
			Brokers:     a.cfg.KafkaBrokers,
			Topic:       a.cfg.KafkaTopic,
			GroupID:     a.cfg.KafkaGroup,
			MaxAttempts: a.cfg.MaxAttempts,
		}, a.Ingestor, attempts))
	}
	return nil
}

// Run serves HTTP and processes ingestion jobs until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if len(a.Consumers) > 0 {
		for _, c := range a.Consumers {
			g.Go(func() error { return c.Run(gctx) })
		}
		logger.Infow("consuming upload events", "topic", a.cfg.KafkaTopic, "consumers", len(a.Consumers))
	} else {
		a.Ingestor.Start(gctx, a.cfg.IngestWorkers)
		logger.Infow("in-process ingest workers started", "workers", a.cfg.IngestWorkers)
	}

	g.Go(a.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(sctx)
	})

	err := g.Wait()
	a.Ingestor.Wait()
	return err
}

func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			logger.Error("close kafka producer", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
