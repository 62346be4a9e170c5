package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	SslCertPath string
	Port        string
	JWTSecret   string
	CORSOrigins []string

	BlobProvider   string // "s3" or "minio"
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	EmbedProvider string // "gemini" or "openai"
	AIAPIKey      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	EmbedModel    string
	EmbedDim      int

	Extractor        string // "pdf" or "docconv"
	ChunkSize        int
	EmbedBatchSize   int
	EmbedConcurrency int
	EmbedRPS         float64
	IngestTimeout    time.Duration
	IngestWorkers    int
	IngestQueueSize  int
	MaxAttempts      int

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel  string
	LogFormat string

	// malformed values seen while loading, reported by Validate
	parseErrs []error
}

// LoadConfig loads the environment variables (and a .env file when present)
// and returns a validated config.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var p envParser
	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),

		BlobProvider:   strings.ToLower(getEnv("BLOB_PROVIDER", "s3")),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "studyhall-materials"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:    p.bool("MINIO_USE_SSL", false),

		EmbedProvider: strings.ToLower(getEnv("EMBED_PROVIDER", "gemini")),
		AIAPIKey:      getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EmbedModel:    getEnv("EMBED_MODEL", ""),
		EmbedDim:      p.int("EMBED_DIM", 768),

		Extractor:        strings.ToLower(getEnv("EXTRACTOR", "pdf")),
		ChunkSize:        p.int("CHUNK_SIZE", 800),
		EmbedBatchSize:   p.int("EMBED_BATCH_SIZE", 16),
		EmbedConcurrency: p.int("EMBED_CONCURRENCY", 4),
		EmbedRPS:         p.float("EMBED_RPS", 0),
		IngestTimeout:    p.duration("INGEST_TIMEOUT", 5*time.Minute),
		IngestWorkers:    p.int("INGEST_WORKERS", 2),
		IngestQueueSize:  p.int("INGEST_QUEUE_SIZE", 64),
		MaxAttempts:      p.int("MAX_ATTEMPTS", 3),

		KafkaBrokers:  getEnvList("KAFKA_BROKERS", nil),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "document-uploads"),
		KafkaGroup:    getEnv("KAFKA_GROUP", "studyhall-ingestor"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       p.int("REDIS_DB", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	cfg.parseErrs = p.errs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET not set"))
	}
	if c.BlobProvider != "s3" && c.BlobProvider != "minio" {
		errs = append(errs, fmt.Errorf("BLOB_PROVIDER %q must be s3 or minio", c.BlobProvider))
	}
	if c.EmbedProvider != "gemini" && c.EmbedProvider != "openai" {
		errs = append(errs, fmt.Errorf("EMBED_PROVIDER %q must be gemini or openai", c.EmbedProvider))
	}
	if c.Extractor != "pdf" && c.Extractor != "docconv" {
		errs = append(errs, fmt.Errorf("EXTRACTOR %q must be pdf or docconv", c.Extractor))
	}

	for _, knob := range []struct {
		key string
		val int
	}{
		{"EMBED_DIM", c.EmbedDim},
		{"CHUNK_SIZE", c.ChunkSize},
		{"EMBED_BATCH_SIZE", c.EmbedBatchSize},
		{"EMBED_CONCURRENCY", c.EmbedConcurrency},
		{"INGEST_WORKERS", c.IngestWorkers},
		{"INGEST_QUEUE_SIZE", c.IngestQueueSize},
		{"MAX_ATTEMPTS", c.MaxAttempts},
	} {
		if knob.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", knob.key, knob.val))
		}
	}
	if c.IngestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_TIMEOUT must be positive, got %s", c.IngestTimeout))
	}
	if c.EmbedRPS < 0 {
		errs = append(errs, fmt.Errorf("EMBED_RPS must not be negative, got %v", c.EmbedRPS))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether upload events flow through Kafka instead of
// the in-process queue.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// envParser reads typed values and remembers the ones that do not parse.
type envParser struct {
	errs []error
}

func (p *envParser) invalid(key, val, kind string) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q is not a valid %s", key, val, kind))
}

func (p *envParser) int(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.invalid(key, v, "integer")
		return def
	}
	return n
}

func (p *envParser) float(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.invalid(key, v, "number")
		return def
	}
	return f
}

func (p *envParser) bool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.invalid(key, v, "boolean")
		return def
	}
	return b
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.invalid(key, v, "duration")
		return def
	}
	return d
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
