package objectclient

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cfg "github.com/markdave123-py/Studyhall/internal/config"
	"github.com/markdave123-py/Studyhall/internal/core"
	"github.com/markdave123-py/Studyhall/internal/logger"
)

// MinioClient stores documents in a MinIO (or any S3 compatible) server.
type MinioClient struct {
	client *minio.Client
}

var _ core.ObjectClient = (*MinioClient)(nil)

// NewMinioClient connects and makes sure the configured bucket exists.
func NewMinioClient(ctx context.Context, cfg *cfg.Config) (*MinioClient, error) {
	if cfg.MinioEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name not set")
	}

	cl, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	exists, err := cl.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := cl.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.BucketName, err)
		}
		logger.Infow("minio bucket created", "bucket", cfg.BucketName)
	}

	logger.Infow("minio client ready", "endpoint", cfg.MinioEndpoint, "bucket", cfg.BucketName)
	return &MinioClient{client: cl}, nil
}

func (c *MinioClient) UploadFile(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error {
	if size <= 0 {
		size = -1
	}
	_, err := c.client.PutObject(ctx, bucket, key, data, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("minio upload failed: %w", err)
	}
	return nil
}

func (c *MinioClient) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get failed: %w", err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only shows up on the first read.
	body, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("minio read failed: %w", err)
	}
	return body, nil
}

func (c *MinioClient) DeleteFile(ctx context.Context, bucket, key string) error {
	if err := c.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio delete failed: %w", err)
	}
	return nil
}
