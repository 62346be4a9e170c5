package objectclient

import (
	"context"
	"errors"
	"fmt"

	cfg "github.com/markdave123-py/Studyhall/internal/config"
	"github.com/markdave123-py/Studyhall/internal/core"
)

// ErrObjectNotFound is returned by GetFile when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// New returns the blob store selected by BLOB_PROVIDER.
func New(ctx context.Context, c *cfg.Config) (core.ObjectClient, error) {
	switch c.BlobProvider {
	case "s3":
		s3c, err := NewS3Client(ctx, c)
		if err != nil {
			return nil, err
		}
		return s3c, nil
	case "minio":
		mc, err := NewMinioClient(ctx, c)
		if err != nil {
			return nil, err
		}
		return mc, nil
	default:
		return nil, fmt.Errorf("unknown blob provider %q", c.BlobProvider)
	}
}
