package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/Studyhall/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// ExtractText converts data with docconv. Only PDFs are accepted even though
// docconv understands more formats.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if !IsSupportedMediaType(contentType) {
		return "", fmt.Errorf("%w: %q", core.ErrUnsupportedMediaType, contentType)
	}

	res, err := docconv.Convert(bytes.NewReader(data), MediaTypePDF, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("%w: docconv: %v", core.ErrExtraction, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if strings.TrimSpace(res.Body) == "" {
		return "", core.ErrEmptyContent
	}
	return res.Body, nil
}
