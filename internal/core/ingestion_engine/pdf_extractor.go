package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/Studyhall/internal/core"
)

var _ core.DocumentExtractor = (*PDFExtractor)(nil)

// PDFExtractor reads the plain text of every page with ledongthuc/pdf.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

func (e *PDFExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (text string, err error) {
	if !IsSupportedMediaType(contentType) {
		return "", fmt.Errorf("%w: %q", core.ErrUnsupportedMediaType, contentType)
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf parser panic: %v", core.ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", core.ErrExtraction, err)
	}

	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", core.ErrExtraction, i, err)
		}
		buf.WriteString(pageText)
		buf.WriteString("\n")
	}

	if strings.TrimSpace(buf.String()) == "" {
		return "", core.ErrEmptyContent
	}
	return buf.String(), nil
}
