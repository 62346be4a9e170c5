package core

import (
	"context"
)

// DocumentExtractor turns raw document bytes into plain text.
type DocumentExtractor interface {
	// ExtractText returns the textual content of data. The contentType hint
	// tells the extractor which parser to use.
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
