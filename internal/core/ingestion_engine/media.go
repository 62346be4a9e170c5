package ingestion_engine

import (
	"mime"
	"strings"
)

const MediaTypePDF = "application/pdf"

// IsSupportedMediaType reports whether contentType names a PDF. Parameters
// such as charset are ignored.
func IsSupportedMediaType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.EqualFold(mt, MediaTypePDF)
}
