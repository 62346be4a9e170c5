package core

import (
	"errors"
	"fmt"

	"github.com/markdave123-py/Studyhall/internal/models"
)

// Ingestion errors. Callers match them with errors.Is.
var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrAlreadyProcessing    = errors.New("document is already being processed")
	ErrStorage              = errors.New("document storage unavailable")
	ErrExtraction           = errors.New("text extraction failed")
	ErrEmptyContent         = errors.New("document contains no extractable text")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrEmbedding            = errors.New("embedding failed")
	ErrPersistence          = errors.New("chunk persistence failed")
	ErrTimeout              = errors.New("ingestion timed out")
	ErrCanceled             = errors.New("ingestion canceled")
)

var reasonSentinels = map[models.FailureReason]error{
	models.ReasonStorage:              ErrStorage,
	models.ReasonExtraction:           ErrExtraction,
	models.ReasonEmptyContent:         ErrEmptyContent,
	models.ReasonUnsupportedMediaType: ErrUnsupportedMediaType,
	models.ReasonEmbedding:            ErrEmbedding,
	models.ReasonPersistence:          ErrPersistence,
	models.ReasonTimeout:              ErrTimeout,
	models.ReasonCanceled:             ErrCanceled,
}

// IngestError is a failure that happened after a document was claimed.
// It matches the sentinel of its Reason as well as the wrapped cause.
type IngestError struct {
	DocumentID string
	Reason     models.FailureReason
	Transient  bool
	Err        error
}

func (e *IngestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingest %s: %s", e.DocumentID, e.Reason)
	}
	return fmt.Sprintf("ingest %s: %s: %v", e.DocumentID, e.Reason, e.Err)
}

func (e *IngestError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := reasonSentinels[e.Reason]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewIngestError classifies err under reason. Storage, embedding, persistence,
// timeout and cancellation failures are transient; the rest depend on the
// document itself.
func NewIngestError(documentID string, reason models.FailureReason, err error) *IngestError {
	return &IngestError{
		DocumentID: documentID,
		Reason:     reason,
		Transient:  isTransientReason(reason),
		Err:        err,
	}
}

func isTransientReason(r models.FailureReason) bool {
	switch r {
	case models.ReasonStorage, models.ReasonEmbedding, models.ReasonPersistence, models.ReasonTimeout, models.ReasonCanceled:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether re-running ingestion may succeed without the
// document changing.
func IsRetryable(err error) bool {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Transient
	}
	return false
}

// IsPermanent reports whether err is a classified failure that retrying
// cannot fix. Unclassified errors are not permanent.
func IsPermanent(err error) bool {
	var ie *IngestError
	if errors.As(err, &ie) {
		return !ie.Transient
	}
	return errors.Is(err, ErrExtraction) || errors.Is(err, ErrEmptyContent) || errors.Is(err, ErrUnsupportedMediaType)
}

// ReasonOf extracts the failure reason from err, or ReasonNone.
func ReasonOf(err error) models.FailureReason {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Reason
	}
	for reason, sentinel := range reasonSentinels {
		if errors.Is(err, sentinel) {
			return reason
		}
	}
	return models.ReasonNone
}
