package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/Studyhall/internal/api/middlewares"
	"github.com/markdave123-py/Studyhall/internal/core/ingestion_engine"
	"github.com/markdave123-py/Studyhall/internal/models"
	"github.com/markdave123-py/Studyhall/internal/services"
)

const maxUploadBytes = 50 << 20

// DocumentService is what the HTTP layer needs from services.DocumentService.
type DocumentService interface {
	Upload(ctx context.Context, in services.UploadInput) (*models.Document, error)
	Get(ctx context.Context, userID, id string) (*models.Document, error)
	ListByClass(ctx context.Context, userID, classID string) ([]models.Document, error)
	Process(ctx context.Context, userID, id string) (int, error)
	Delete(ctx context.Context, userID, id string) error
	Search(ctx context.Context, in services.SearchInput) ([]models.DocumentChunk, error)
}

var _ DocumentService = (*services.DocumentService)(nil)

type DocumentHandler struct {
	docs DocumentService
}

func NewDocumentHandler(docs DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

type processRequest struct {
	DocumentID string `json:"documentId"`
}

type processResponse struct {
	Success         bool `json:"success"`
	ChunksProcessed int  `json:"chunksProcessed"`
}

// ProcessDocument runs ingestion synchronously and reports the chunk count.
func (h *DocumentHandler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.DocumentID) == "" {
		writeError(w, http.StatusBadRequest, "documentId is required")
		return
	}

	n, err := h.docs.Process(r.Context(), userID, req.DocumentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{Success: true, ChunksProcessed: n})
}

// UploadDocument stores a PDF and schedules background ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file")
		return
	}
	defer file.Close()

	contentType, err := detectContentType(file, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}

	doc, err := h.docs.Upload(r.Context(), services.UploadInput{
		UserID:      userID,
		ClassID:     r.FormValue("class_id"),
		FileName:    filepath.Base(header.Filename),
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

// detectContentType trusts the declared type when it is a PDF and sniffs
// the first bytes otherwise. Browsers often send application/octet-stream.
func detectContentType(f io.ReadSeeker, declared string) (string, error) {
	if ingestion_engine.IsSupportedMediaType(declared) {
		return ingestion_engine.MediaTypePDF, nil
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if sniffed := http.DetectContentType(head[:n]); ingestion_engine.IsSupportedMediaType(sniffed) {
		return ingestion_engine.MediaTypePDF, nil
	}
	if declared == "" {
		declared = "application/octet-stream"
	}
	return declared, nil
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	documents, err := h.docs.ListByClass(r.Context(), userID, r.URL.Query().Get("class_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

// GetDocument returns one document, including its status and failure reason.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	doc, err := h.docs.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	if err := h.docs.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
