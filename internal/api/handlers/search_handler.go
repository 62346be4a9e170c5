package handlers

import (
	"encoding/json"
	"net/http"

	middleware "github.com/markdave123-py/Studyhall/internal/api/middlewares"
	"github.com/markdave123-py/Studyhall/internal/models"
	"github.com/markdave123-py/Studyhall/internal/services"
)

type SearchHandler struct {
	docs DocumentService
}

func NewSearchHandler(docs DocumentService) *SearchHandler {
	return &SearchHandler{docs: docs}
}

type SearchRequest struct {
	ClassID string `json:"classId"`
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
}

type searchResponse struct {
	Results []models.DocumentChunk `json:"results"`
}

// Search returns the chunks of the caller's documents closest to the query.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	chunks, err := h.docs.Search(r.Context(), services.SearchInput{
		UserID:  userID,
		ClassID: req.ClassID,
		Query:   req.Query,
		Limit:   req.Limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: chunks})
}
