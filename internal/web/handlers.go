package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docdex/docdex/internal/store"
	"github.com/docdex/docdex/internal/version"
)

// Handler implements the API endpoints.
type Handler struct {
	index *store.Index
}

// NewHandler creates a Handler over an index.
func NewHandler(index *store.Index) *Handler {
	return &Handler{index: index}
}

type addDocumentRequest struct {
	Text     string         `json:"text"`
	Metadata store.Metadata `json:"metadata"`
}

type addDocumentResponse struct {
	DocumentID string      `json:"document_id"`
	Stats      store.Stats `json:"stats"`
}

type removeDocumentResponse struct {
	DocumentID    string `json:"document_id"`
	ChunksRemoved int    `json:"chunks_removed"`
}

type chunksResponse struct {
	DocumentID string   `json:"document_id"`
	Chunks     []string `json:"chunks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// AddDocument indexes the posted text. A document_id is generated when the
// metadata doesn't carry one.
func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	if req.Metadata == nil {
		req.Metadata = store.Metadata{}
	}
	docID, _ := req.Metadata[store.MetaDocumentID].(string)
	if docID == "" {
		docID = uuid.NewString()
		req.Metadata[store.MetaDocumentID] = docID
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	if err := h.index.AddDocument(ctx, req.Text, req.Metadata); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, addDocumentResponse{
		DocumentID: docID,
		Stats:      h.index.Stats(),
	})
}

// Search ranks stored chunks against the q parameter; k defaults to 5.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	k := 5
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
		k = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	results, err := h.index.Search(ctx, query, k)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// RemoveDocument deletes all chunks of the document. Unknown ids return 404.
func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")

	removed, err := h.index.RemoveDocument(r.Context(), docID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if removed == 0 {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, removeDocumentResponse{
		DocumentID:    docID,
		ChunksRemoved: removed,
	})
}

// DocumentChunks returns the first k chunks of a document in storage order.
func (h *Handler) DocumentChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")

	k := 0 // all
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		if parsed, err := strconv.Atoi(kStr); err == nil {
			k = parsed
		}
	}

	chunks := h.index.SimilarChunks(docID, k)
	if chunks == nil {
		chunks = []string{}
	}
	writeJSON(w, http.StatusOK, chunksResponse{
		DocumentID: docID,
		Chunks:     chunks,
	})
}

// Stats reports index statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.index.Stats())
}

// Health is the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Short(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
