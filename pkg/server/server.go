// Package server exposes the memory system as a small JSON HTTP API,
// mirroring the CLI operations: store, search (raw), query (synthesized)
// and count.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

type server struct {
	uc *memory.UseCase
}

// New returns the HTTP handler for the memory API
func New(uc *memory.UseCase) http.Handler {
	s := &server{uc: uc}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/memories", s.handleStore)
	mux.HandleFunc("POST /v1/memories/search", s.handleSearch)
	mux.HandleFunc("POST /v1/memories/query", s.handleQuery)
	mux.HandleFunc("GET /v1/memories/count", s.handleCount)
	return mux
}

type storeRequest struct {
	Text     string         `json:"text"`
	Tags     []string       `json:"tags,omitempty"`
	Metadata model.Metadata `json:"metadata,omitempty"`
}

type storeResponse struct {
	MemoryID      string `json:"memory_id"`
	ChunksCreated int    `json:"chunks_created"`
}

type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type resultItem struct {
	MemoryID   string         `json:"memory_id"`
	ChunkID    string         `json:"chunk_id"`
	ChunkIndex int            `json:"chunk_index"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Metadata   model.Metadata `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type searchResponse struct {
	Results []resultItem `json:"results"`
}

type queryResponse struct {
	Answer   string       `json:"answer,omitempty"`
	Results  []resultItem `json:"results"`
	Degraded bool         `json:"degraded,omitempty"`
	Warning  string       `json:"warning,omitempty"`
}

type countResponse struct {
	TotalChunks int `json:"total_chunks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	m, err := s.uc.Store(r.Context(), memory.StoreInput{
		Text:     req.Text,
		Tags:     req.Tags,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, r, "store", err)
		return
	}

	writeJSON(w, http.StatusCreated, storeResponse{
		MemoryID:      string(m.ID),
		ChunksCreated: len(m.Chunks),
	})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	out, err := s.uc.Query(r.Context(), memory.QueryInput{
		Question: req.Query,
		Raw:      true,
		Limit:    req.Limit,
	})
	if err != nil {
		writeError(w, r, "search", err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: toResultItems(out.Results)})
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	out, err := s.uc.Query(r.Context(), memory.QueryInput{
		Question: req.Query,
		Limit:    req.Limit,
	})
	if err != nil {
		writeError(w, r, "query", err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:   out.Answer,
		Results:  toResultItems(out.Results),
		Degraded: out.Degraded,
		Warning:  out.Warning,
	})
}

func (s *server) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.uc.Count(r.Context())
	if err != nil {
		writeError(w, r, "count", err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{TotalChunks: count})
}

func toResultItems(results []*model.SearchResult) []resultItem {
	items := make([]resultItem, 0, len(results))
	for _, r := range results {
		items = append(items, resultItem{
			MemoryID:   string(r.Chunk.MemoryID),
			ChunkID:    string(r.Chunk.ID),
			ChunkIndex: r.Chunk.Index,
			Text:       r.Chunk.Text,
			Score:      r.Score,
			Metadata:   r.Metadata,
			CreatedAt:  r.CreatedAt,
		})
	}
	return items
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	if goerr.HasTag(err, model.ErrTagInput) {
		status = http.StatusBadRequest
	}

	logging.From(r.Context()).Error("request failed", "operation", op, "error", err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
