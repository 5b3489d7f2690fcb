// Package httpapi exposes the knowledge engine over a JSON REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/relaydesk/knowledge-engine/internal/answer"
	"github.com/relaydesk/knowledge-engine/internal/embedding"
	"github.com/relaydesk/knowledge-engine/internal/engine"
	"github.com/relaydesk/knowledge-engine/internal/extract"
	"github.com/relaydesk/knowledge-engine/internal/index"
	"github.com/relaydesk/knowledge-engine/internal/ingest"
)

// API holds the HTTP handlers for the engine.
type API struct {
	engine *engine.Engine
	logger *slog.Logger
}

func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{engine: eng, logger: logger}
}

// Register mounts all routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/ingest", a.handleIngest)
	mux.HandleFunc("DELETE /v1/documents/{id}", a.handleDelete)
	mux.HandleFunc("POST /v1/search", a.handleSearch)
	mux.HandleFunc("POST /v1/ask", a.handleAsk)
	mux.HandleFunc("GET /health", a.handleHealth)
}

type ingestRequest struct {
	DocumentID string      `json:"document_id"`
	Content    string      `json:"content"`
	SourceType string      `json:"source_type"`
	Meta       ingest.Meta `json:"meta"`
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DocumentID == "" || req.Content == "" {
		a.writeError(w, http.StatusBadRequest, "document_id and content are required")
		return
	}

	sourceType := extract.SourceText
	if req.SourceType != "" {
		var err error
		sourceType, err = extract.ParseSourceType(req.SourceType)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := a.engine.Ingest(r.Context(), ingest.Request{
		DocumentID: req.DocumentID,
		Content:    []byte(req.Content),
		SourceType: sourceType,
		Meta:       req.Meta,
	})
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

type deleteResponse struct {
	DocumentID string `json:"document_id"`
	Found      bool   `json:"found"`
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := a.engine.Delete(r.Context(), id)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	status := http.StatusOK
	if !found {
		status = http.StatusNotFound
	}
	a.writeJSON(w, status, deleteResponse{DocumentID: id, Found: found})
}

type searchRequest struct {
	Query    string   `json:"query"`
	TopK     int      `json:"top_k"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

type searchResponse struct {
	Results []index.SearchResult `json:"results"`
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		a.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := a.engine.Search(r.Context(), req.Query, req.TopK, searchFilter(req.Category, req.Tags))
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	a.writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

type askRequest struct {
	Question string   `json:"question"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

type askResponse struct {
	Answer    string               `json:"answer"`
	Citations []answer.Citation    `json:"citations"`
	Sources   []index.SearchResult `json:"sources"`
	Degraded  bool                 `json:"degraded,omitempty"`
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Question == "" {
		a.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ans, err := a.engine.Ask(r.Context(), req.Question, searchFilter(req.Category, req.Tags))
	if err != nil && !errors.Is(err, answer.ErrProvider) {
		a.writeEngineError(w, err)
		return
	}

	resp := askResponse{
		Answer:    ans.Text,
		Citations: ans.Citations,
		Sources:   ans.Sources,
		Degraded:  errors.Is(err, answer.ErrProvider),
	}
	if resp.Citations == nil {
		resp.Citations = []answer.Citation{}
	}
	if resp.Sources == nil {
		resp.Sources = []index.SearchResult{}
	}
	a.writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status string `json:"status"`
	Index  string `json:"index"`
	Chunks uint64 `json:"chunks"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Health(r.Context()); err != nil {
		a.writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status: "unhealthy",
			Index:  "disconnected",
		})
		return
	}
	count, _ := a.engine.Count(r.Context())
	a.writeJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		Index:  "connected",
		Chunks: count,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeEngineError maps pipeline failures to HTTP status codes: bad
// input is the client's fault, unavailable backends are 503.
func (a *API) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat),
		errors.Is(err, extract.ErrExtractionFailed):
		a.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, embedding.ErrUnavailable),
		errors.Is(err, index.ErrUnavailable):
		a.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, embedding.ErrDimensionMismatch),
		errors.Is(err, index.ErrDimensionMismatch):
		a.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		a.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Error: msg})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("write response", "error", err)
	}
}

func searchFilter(category string, tags []string) *index.Filter {
	if category == "" && len(tags) == 0 {
		return nil
	}
	return &index.Filter{Category: category, Tags: tags}
}
