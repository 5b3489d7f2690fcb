// Package engine wires the pipeline into one facade the transports
// share: ingest, delete, search, and grounded question answering.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relaydesk/knowledge-engine/internal/answer"
	"github.com/relaydesk/knowledge-engine/internal/embedding"
	"github.com/relaydesk/knowledge-engine/internal/index"
	"github.com/relaydesk/knowledge-engine/internal/ingest"
	"github.com/relaydesk/knowledge-engine/internal/retrieval"
)

// Engine is the single entry point the HTTP API, MCP server, and CLI
// all call into.
type Engine struct {
	orchestrator *ingest.Orchestrator
	ranker       *retrieval.Ranker
	synthesizer  *answer.Synthesizer
	embedder     *embedding.Embedder
	index        index.Index
	logger       *slog.Logger
}

func New(
	orchestrator *ingest.Orchestrator,
	ranker *retrieval.Ranker,
	synthesizer *answer.Synthesizer,
	embedder *embedding.Embedder,
	idx index.Index,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		orchestrator: orchestrator,
		ranker:       ranker,
		synthesizer:  synthesizer,
		embedder:     embedder,
		index:        idx,
		logger:       logger,
	}
}

// Ingest runs the document pipeline end to end.
func (e *Engine) Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error) {
	return e.orchestrator.Ingest(ctx, req)
}

// Delete removes a document and reports whether it was present.
func (e *Engine) Delete(ctx context.Context, documentID string) (bool, error) {
	return e.orchestrator.Delete(ctx, documentID)
}

// Search embeds the query and returns the ranked results.
func (e *Engine) Search(ctx context.Context, query string, topK int, filter *index.Filter) ([]index.SearchResult, error) {
	vector, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.ranker.Retrieve(ctx, vector, topK, filter)
}

// Ask retrieves relevant chunks and synthesizes a cited answer. When
// the generation provider fails the degraded answer comes back together
// with the error, so callers can serve the sources anyway.
func (e *Engine) Ask(ctx context.Context, query string, filter *index.Filter) (*answer.Answer, error) {
	vector, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	ranked, err := e.ranker.Retrieve(ctx, vector, 0, filter)
	if err != nil {
		return nil, err
	}
	return e.synthesizer.Synthesize(ctx, query, ranked)
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vectors[0], nil
}

// Count reports the number of indexed chunks.
func (e *Engine) Count(ctx context.Context) (uint64, error) {
	return e.index.Count(ctx)
}

// Health checks the index backend.
func (e *Engine) Health(ctx context.Context) error {
	return e.index.Health(ctx)
}

// Close releases the index connection.
func (e *Engine) Close() error {
	return e.index.Close()
}
