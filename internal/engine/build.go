package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relaydesk/knowledge-engine/internal/answer"
	"github.com/relaydesk/knowledge-engine/internal/chunker"
	"github.com/relaydesk/knowledge-engine/internal/config"
	"github.com/relaydesk/knowledge-engine/internal/embedding"
	"github.com/relaydesk/knowledge-engine/internal/index"
	"github.com/relaydesk/knowledge-engine/internal/ingest"
	"github.com/relaydesk/knowledge-engine/internal/retrieval"
)

// FromConfig assembles a ready Engine from configuration: OpenAI client,
// index backend (with the collection ensured), and the pipeline stages.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := embedding.NewClient()
	if err != nil {
		return nil, err
	}

	var cache embedding.Cache
	if cfg.Embedding.CacheEnabled {
		cache = embedding.NewMemoryCache()
	}

	provider := embedding.NewOpenAIProvider(client, cfg.Embedding.Model)
	embedder := embedding.NewEmbedder(provider, embedding.Config{
		BatchSize: cfg.Embedding.BatchSize,
		Dimension: cfg.Embedding.Dimension,
		Cache:     cache,
	})

	idx, err := buildIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c, err := chunker.New(cfg.Chunking)
	if err != nil {
		idx.Close()
		return nil, err
	}

	generator := answer.NewOpenAIGenerator(client.Client(), cfg.Generation.Model)
	synthesizer := answer.NewSynthesizer(generator, answer.Config{
		MaxContextTokens: cfg.Generation.MaxContextTokens,
		MaxOutputTokens:  cfg.Generation.MaxOutputTokens,
	})

	orchestrator := ingest.NewOrchestrator(c, embedder, idx, logger)
	ranker := retrieval.New(idx, cfg.Retrieval)

	logger.Info("engine ready",
		"index", cfg.Index.Type,
		"embedding_model", cfg.Embedding.Model,
		"generation_model", cfg.Generation.Model)

	return New(orchestrator, ranker, synthesizer, embedder, idx, logger), nil
}

func buildIndex(ctx context.Context, cfg *config.Config) (index.Index, error) {
	switch cfg.Index.Type {
	case config.IndexMemory:
		return index.NewMemory(), nil
	case config.IndexQdrant:
		q, err := index.NewQdrant(index.QdrantConfig{
			Host:       cfg.Index.Qdrant.Host,
			Port:       cfg.Index.Qdrant.Port,
			Collection: cfg.Index.Qdrant.Collection,
			Dimension:  cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		if err := q.EnsureCollection(ctx); err != nil {
			q.Close()
			return nil, fmt.Errorf("ensure collection: %w", err)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown index type %q", cfg.Index.Type)
	}
}
