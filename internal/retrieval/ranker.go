// Package retrieval ranks vector index hits into a capped, deduplicated
// result set.
package retrieval

import (
	"context"
	"fmt"

	"github.com/relaydesk/knowledge-engine/internal/index"
)

const (
	// DefaultTopK is the result cap when the caller does not choose one.
	DefaultTopK = 5

	// DefaultMinScore is the relevance floor below which hits are dropped.
	DefaultMinScore = 0.30

	// DefaultOverfetchFactor is how many times TopK raw results to pull
	// from the index so post-filtering still fills the cap.
	DefaultOverfetchFactor = 3

	// minOverfetchFactor is the lower bound on the overfetch factor.
	minOverfetchFactor = 2
)

// Config holds ranking parameters. Zero values take the defaults.
type Config struct {
	TopK            int     `yaml:"top_k"`
	MinScore        float64 `yaml:"min_score"`
	OverfetchFactor int     `yaml:"overfetch_factor"`
}

// Ranker queries the index with overfetch, applies the score floor,
// collapses adjacent chunks of one document, and caps the result.
type Ranker struct {
	index index.Index
	cfg   Config
}

func New(idx index.Index, cfg Config) *Ranker {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinScore == 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.OverfetchFactor < minOverfetchFactor {
		cfg.OverfetchFactor = max(DefaultOverfetchFactor, minOverfetchFactor)
	}
	return &Ranker{index: idx, cfg: cfg}
}

// Retrieve returns at most topK results above the score floor, ordered by
// descending similarity. topK <= 0 uses the configured default. An empty
// result is a valid outcome, distinct from an index failure.
func (r *Ranker) Retrieve(ctx context.Context, vector []float32, topK int, filter *index.Filter) ([]index.SearchResult, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	raw, err := r.index.Query(ctx, vector, topK*r.cfg.OverfetchFactor, filter)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	kept := make([]index.SearchResult, 0, topK)
	for _, hit := range raw {
		if hit.Score < r.cfg.MinScore {
			continue
		}
		if shadowedByNeighbor(kept, hit) {
			continue
		}
		kept = append(kept, hit)
		if len(kept) == topK {
			break
		}
	}
	return kept, nil
}

// shadowedByNeighbor reports whether an already-kept chunk of the same
// document is adjacent to hit. Results arrive ordered by score, so the
// kept one always scores at least as high; dropping hit avoids context
// dominated by one document.
func shadowedByNeighbor(kept []index.SearchResult, hit index.SearchResult) bool {
	for _, k := range kept {
		if k.DocumentID != hit.DocumentID {
			continue
		}
		diff := k.ChunkIndex - hit.ChunkIndex
		if diff >= -1 && diff <= 1 {
			return true
		}
	}
	return false
}
