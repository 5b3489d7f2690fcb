// Package embedding turns chunk and query text into fixed-dimension
// vectors via an external provider, with batching, retries, and a
// content-hash cache.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/relaydesk/knowledge-engine/internal/retry"
)

const (
	// DefaultModel is the OpenAI model used for embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector size of text-embedding-3-small.
	DefaultDimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute
	// rate limits.
	DefaultBatchSize = 500
)

// Provider performs one embedding API call for a batch of texts.
type Provider interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds Embedder tuning. Zero values take the defaults; a nil
// Cache disables caching.
type Config struct {
	BatchSize int
	Dimension int
	Cache     Cache
	Policy    retry.Policy
}

// Embedder batches texts to a Provider, retries transient failures with
// exponential backoff, and serves repeated texts from the cache. The
// vector dimensionality is constant for the lifetime of the index; a
// mismatch is fatal, not retried.
type Embedder struct {
	provider  Provider
	batchSize int
	dimension int
	cache     Cache
	policy    retry.Policy
}

func NewEmbedder(provider Provider, cfg Config) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Policy == (retry.Policy{}) {
		cfg.Policy = retry.Default()
	}
	return &Embedder{
		provider:  provider,
		batchSize: cfg.BatchSize,
		dimension: cfg.Dimension,
		cache:     cfg.Cache,
		policy:    cfg.Policy,
	}
}

// Dimension reports the vector size this embedder is configured for.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed returns one vector per input text, in order. Cached texts are
// served without a provider call; the rest go out in batches.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))

	var misses []int
	for i, text := range texts {
		if e.cache != nil {
			if v, ok := e.cache.Get(Key(text)); ok {
				result[i] = v
				continue
			}
		}
		misses = append(misses, i)
	}

	for start := 0; start < len(misses); start += e.batchSize {
		end := min(start+e.batchSize, len(misses))
		indices := misses[start:end]

		batch := make([]string, len(indices))
		for j, idx := range indices {
			batch[j] = texts[idx]
		}

		vectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}

		for j, idx := range indices {
			result[idx] = vectors[j]
			if e.cache != nil {
				e.cache.Put(Key(texts[idx]), vectors[j])
			}
		}
	}

	return result, nil
}

// embedBatch calls the provider for one batch under the retry policy.
// Transient errors are retried; everything else fails immediately.
func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32

	op := func() error {
		out, err := e.provider.CreateEmbeddings(ctx, batch)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(out) != len(batch) {
			return backoff.Permanent(fmt.Errorf("provider returned %d vectors for %d inputs", len(out), len(batch)))
		}
		for i, v := range out {
			if len(v) != e.dimension {
				return backoff.Permanent(fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
					ErrDimensionMismatch, i, len(v), e.dimension))
			}
		}
		vectors = out
		return nil
	}

	if err := e.policy.Do(ctx, op); err != nil {
		if errors.Is(err, ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return vectors, nil
}
