// Package index provides the persistent vector index: chunk identity to
// (vector, metadata, source text), with nearest-neighbor query.
package index

import (
	"context"
	"time"
)

// Meta is the denormalized document metadata carried on every point so
// queries can filter without a join against the host persistence layer.
type Meta struct {
	Title      string
	Category   string
	Tags       []string
	Author     string
	IngestedAt time.Time
}

// Point is one indexed chunk.
type Point struct {
	ID          string // UUID, deterministic per (document, chunk index)
	DocumentID  string
	ChunkIndex  int
	Text        string
	TokenCount  int
	StartOffset int
	EndOffset   int
	Vector      []float32
	Meta        Meta
}

// SearchResult is one query hit, ordered by descending similarity.
type SearchResult struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Title      string
	Text       string
	Score      float64
}

// Filter restricts a query to matching points. Zero fields are ignored;
// every listed tag must be present.
type Filter struct {
	DocumentID string
	Category   string
	Tags       []string
}

// Index is the vector store contract. Upsert is idempotent by Point.ID;
// after DeleteByDocument(d) no query may return a result for d.
type Index interface {
	Upsert(ctx context.Context, points []Point) error
	DeleteByDocument(ctx context.Context, documentID string) error
	HasDocument(ctx context.Context, documentID string) (bool, error)
	Query(ctx context.Context, vector []float32, limit int, filter *Filter) ([]SearchResult, error)
	Count(ctx context.Context) (uint64, error)
	Health(ctx context.Context) error
	Close() error
}
