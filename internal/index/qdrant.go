package index

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/relaydesk/knowledge-engine/internal/retry"
)

const (
	// DefaultCollection is the Qdrant collection holding all chunks.
	DefaultCollection = "knowledge_chunks"

	// upsertBatchSize bounds points per Upsert call.
	upsertBatchSize = 100
)

// QdrantConfig configures the Qdrant-backed index.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimension  int
	Policy     retry.Policy
}

// Qdrant implements Index on a Qdrant server over gRPC.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimension  int
	policy     retry.Policy
}

// NewQdrant connects to Qdrant and fails fast if it is unreachable: the
// initial health check retries with exponential backoff before giving up.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Policy == (retry.Policy{}) {
		cfg.Policy = retry.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	q := &Qdrant{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		policy:     cfg.Policy,
	}

	ctx := context.Background()
	if err := q.policy.Do(ctx, func() error { return q.Health(ctx) }); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return q, nil
}

// Health performs a single health check against Qdrant.
func (q *Qdrant) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance and the
// payload indexes filtering depends on. Idempotent.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == q.collection {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// Without these indexes filtered queries degrade badly.
	for _, field := range []string{"document_id", "category", "tags"} {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create index for field %s: %w", field, err)
		}
	}

	return nil
}

// Upsert writes points in batches, replacing any prior entry with the
// same id. Writes wait for commit so a same-session query observes them.
func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	for i, p := range points {
		if len(p.Vector) != q.dimension {
			return fmt.Errorf("%w: point %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(p.Vector), q.dimension)
		}
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))

		batch := make([]*qdrant.PointStruct, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrant.NewValueMap(pointPayload(p)),
			})
		}

		err := q.policy.Do(ctx, func() error {
			_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: q.collection,
				Points:         batch,
				Wait:           qdrant.PtrOf(true),
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: upsert batch %d-%d: %v", ErrUnavailable, start, end, err)
		}
	}

	return nil
}

func pointPayload(p Point) map[string]any {
	tags := make([]any, len(p.Meta.Tags))
	for i, tag := range p.Meta.Tags {
		tags[i] = tag
	}
	return map[string]any{
		"document_id":  p.DocumentID,
		"chunk_index":  p.ChunkIndex,
		"text":         p.Text,
		"token_count":  p.TokenCount,
		"start_offset": p.StartOffset,
		"end_offset":   p.EndOffset,
		"title":        p.Meta.Title,
		"category":     p.Meta.Category,
		"tags":         tags,
		"author":       p.Meta.Author,
		"ingested_at":  p.Meta.IngestedAt.UTC().Format(time.RFC3339),
	}
}

// DeleteByDocument removes every chunk belonging to the document.
func (q *Qdrant) DeleteByDocument(ctx context.Context, documentID string) error {
	err := q.policy.Do(ctx, func() error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.collection,
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{
					qdrant.NewMatch("document_id", documentID),
				},
			}),
			Wait: qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %v", ErrUnavailable, documentID, err)
	}
	return nil
}

// HasDocument reports whether any chunk of the document is indexed.
func (q *Qdrant) HasDocument(ctx context.Context, documentID string) (bool, error) {
	results, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		},
		Limit:       qdrant.PtrOf(uint32(1)),
		WithPayload: qdrant.NewWithPayload(false),
	})
	if err != nil {
		return false, fmt.Errorf("%w: scroll document %s: %v", ErrUnavailable, documentID, err)
	}
	return len(results) > 0, nil
}

// Query returns up to limit results ordered by descending cosine
// similarity, optionally restricted by filter.
func (q *Qdrant) Query(ctx context.Context, vector []float32, limit int, filter *Filter) ([]SearchResult, error) {
	if len(vector) != q.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), q.dimension)
	}

	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrUnavailable, err)
	}

	hits := make([]SearchResult, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		hits = append(hits, SearchResult{
			ChunkID:    result.Id.GetUuid(),
			DocumentID: payload["document_id"].GetStringValue(),
			ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
			Title:      payload["title"].GetStringValue(),
			Text:       payload["text"].GetStringValue(),
			Score:      float64(result.Score),
		})
	}
	return hits, nil
}

func qdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	var must []*qdrant.Condition
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatch("document_id", f.DocumentID))
	}
	if f.Category != "" {
		must = append(must, qdrant.NewMatch("category", f.Category))
	}
	for _, tag := range f.Tags {
		must = append(must, qdrant.NewMatch("tags", tag))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Count returns the number of indexed chunks.
func (q *Qdrant) Count(ctx context.Context) (uint64, error) {
	collection, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("%w: get collection: %v", ErrUnavailable, err)
	}
	return collection.GetPointsCount(), nil
}

// Close closes the gRPC connection.
func (q *Qdrant) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
