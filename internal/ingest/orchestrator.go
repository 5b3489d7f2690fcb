// Package ingest runs the document pipeline: extract, chunk, embed,
// index. Re-ingesting a document id replaces its chunks atomically from
// the caller's point of view.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/knowledge-engine/internal/chunker"
	"github.com/relaydesk/knowledge-engine/internal/embedding"
	"github.com/relaydesk/knowledge-engine/internal/extract"
	"github.com/relaydesk/knowledge-engine/internal/index"
)

// documentNamespace is the fixed UUIDv5 namespace for ids derived from
// an external source identifier.
var documentNamespace = uuid.MustParse("c2b7e6a1-8f04-4d3b-b5a9-61e7d0f42c88")

// Meta is caller-supplied document metadata, denormalized onto every
// chunk so filtered queries need no join.
type Meta struct {
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Author   string   `json:"author"`
	Tags     []string `json:"tags"`
}

// Request describes one document to ingest.
type Request struct {
	DocumentID string             `json:"document_id"`
	Content    []byte             `json:"content"`
	SourceType extract.SourceType `json:"source_type"`
	Meta       Meta               `json:"meta"`
}

// Result reports what an ingestion wrote.
type Result struct {
	DocumentID    string `json:"document_id"`
	ChunksWritten int    `json:"chunks_written"`
	Replaced      bool   `json:"replaced"`
}

// Orchestrator coordinates the pipeline stages. Concurrent ingests of
// different documents run in parallel; ingests of the same document are
// serialized.
type Orchestrator struct {
	chunker  *chunker.Chunker
	embedder *embedding.Embedder
	index    index.Index
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewOrchestrator(c *chunker.Chunker, e *embedding.Embedder, idx index.Index, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		chunker:  c,
		embedder: e,
		index:    idx,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// docLock returns the mutex serializing writes for one document id.
func (o *Orchestrator) docLock(documentID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[documentID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[documentID] = l
	}
	return l
}

// Ingest runs the full pipeline for one document. All chunks are
// embedded before any index write happens, so an embedding failure
// leaves the prior version of the document intact.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("document id must not be empty")
	}

	lock := o.docLock(req.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	nt, err := extract.Extract(req.Content, req.SourceType)
	if err != nil {
		return nil, fmt.Errorf("extract document %s: %w", req.DocumentID, err)
	}

	chunks := o.chunker.Chunk(nt)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s has no content after normalization", req.DocumentID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", req.DocumentID, err)
	}

	replaced, err := o.index.HasDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("check document %s: %w", req.DocumentID, err)
	}

	// Delete first so shrinking documents leave no stale trailing chunks.
	if replaced {
		if err := o.index.DeleteByDocument(ctx, req.DocumentID); err != nil {
			return nil, fmt.Errorf("replace document %s: %w", req.DocumentID, err)
		}
	}

	ingestedAt := time.Now().UTC()
	points := make([]index.Point, len(chunks))
	for i, c := range chunks {
		points[i] = index.Point{
			ID:          chunker.ChunkID(req.DocumentID, c.Index),
			DocumentID:  req.DocumentID,
			ChunkIndex:  c.Index,
			Text:        c.Text,
			TokenCount:  c.TokenCount,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			Vector:      vectors[i],
			Meta: index.Meta{
				Title:      req.Meta.Title,
				Category:   req.Meta.Category,
				Tags:       req.Meta.Tags,
				Author:     req.Meta.Author,
				IngestedAt: ingestedAt,
			},
		}
	}

	if err := o.index.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("index document %s: %w", req.DocumentID, err)
	}

	o.logger.Info("document ingested",
		"document_id", req.DocumentID,
		"chunks", len(points),
		"replaced", replaced)

	return &Result{
		DocumentID:    req.DocumentID,
		ChunksWritten: len(points),
		Replaced:      replaced,
	}, nil
}

// Delete removes every chunk of the document. The bool reports whether
// the document was present.
func (o *Orchestrator) Delete(ctx context.Context, documentID string) (bool, error) {
	lock := o.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	present, err := o.index.HasDocument(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("check document %s: %w", documentID, err)
	}
	if !present {
		return false, nil
	}
	if err := o.index.DeleteByDocument(ctx, documentID); err != nil {
		return false, fmt.Errorf("delete document %s: %w", documentID, err)
	}

	o.logger.Info("document deleted", "document_id", documentID)
	return true, nil
}

// DeriveDocumentID maps an external source identifier, such as a file
// path or URL, to a stable document id.
func DeriveDocumentID(source string) string {
	return uuid.NewSHA1(documentNamespace, []byte(source)).String()
}
