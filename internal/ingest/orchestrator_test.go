package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/knowledge-engine/internal/chunker"
	"github.com/relaydesk/knowledge-engine/internal/embedding"
	"github.com/relaydesk/knowledge-engine/internal/extract"
	"github.com/relaydesk/knowledge-engine/internal/index"
	"github.com/relaydesk/knowledge-engine/internal/retry"
)

const testDimension = 4

// stubProvider returns deterministic vectors, optionally failing first.
type stubProvider struct {
	mu   sync.Mutex
	fail error
}

func (p *stubProvider) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, testDimension)
		for j, r := range text {
			v[j%testDimension] += float32(r)
		}
		out[i] = v
	}
	return out, nil
}

func newOrchestrator(t *testing.T, provider embedding.Provider, idx index.Index) *Orchestrator {
	t.Helper()
	c, err := chunker.New(chunker.Config{TargetTokens: 20, OverlapTokens: 4, LookbackTokens: 8})
	require.NoError(t, err)
	e := embedding.NewEmbedder(provider, embedding.Config{
		Dimension: testDimension,
		Policy: retry.Policy{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			MaxElapsedTime:  20 * time.Millisecond,
		},
	})
	return NewOrchestrator(c, e, idx, nil)
}

func textRequest(docID, content string) Request {
	return Request{
		DocumentID: docID,
		Content:    []byte(content),
		SourceType: extract.SourceText,
		Meta:       Meta{Title: "Doc " + docID, Category: "kb"},
	}
}

func longText(paragraphs int) string {
	var s string
	for p := 0; p < paragraphs; p++ {
		for w := 0; w < 30; w++ {
			s += fmt.Sprintf("p%dw%d ", p, w)
		}
		s += "\n\n"
	}
	return s
}

func TestIngestWritesChunks(t *testing.T) {
	idx := index.NewMemory()
	o := newOrchestrator(t, &stubProvider{}, idx)

	res, err := o.Ingest(context.Background(), textRequest("d1", longText(3)))
	require.NoError(t, err)
	assert.False(t, res.Replaced)
	assert.Greater(t, res.ChunksWritten, 1)

	count, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(res.ChunksWritten), count)
}

func TestIngestIsIdempotent(t *testing.T) {
	idx := index.NewMemory()
	o := newOrchestrator(t, &stubProvider{}, idx)
	ctx := context.Background()

	first, err := o.Ingest(ctx, textRequest("d1", longText(3)))
	require.NoError(t, err)

	second, err := o.Ingest(ctx, textRequest("d1", longText(3)))
	require.NoError(t, err)
	assert.True(t, second.Replaced)
	assert.Equal(t, first.ChunksWritten, second.ChunksWritten)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(first.ChunksWritten), count)
}

func TestIngestShrinkingDocumentLeavesNoStaleChunks(t *testing.T) {
	idx := index.NewMemory()
	o := newOrchestrator(t, &stubProvider{}, idx)
	ctx := context.Background()

	big, err := o.Ingest(ctx, textRequest("d1", longText(5)))
	require.NoError(t, err)

	small, err := o.Ingest(ctx, textRequest("d1", "just a few words now"))
	require.NoError(t, err)
	assert.True(t, small.Replaced)
	assert.Less(t, small.ChunksWritten, big.ChunksWritten)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(small.ChunksWritten), count)
}

func TestIngestEmbeddingFailureLeavesIndexUntouched(t *testing.T) {
	idx := index.NewMemory()
	provider := &stubProvider{}
	o := newOrchestrator(t, provider, idx)
	ctx := context.Background()

	_, err := o.Ingest(ctx, textRequest("d1", longText(3)))
	require.NoError(t, err)
	before, err := idx.Count(ctx)
	require.NoError(t, err)

	provider.mu.Lock()
	provider.fail = errors.New("provider down")
	provider.mu.Unlock()

	_, err = o.Ingest(ctx, textRequest("d1", longText(4)))
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrUnavailable)

	after, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	o := newOrchestrator(t, &stubProvider{}, index.NewMemory())

	_, err := o.Ingest(context.Background(), textRequest("d1", "   \n\n  "))
	assert.Error(t, err)
}

func TestIngestRejectsEmptyDocumentID(t *testing.T) {
	o := newOrchestrator(t, &stubProvider{}, index.NewMemory())

	_, err := o.Ingest(context.Background(), textRequest("", "some content"))
	assert.Error(t, err)
}

func TestIngestConcurrentSameDocument(t *testing.T) {
	idx := index.NewMemory()
	o := newOrchestrator(t, &stubProvider{}, idx)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.Ingest(ctx, textRequest("d1", longText(3)))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	res, err := o.Ingest(ctx, textRequest("d1", longText(3)))
	require.NoError(t, err)
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(res.ChunksWritten), count)
}

func TestDeleteRemovesDocument(t *testing.T) {
	idx := index.NewMemory()
	o := newOrchestrator(t, &stubProvider{}, idx)
	ctx := context.Background()

	_, err := o.Ingest(ctx, textRequest("d1", longText(2)))
	require.NoError(t, err)

	present, err := o.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, present)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	present, err = o.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestDeriveDocumentIDIsStable(t *testing.T) {
	a := DeriveDocumentID("docs/refunds.md")
	b := DeriveDocumentID("docs/refunds.md")
	c := DeriveDocumentID("docs/shipping.md")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}
