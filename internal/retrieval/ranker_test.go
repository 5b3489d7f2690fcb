package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/knowledge-engine/internal/index"
)

// fakeIndex returns canned results and records the requested limit.
type fakeIndex struct {
	index.Index

	results   []index.SearchResult
	err       error
	lastLimit int
}

func (f *fakeIndex) Query(_ context.Context, _ []float32, limit int, _ *index.Filter) ([]index.SearchResult, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func hit(doc string, chunkIndex int, score float64) index.SearchResult {
	return index.SearchResult{
		ChunkID:    doc + "-" + string(rune('a'+chunkIndex)),
		DocumentID: doc,
		ChunkIndex: chunkIndex,
		Score:      score,
	}
}

func TestRetrieveOverfetchesFromIndex(t *testing.T) {
	idx := &fakeIndex{}
	r := New(idx, Config{TopK: 5, OverfetchFactor: 3})

	_, err := r.Retrieve(context.Background(), []float32{1}, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 15, idx.lastLimit)
}

func TestRetrieveDropsBelowMinScore(t *testing.T) {
	idx := &fakeIndex{results: []index.SearchResult{
		hit("d1", 0, 0.92),
		hit("d2", 0, 0.55),
		hit("d3", 0, 0.12),
	}}
	r := New(idx, Config{MinScore: 0.30})

	results, err := r.Retrieve(context.Background(), []float32{1}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "d1", results[0].DocumentID)
	assert.Equal(t, "d2", results[1].DocumentID)
}

func TestRetrieveCollapsesAdjacentChunks(t *testing.T) {
	idx := &fakeIndex{results: []index.SearchResult{
		hit("d1", 3, 0.95),
		hit("d1", 4, 0.90), // adjacent to kept chunk 3, dropped
		hit("d1", 2, 0.85), // adjacent to kept chunk 3, dropped
		hit("d2", 0, 0.80),
		hit("d1", 7, 0.75), // same doc but not adjacent, kept
	}}
	r := New(idx, Config{})

	results, err := r.Retrieve(context.Background(), []float32{1}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 3, results[0].ChunkIndex)
	assert.Equal(t, "d2", results[1].DocumentID)
	assert.Equal(t, 7, results[2].ChunkIndex)
}

func TestRetrieveKeepsAdjacentChunksOfDifferentDocuments(t *testing.T) {
	idx := &fakeIndex{results: []index.SearchResult{
		hit("d1", 0, 0.9),
		hit("d2", 1, 0.8),
	}}
	r := New(idx, Config{})

	results, err := r.Retrieve(context.Background(), []float32{1}, 5, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	var canned []index.SearchResult
	for i := 0; i < 9; i++ {
		canned = append(canned, hit("doc-"+string(rune('a'+i)), 0, 0.9-float64(i)*0.05))
	}
	idx := &fakeIndex{results: canned}
	r := New(idx, Config{})

	results, err := r.Retrieve(context.Background(), []float32{1}, 3, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRetrieveZeroTopKUsesDefault(t *testing.T) {
	idx := &fakeIndex{}
	r := New(idx, Config{})

	_, err := r.Retrieve(context.Background(), []float32{1}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK*DefaultOverfetchFactor, idx.lastLimit)
}

func TestRetrieveEmptyResultIsNotAnError(t *testing.T) {
	idx := &fakeIndex{results: []index.SearchResult{hit("d1", 0, 0.05)}}
	r := New(idx, Config{})

	results, err := r.Retrieve(context.Background(), []float32{1}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrievePropagatesIndexError(t *testing.T) {
	idx := &fakeIndex{err: index.ErrUnavailable}
	r := New(idx, Config{})

	_, err := r.Retrieve(context.Background(), []float32{1}, 5, nil)
	assert.True(t, errors.Is(err, index.ErrUnavailable))
}
