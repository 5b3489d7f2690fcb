package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/knowledge-engine/internal/extract"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(parts, " ")
}

func normalized(t *testing.T, text string) *extract.NormalizedText {
	t.Helper()
	nt, err := extract.Extract([]byte(text), extract.SourceText)
	require.NoError(t, err)
	return nt
}

func TestNewRejectsOverlapNotBelowTarget(t *testing.T) {
	_, err := New(Config{TargetTokens: 50, OverlapTokens: 50})
	require.Error(t, err)

	_, err = New(Config{TargetTokens: 50, OverlapTokens: 80})
	require.Error(t, err)

	_, err = New(Config{TargetTokens: 50, OverlapTokens: 10})
	require.NoError(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTargetTokens, c.target)
	assert.Equal(t, DefaultOverlapTokens, c.overlap)
	assert.Equal(t, DefaultLookbackTokens, c.lookback)
}

func TestChunkEmptyTextProducesNoChunks(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Empty(t, c.Chunk(&extract.NormalizedText{Text: ""}))
}

func TestChunkShortDocumentIsSingleChunk(t *testing.T) {
	c, err := New(Config{TargetTokens: 50, OverlapTokens: 10})
	require.NoError(t, err)

	nt := normalized(t, "just a handful of tokens here")
	chunks := c.Chunk(nt)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, nt.Text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(nt.Text), chunks[0].EndOffset)
	assert.Equal(t, 6, chunks[0].TokenCount)
}

func TestChunkFullCoverage(t *testing.T) {
	c, err := New(Config{TargetTokens: 50, OverlapTokens: 10})
	require.NoError(t, err)

	nt := normalized(t, words(237))
	chunks := c.Chunk(nt)
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(nt.Text), chunks[len(chunks)-1].EndOffset)

	// Stitch the chunks back together, dropping each chunk's declared
	// overlap with its predecessor. The result must be the exact text.
	reconstructed := chunks[0].Text
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		require.LessOrEqual(t, cur.StartOffset, prev.EndOffset, "gap between chunks %d and %d", i-1, i)
		shared := prev.EndOffset - cur.StartOffset
		reconstructed += cur.Text[shared:]
	}
	assert.Equal(t, nt.Text, reconstructed)
}

func TestChunkOverlapIsTokenCounted(t *testing.T) {
	c, err := New(Config{TargetTokens: 50, OverlapTokens: 10})
	require.NoError(t, err)

	nt := normalized(t, words(150))
	chunks := c.Chunk(nt)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		shared := nt.Text[chunks[i].StartOffset:chunks[i-1].EndOffset]
		assert.GreaterOrEqual(t, CountTokens(shared), 10,
			"chunks %d and %d share fewer than overlap tokens", i-1, i)
	}
}

func TestChunkDeterministic(t *testing.T) {
	c, err := New(Config{TargetTokens: 40, OverlapTokens: 8})
	require.NoError(t, err)

	nt := normalized(t, words(200))
	first := c.Chunk(nt)
	second := c.Chunk(nt)
	assert.Equal(t, first, second)
}

func TestChunkPrefersParagraphBoundary(t *testing.T) {
	// 45 tokens, a paragraph break, then 30 more. With a 50-token target
	// the hard limit lands mid-paragraph; the boundary at token 45 is
	// inside the lookback window and should win.
	text := words(45) + ".\n\n" + words(30)
	nt := normalized(t, text)

	c, err := New(Config{TargetTokens: 50, OverlapTokens: 5, LookbackTokens: 10})
	require.NoError(t, err)

	chunks := c.Chunk(nt)
	require.Greater(t, len(chunks), 1)

	boundary := strings.Index(nt.Text, "\n\n") + 2
	assert.Equal(t, boundary, chunks[0].EndOffset)
	assert.Equal(t, 45, chunks[0].TokenCount)
}

func TestChunkHardSplitWithoutBoundary(t *testing.T) {
	nt := normalized(t, words(120))

	c, err := New(Config{TargetTokens: 50, OverlapTokens: 10, LookbackTokens: 10})
	require.NoError(t, err)

	chunks := c.Chunk(nt)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, 50, chunks[0].TokenCount)
}

func TestChunkIndexesAreSequential(t *testing.T) {
	c, err := New(Config{TargetTokens: 30, OverlapTokens: 5})
	require.NoError(t, err)

	chunks := c.Chunk(normalized(t, words(100)))
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}
}

func TestChunkIDDeterministicAndDistinct(t *testing.T) {
	a := ChunkID("doc-1", 0)
	b := ChunkID("doc-1", 0)
	c := ChunkID("doc-1", 1)
	d := ChunkID("doc-2", 0)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)

	// Must parse as a UUID so it can serve as a vector index point id.
	assert.Len(t, a, 36)
}
