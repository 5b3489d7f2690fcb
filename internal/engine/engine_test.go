package engine

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/knowledge-engine/internal/answer"
	"github.com/relaydesk/knowledge-engine/internal/chunker"
	"github.com/relaydesk/knowledge-engine/internal/embedding"
	"github.com/relaydesk/knowledge-engine/internal/extract"
	"github.com/relaydesk/knowledge-engine/internal/index"
	"github.com/relaydesk/knowledge-engine/internal/ingest"
	"github.com/relaydesk/knowledge-engine/internal/retrieval"
	"github.com/relaydesk/knowledge-engine/internal/retry"
)

const testDimension = 16

// bagProvider embeds text as a normalized bag-of-words hash so that
// texts sharing vocabulary score high cosine similarity. Deterministic
// and offline, but preserves the relevance ordering the ranker needs.
type bagProvider struct{}

func (bagProvider) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, testDimension)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(strings.Trim(word, ".,!?")))
			v[h.Sum32()%testDimension]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for j := range v {
				v[j] *= scale
			}
		}
		out[i] = v
	}
	return out, nil
}

// echoGenerator cites the first source and records invocations.
type echoGenerator struct {
	calls int
}

func (g *echoGenerator) Complete(_ context.Context, _ string, _ int) (string, error) {
	g.calls++
	return "Refunds are processed within five business days [1].", nil
}

func newTestEngine(t *testing.T, gen answer.Generator) *Engine {
	t.Helper()

	c, err := chunker.New(chunker.Config{TargetTokens: 50, OverlapTokens: 10, LookbackTokens: 20})
	require.NoError(t, err)

	embedder := embedding.NewEmbedder(bagProvider{}, embedding.Config{
		Dimension: testDimension,
		Policy: retry.Policy{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			MaxElapsedTime:  20 * time.Millisecond,
		},
	})

	idx := index.NewMemory()
	orchestrator := ingest.NewOrchestrator(c, embedder, idx, nil)
	ranker := retrieval.New(idx, retrieval.Config{MinScore: 0.05})
	synthesizer := answer.NewSynthesizer(gen, answer.Config{})

	return New(orchestrator, ranker, synthesizer, embedder, idx, nil)
}

func refundDoc() ingest.Request {
	content := strings.Join([]string{
		"Refund policy overview. Customers may request a refund within thirty days of purchase. " +
			"Refunds are processed within five business days after approval.",
		"Shipping details. Orders ship within twenty four hours from the nearest warehouse. " +
			"Express delivery arrives the next morning in most regions.",
		"Account management. Users can reset passwords from the profile page. " +
			"Two factor authentication is strongly recommended for all accounts.",
	}, "\n\n")
	return ingest.Request{
		DocumentID: "policies",
		Content:    []byte(content),
		SourceType: extract.SourceText,
		Meta:       ingest.Meta{Title: "Company Policies", Category: "support", Tags: []string{"kb"}},
	}
}

func TestSearchReturnsRelevantChunksFirst(t *testing.T) {
	e := newTestEngine(t, &echoGenerator{})
	ctx := context.Background()

	_, err := e.Ingest(ctx, refundDoc())
	require.NoError(t, err)

	results, err := e.Search(ctx, "how long do refunds take to process", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, strings.ToLower(results[0].Text), "refund")
	assert.Equal(t, "Company Policies", results[0].Title)
}

func TestSearchRespectsFilter(t *testing.T) {
	e := newTestEngine(t, &echoGenerator{})
	ctx := context.Background()

	_, err := e.Ingest(ctx, refundDoc())
	require.NoError(t, err)

	results, err := e.Search(ctx, "refund processing time", 3, &index.Filter{Category: "billing"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAskReturnsCitedAnswer(t *testing.T) {
	gen := &echoGenerator{}
	e := newTestEngine(t, gen)
	ctx := context.Background()

	_, err := e.Ingest(ctx, refundDoc())
	require.NoError(t, err)

	ans, err := e.Ask(ctx, "how long do refunds take", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, ans.Text, "[1]")
	require.NotEmpty(t, ans.Citations)
	assert.Equal(t, "policies", ans.Citations[0].DocumentID)
	assert.NotEmpty(t, ans.Sources)
}

func TestAskEmptyKnowledgeBaseSkipsGenerator(t *testing.T) {
	gen := &echoGenerator{}
	e := newTestEngine(t, gen)

	ans, err := e.Ask(context.Background(), "anything at all", nil)
	require.NoError(t, err)
	assert.Equal(t, answer.InsufficientKnowledgeAnswer, ans.Text)
	assert.Zero(t, gen.calls)
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	e := newTestEngine(t, &echoGenerator{})

	_, err := e.Ask(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestDeleteThenSearchFindsNothing(t *testing.T) {
	e := newTestEngine(t, &echoGenerator{})
	ctx := context.Background()

	_, err := e.Ingest(ctx, refundDoc())
	require.NoError(t, err)

	present, err := e.Delete(ctx, "policies")
	require.NoError(t, err)
	assert.True(t, present)

	results, err := e.Search(ctx, "refund processing time", 3, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	count, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
