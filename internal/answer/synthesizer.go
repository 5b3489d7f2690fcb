// Package answer turns ranked chunks into a citation-grounded response.
package answer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/relaydesk/knowledge-engine/internal/chunker"
	"github.com/relaydesk/knowledge-engine/internal/index"
)

const (
	// InsufficientKnowledgeAnswer is returned when retrieval finds
	// nothing to ground an answer on. No provider call is made.
	InsufficientKnowledgeAnswer = "I don't have enough information in the knowledge base to answer that question."

	// DegradedAnswer is returned when retrieval succeeded but the
	// generation provider failed.
	DegradedAnswer = "I found relevant material but could not generate an answer right now. The sources below may help."

	// DefaultMaxContextTokens bounds how many chunk tokens go into the
	// prompt.
	DefaultMaxContextTokens = 3000

	// DefaultMaxOutputTokens bounds the generated answer length.
	DefaultMaxOutputTokens = 512
)

// citationPattern matches bracketed source references like [2].
var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// Config holds synthesis parameters. Zero values take the defaults.
type Config struct {
	MaxContextTokens int `yaml:"max_context_tokens"`
	MaxOutputTokens  int `yaml:"max_output_tokens"`
}

// Citation ties a claim in the answer back to an indexed chunk.
type Citation struct {
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	ChunkID       string `json:"chunk_id"`
	QuotedSpan    string `json:"quoted_span"`
}

// Answer is a generated response with its supporting evidence.
type Answer struct {
	Text      string               `json:"text"`
	Citations []Citation           `json:"citations"`
	Sources   []index.SearchResult `json:"sources"`
}

// Synthesizer builds grounded answers from retrieved chunks.
type Synthesizer struct {
	generator Generator
	cfg       Config
}

func NewSynthesizer(generator Generator, cfg Config) *Synthesizer {
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return &Synthesizer{generator: generator, cfg: cfg}
}

// Synthesize generates an answer grounded on ranked. With no ranked
// chunks it returns the fixed insufficient-knowledge answer without
// calling the provider. When the provider fails it returns the degraded
// answer with sources attached and an error wrapping ErrProvider, so
// callers can surface both.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, ranked []index.SearchResult) (*Answer, error) {
	if len(ranked) == 0 {
		return &Answer{Text: InsufficientKnowledgeAnswer}, nil
	}

	included := s.fitContext(ranked)
	prompt := buildPrompt(question, included)

	text, err := s.generator.Complete(ctx, prompt, s.cfg.MaxOutputTokens)
	if err != nil || strings.TrimSpace(text) == "" {
		if err == nil {
			err = fmt.Errorf("empty completion")
		}
		return &Answer{
			Text:    DegradedAnswer,
			Sources: included,
		}, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	return &Answer{
		Text:      text,
		Citations: parseCitations(text, included),
		Sources:   included,
	}, nil
}

// fitContext keeps the highest-ranked chunks that fit the token budget.
// The top chunk is always included even when it alone exceeds the
// budget, so every answer has at least one source.
func (s *Synthesizer) fitContext(ranked []index.SearchResult) []index.SearchResult {
	included := make([]index.SearchResult, 0, len(ranked))
	budget := s.cfg.MaxContextTokens
	for i, r := range ranked {
		cost := chunker.CountTokens(r.Text)
		if i > 0 && cost > budget {
			continue
		}
		included = append(included, r)
		budget -= cost
	}
	return included
}

func buildPrompt(question string, sources []index.SearchResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using ONLY the numbered sources below. ")
	b.WriteString("Cite each claim with the source number in brackets, like [1]. ")
	b.WriteString("If the sources do not contain the answer, say so instead of guessing.\n\n")

	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, src.Title, src.Text)
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// parseCitations extracts [n] references from the generated text and
// resolves them against the numbered sources. Out-of-range references
// are dropped; repeats keep only the first occurrence.
func parseCitations(text string, sources []index.SearchResult) []Citation {
	seen := make(map[int]bool)
	var citations []Citation
	for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(sources) || seen[n] {
			continue
		}
		seen[n] = true
		src := sources[n-1]
		citations = append(citations, Citation{
			DocumentID:    src.DocumentID,
			DocumentTitle: src.Title,
			ChunkID:       src.ChunkID,
			QuotedSpan:    quotedSpan(src.Text),
		})
	}
	return citations
}

// quotedSpan returns a short excerpt of the cited chunk.
func quotedSpan(text string) string {
	const maxRunes = 200
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= maxRunes {
		return string(runes)
	}
	return string(runes[:maxRunes])
}
