// Package chunker splits normalized text into overlapping, boundary-aware
// passages sized for embedding and citation.
package chunker

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/relaydesk/knowledge-engine/internal/extract"
)

const (
	// DefaultTargetTokens is the token budget per chunk.
	DefaultTargetTokens = 320

	// DefaultOverlapTokens is how many tokens adjacent chunks share.
	DefaultOverlapTokens = 48

	// DefaultLookbackTokens bounds how far the chunker backs off to find
	// a structural boundary before falling back to a hard split.
	DefaultLookbackTokens = 64
)

// chunkNamespace is the fixed UUIDv5 namespace for chunk identity.
// Changing it would orphan every previously indexed chunk.
var chunkNamespace = uuid.MustParse("7a9f54c3-1d2e-4b8a-9c61-3f0d8e5a2b47")

// Config holds chunking parameters. Zero values take the defaults.
type Config struct {
	TargetTokens   int `yaml:"target_tokens"`
	OverlapTokens  int `yaml:"overlap_tokens"`
	LookbackTokens int `yaml:"lookback_tokens"`
}

// Chunk is a contiguous span of a document's normalized text. Offsets are
// byte positions into the normalized text the chunk was cut from.
type Chunk struct {
	Index       int
	Text        string
	StartOffset int
	EndOffset   int
	TokenCount  int
}

// Chunker produces deterministic chunk boundaries: identical text and
// parameters always yield identical chunks.
type Chunker struct {
	target   int
	overlap  int
	lookback int
}

// New validates cfg and builds a Chunker. OverlapTokens must be strictly
// less than TargetTokens.
func New(cfg Config) (*Chunker, error) {
	if cfg.TargetTokens == 0 {
		cfg.TargetTokens = DefaultTargetTokens
	}
	if cfg.OverlapTokens == 0 {
		cfg.OverlapTokens = DefaultOverlapTokens
	}
	if cfg.LookbackTokens == 0 {
		cfg.LookbackTokens = DefaultLookbackTokens
	}

	if cfg.TargetTokens < 1 {
		return nil, fmt.Errorf("target_tokens must be positive, got %d", cfg.TargetTokens)
	}
	if cfg.OverlapTokens < 0 {
		return nil, fmt.Errorf("overlap_tokens must not be negative, got %d", cfg.OverlapTokens)
	}
	if cfg.OverlapTokens >= cfg.TargetTokens {
		return nil, fmt.Errorf("overlap_tokens (%d) must be strictly less than target_tokens (%d)",
			cfg.OverlapTokens, cfg.TargetTokens)
	}

	return &Chunker{
		target:   cfg.TargetTokens,
		overlap:  cfg.OverlapTokens,
		lookback: cfg.LookbackTokens,
	}, nil
}

// Chunk splits normalized text into ordered chunks. Text shorter than the
// target budget produces exactly one chunk; empty text produces none.
// The union of chunk spans covers the whole text with no gaps.
func (c *Chunker) Chunk(nt *extract.NormalizedText) []Chunk {
	tokens := tokenize(nt.Text)
	if len(tokens) == 0 {
		return nil
	}

	// Token index each boundary hint maps to: the first token starting at
	// or after the hint offset. Splitting at that token ends the chunk
	// right before the structural unit the hint marks.
	boundaryTokens := mapBoundaries(nt.Hints, tokens)

	var chunks []Chunk
	start := 0    // first token of the current chunk
	startOff := 0 // byte offset where the current chunk begins
	for {
		end := start + c.target
		if end >= len(tokens) {
			chunks = append(chunks, cut(nt.Text, len(chunks), start, startOff, len(tokens), len(nt.Text)))
			return chunks
		}

		// Back off to the strongest boundary within the lookback window.
		if split, ok := bestSplit(boundaryTokens, end, c.lookback, start); ok {
			end = split
		}

		endOff := tokens[end].start
		chunks = append(chunks, cut(nt.Text, len(chunks), start, startOff, end, endOff))

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
		startOff = tokens[next].start
	}
}

func cut(text string, index, startTok, startOff, endTok, endOff int) Chunk {
	return Chunk{
		Index:       index,
		Text:        text[startOff:endOff],
		StartOffset: startOff,
		EndOffset:   endOff,
		TokenCount:  endTok - startTok,
	}
}

// bestSplit picks the boundary token closest to end within the lookback
// window, preferring stronger boundary kinds on ties at the same token.
func bestSplit(boundaries []boundaryToken, end, lookback, start int) (int, bool) {
	floor := end - lookback
	if floor <= start {
		floor = start + 1
	}

	best := -1
	bestKind := extract.BoundarySentence
	for _, b := range boundaries {
		if b.token < floor || b.token > end {
			continue
		}
		if b.token > best || (b.token == best && b.kind > bestKind) {
			best = b.token
			bestKind = b.kind
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

type boundaryToken struct {
	token int
	kind  extract.BoundaryKind
}

func mapBoundaries(hints []extract.Boundary, tokens []span) []boundaryToken {
	result := make([]boundaryToken, 0, len(hints))
	ti := 0
	for _, h := range hints { // hints are sorted by offset
		for ti < len(tokens) && tokens[ti].start < h.Offset {
			ti++
		}
		if ti == 0 || ti >= len(tokens) {
			continue
		}
		result = append(result, boundaryToken{token: ti, kind: h.Kind})
	}
	return result
}

// ChunkID derives the stable chunk identity from (documentID, index) as a
// UUIDv5, so re-ingestion produces replaceable ids.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:%d", documentID, index))).String()
}
