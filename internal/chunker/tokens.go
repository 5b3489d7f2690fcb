package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// span is the byte range of one token in the source text.
type span struct {
	start int
	end   int
}

// tokenize splits text into whitespace-delimited tokens with byte offsets.
// Whitespace tokenization keeps chunk boundaries a pure function of the
// text, which the stable chunk-id derivation depends on.
func tokenize(text string) []span {
	var tokens []span
	start := -1
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, span{start: start, end: i})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i += size
	}
	if start >= 0 {
		tokens = append(tokens, span{start: start, end: len(text)})
	}
	return tokens
}

// CountTokens reports how many tokens text contains under the same
// tokenization the chunker uses.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
