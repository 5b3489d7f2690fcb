// Package extract converts raw documents into a normalized text stream
// plus structural boundary hints used by the chunker.
package extract

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// SourceType identifies the format of a raw document.
type SourceType string

const (
	SourceText       SourceType = "text"
	SourceMarkdown   SourceType = "markdown"
	SourceStructured SourceType = "structured"
)

// ParseSourceType validates a wire-format source type string.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceText, SourceMarkdown, SourceStructured:
		return SourceType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// BoundaryKind classifies a structural hint. Higher values are stronger
// boundaries; the chunker prefers splitting at the strongest one in range.
type BoundaryKind int

const (
	BoundarySentence BoundaryKind = iota
	BoundaryParagraph
	BoundaryHeading
)

// Boundary marks a byte offset in the normalized text where a structural
// unit (sentence, paragraph, heading) begins.
type Boundary struct {
	Offset int
	Kind   BoundaryKind
}

// NormalizedText is the output of extraction: a single UTF-8 text stream
// and the boundary hints found in it, sorted by offset.
type NormalizedText struct {
	Text  string
	Hints []Boundary
}

// Extract converts raw content of the declared type into normalized text.
// It is a pure function: identical input always produces identical output.
func Extract(raw []byte, sourceType SourceType) (*NormalizedText, error) {
	text, err := normalize(raw)
	if err != nil {
		return nil, err
	}

	var hints []Boundary
	switch sourceType {
	case SourceText:
		hints = append(scanParagraphs(text), scanSentences(text)...)
	case SourceMarkdown:
		headings, err := scanHeadings(text)
		if err != nil {
			return nil, err
		}
		hints = append(headings, scanParagraphs(text)...)
		hints = append(hints, scanSentences(text)...)
	case SourceStructured:
		hints, err = scanStructured(text)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, sourceType)
	}

	return &NormalizedText{Text: text, Hints: dedupe(hints, len(text))}, nil
}

// normalize converts line endings to LF, strips trailing whitespace per
// line, collapses runs of blank lines, and trims surrounding blank lines.
// Invalid UTF-8 is a terminal extraction failure with the byte offset of
// the first bad sequence.
func normalize(raw []byte) (string, error) {
	if off := firstInvalidUTF8(raw); off >= 0 {
		return "", &ExtractionError{Offset: off, Reason: "invalid UTF-8 sequence"}
	}

	s := strings.ReplaceAll(string(raw), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}

	return strings.Trim(strings.Join(out, "\n"), "\n"), nil
}

func firstInvalidUTF8(raw []byte) int {
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

// scanParagraphs records the start of each paragraph after a blank line.
// Blank-line runs are already collapsed by normalize.
func scanParagraphs(text string) []Boundary {
	var hints []Boundary
	for i := 0; i+1 < len(text); i++ {
		if text[i] == '\n' && text[i+1] == '\n' && i+2 < len(text) {
			hints = append(hints, Boundary{Offset: i + 2, Kind: BoundaryParagraph})
		}
	}
	return hints
}

// scanSentences records the position after a sentence terminator followed
// by whitespace.
func scanSentences(text string) []Boundary {
	var hints []Boundary
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			j := i + 1
			if j >= len(text) || (text[j] != ' ' && text[j] != '\n') {
				continue
			}
			for j < len(text) && (text[j] == ' ' || text[j] == '\n') {
				j++
			}
			if j < len(text) {
				hints = append(hints, Boundary{Offset: j, Kind: BoundarySentence})
			}
		}
	}
	return hints
}

// scanStructured parses line-oriented "key: value" records. A blank line
// or "---" separates records; anything else is malformed.
func scanStructured(text string) ([]Boundary, error) {
	var hints []Boundary
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		switch {
		case line == "" || line == "---":
			if next := offset + len(line) + 1; next < len(text) {
				hints = append(hints, Boundary{Offset: next, Kind: BoundaryParagraph})
			}
		case strings.Contains(line, ":"):
			if offset > 0 {
				hints = append(hints, Boundary{Offset: offset, Kind: BoundarySentence})
			}
		default:
			return nil, &ExtractionError{Offset: offset, Reason: fmt.Sprintf("line is not a key: value field: %q", line)}
		}
		offset += len(line) + 1
	}
	return hints, nil
}

// dedupe sorts hints by offset, drops out-of-range ones, and keeps the
// strongest kind where several coincide.
func dedupe(hints []Boundary, textLen int) []Boundary {
	strongest := make(map[int]BoundaryKind)
	for _, h := range hints {
		if h.Offset <= 0 || h.Offset >= textLen {
			continue
		}
		if kind, ok := strongest[h.Offset]; !ok || h.Kind > kind {
			strongest[h.Offset] = h.Kind
		}
	}

	result := make([]Boundary, 0, len(strongest))
	for off, kind := range strongest {
		result = append(result, Boundary{Offset: off, Kind: kind})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Offset < result[j].Offset })
	return result
}
