package extract

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	gmtext "github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// scanHeadings parses markdown and records the start of every heading
// line as a heading boundary.
func scanHeadings(text string) ([]Boundary, error) {
	source := []byte(text)

	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	doc := md.Parser().Parse(gmtext.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(6),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect headings: %v", ErrExtractionFailed, err)
	}

	var hints []Boundary
	collectHeadings(doc, source, tree.Items, &hints)
	return hints, nil
}

func collectHeadings(doc ast.Node, source []byte, items toc.Items, hints *[]Boundary) {
	for _, item := range items {
		node := findHeadingByID(doc, string(item.ID))
		if node != nil && node.Lines().Len() > 0 {
			seg := node.Lines().At(0)
			// Lines() points at the heading text after the hash marks;
			// back up to the start of the line.
			lineStart := strings.LastIndexByte(string(source[:seg.Start]), '\n') + 1
			*hints = append(*hints, Boundary{Offset: lineStart, Kind: BoundaryHeading})
		}
		collectHeadings(doc, source, item.Items, hints)
	}
}

// findHeadingByID locates a heading node by its auto-generated ID.
func findHeadingByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}
