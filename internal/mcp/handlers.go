package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relaydesk/knowledge-engine/internal/answer"
	"github.com/relaydesk/knowledge-engine/internal/engine"
	"github.com/relaydesk/knowledge-engine/internal/extract"
	"github.com/relaydesk/knowledge-engine/internal/index"
	"github.com/relaydesk/knowledge-engine/internal/ingest"
)

func makeIngestHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestInput) (
		*mcp.CallToolResult, IngestOutput, error,
	) {
		sourceType := extract.SourceText
		if input.SourceType != "" {
			var err error
			sourceType, err = extract.ParseSourceType(input.SourceType)
			if err != nil {
				return nil, IngestOutput{}, err
			}
		}

		result, err := eng.Ingest(ctx, ingest.Request{
			DocumentID: input.DocumentID,
			Content:    []byte(input.Content),
			SourceType: sourceType,
			Meta: ingest.Meta{
				Title:    input.Title,
				Category: input.Category,
				Tags:     input.Tags,
				Author:   input.Author,
			},
		})
		if err != nil {
			return nil, IngestOutput{}, fmt.Errorf("ingest failed: %w", err)
		}

		return nil, IngestOutput{
			DocumentID:    result.DocumentID,
			ChunksWritten: result.ChunksWritten,
			Replaced:      result.Replaced,
		}, nil
	}
}

func makeDeleteHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, DeleteInput,
) (*mcp.CallToolResult, DeleteOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteInput) (
		*mcp.CallToolResult, DeleteOutput, error,
	) {
		found, err := eng.Delete(ctx, input.DocumentID)
		if err != nil {
			return nil, DeleteOutput{}, fmt.Errorf("delete failed: %w", err)
		}
		return nil, DeleteOutput{DocumentID: input.DocumentID, Found: found}, nil
	}
}

func makeSearchHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		results, err := eng.Search(ctx, input.Query, input.TopK, searchFilter(input.Category, input.Tags))
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		hits := toHits(results)
		if len(hits) == 0 {
			return nil, SearchOutput{
				Results: []SearchHit{},
				Message: "No matching chunks found. Try broader search terms.",
			}, nil
		}
		return nil, SearchOutput{Results: hits}, nil
	}
}

func makeAskHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		ans, err := eng.Ask(ctx, input.Question, searchFilter(input.Category, input.Tags))
		if err != nil {
			// A provider failure still carries the retrieved sources; the
			// tool reports them as a degraded answer instead of erroring.
			if !errors.Is(err, answer.ErrProvider) {
				return nil, AskOutput{}, fmt.Errorf("ask failed: %w", err)
			}
		}

		citations := ans.Citations
		if citations == nil {
			citations = []answer.Citation{}
		}
		return nil, AskOutput{
			Answer:    ans.Text,
			Citations: citations,
			Sources:   toHits(ans.Sources),
			Degraded:  errors.Is(err, answer.ErrProvider),
		}, nil
	}
}

func makeStatusHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		healthy := eng.Health(ctx) == nil

		count, err := eng.Count(ctx)
		if err != nil {
			return nil, StatusOutput{Healthy: false}, nil
		}
		return nil, StatusOutput{Healthy: healthy, TotalChunks: count}, nil
	}
}

func searchFilter(category string, tags []string) *index.Filter {
	if category == "" && len(tags) == 0 {
		return nil
	}
	return &index.Filter{Category: category, Tags: tags}
}

func toHits(results []index.SearchResult) []SearchHit {
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Title:      r.Title,
			Text:       r.Text,
			Score:      r.Score,
		})
	}
	return hits
}
