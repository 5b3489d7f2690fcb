package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relaydesk/knowledge-engine/internal/engine"
)

// Server wraps the MCP server with the engine it serves.
type Server struct {
	server *mcp.Server
	engine *engine.Engine
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(eng *engine.Engine) *Server {
	impl := &mcp.Implementation{
		Name:    "knowledge-engine",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Ingest a document into the knowledge base. Re-ingesting the same document_id replaces the previous version.",
	}, makeIngestHandler(eng))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document and all of its chunks from the knowledge base.",
	}, makeDeleteHandler(eng))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Semantically search the knowledge base. Returns ranked text chunks with relevance scores.",
	}, makeSearchHandler(eng))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_knowledge",
		Description: "Ask a question and get an answer grounded in the knowledge base, with citations back to source documents.",
	}, makeAskHandler(eng))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report knowledge base health and the number of indexed chunks.",
	}, makeStatusHandler(eng))

	return &Server{server: server, engine: eng}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance for transport
// handlers that need to wrap it.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
