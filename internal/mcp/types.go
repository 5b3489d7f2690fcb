// Package mcp exposes the knowledge engine as MCP tools.
package mcp

import "github.com/relaydesk/knowledge-engine/internal/answer"

// IngestInput defines the input parameters for the ingest_document tool.
type IngestInput struct {
	// DocumentID identifies the document; re-using an id replaces it.
	DocumentID string `json:"document_id" jsonschema:"required,description=Stable document identifier; ingesting the same id again replaces the document"`
	// Content is the raw document text.
	Content string `json:"content" jsonschema:"required,description=Raw document content"`
	// SourceType is the document format: text, markdown, or structured.
	SourceType string `json:"source_type,omitempty" jsonschema:"default=text,description=Document format: text markdown or structured"`
	// Title names the document in search results and citations.
	Title string `json:"title,omitempty" jsonschema:"description=Document title shown in results"`
	// Category groups documents for filtered search.
	Category string `json:"category,omitempty" jsonschema:"description=Category for filtered search"`
	// Tags label the document for filtered search.
	Tags []string `json:"tags,omitempty" jsonschema:"description=Tags for filtered search"`
	// Author records who wrote the document.
	Author string `json:"author,omitempty" jsonschema:"description=Document author"`
}

// IngestOutput reports what an ingestion wrote.
type IngestOutput struct {
	DocumentID    string `json:"document_id"`
	ChunksWritten int    `json:"chunks_written"`
	Replaced      bool   `json:"replaced"`
}

// DeleteInput defines the input parameters for the delete_document tool.
type DeleteInput struct {
	DocumentID string `json:"document_id" jsonschema:"required,description=Identifier of the document to delete"`
}

// DeleteOutput reports whether the document existed.
type DeleteOutput struct {
	DocumentID string `json:"document_id"`
	Found      bool   `json:"found"`
}

// SearchInput defines the input parameters for the search_knowledge tool.
type SearchInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query"`
	// TopK is the maximum number of chunks to return.
	TopK int `json:"top_k,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of chunks to return"`
	// Category restricts results to one category.
	Category string `json:"category,omitempty" jsonschema:"description=Restrict results to this category"`
	// Tags restricts results to chunks carrying all listed tags.
	Tags []string `json:"tags,omitempty" jsonschema:"description=Restrict results to documents carrying all of these tags"`
}

// SearchOutput contains the ranked search results.
type SearchOutput struct {
	Results []SearchHit `json:"results"`
	// Message provides context when nothing matched.
	Message string `json:"message,omitempty"`
}

// SearchHit is one ranked chunk.
type SearchHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// AskInput defines the input parameters for the ask_knowledge tool.
type AskInput struct {
	// Question is the natural language question to answer.
	Question string `json:"question" jsonschema:"required,description=Natural language question to answer from the knowledge base"`
	// Category restricts retrieval to one category.
	Category string `json:"category,omitempty" jsonschema:"description=Restrict retrieval to this category"`
	// Tags restricts retrieval to documents carrying all listed tags.
	Tags []string `json:"tags,omitempty" jsonschema:"description=Restrict retrieval to documents carrying all of these tags"`
}

// AskOutput is a generated answer with its supporting citations.
type AskOutput struct {
	Answer    string            `json:"answer"`
	Citations []answer.Citation `json:"citations"`
	Sources   []SearchHit       `json:"sources"`
	// Degraded is true when retrieval succeeded but generation failed.
	Degraded bool `json:"degraded,omitempty"`
}

// StatusInput defines the input for the index_status tool. It takes no
// parameters.
type StatusInput struct{}

// StatusOutput reports index health and size.
type StatusOutput struct {
	Healthy     bool   `json:"healthy"`
	TotalChunks uint64 `json:"total_chunks"`
}
