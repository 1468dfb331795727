// Package mcp exposes the memory operations as MCP tools over stdio, so
// that LLM agents can store and recall memories directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverVersion = "1.0.0"

type service struct {
	uc *memory.UseCase
}

// NewServer builds the MCP server with the memory tools registered.
func NewServer(uc *memory.UseCase) *mcp.Server {
	svc := &service{uc: uc}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "kioku",
		Version: serverVersion,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "store_memory",
		Description: "Store a piece of free-text information as a memory for later retrieval",
		InputSchema: storeSchema(),
	}, svc.storeMemory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_memory",
		Description: "Search stored memories by semantic similarity and return the raw matching chunks",
		InputSchema: querySchema(),
	}, svc.searchMemory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_memory",
		Description: "Ask a natural language question and get an answer synthesized from stored memories",
		InputSchema: querySchema(),
	}, svc.queryMemory)

	return server
}

// Serve runs the server on stdio until the context is cancelled.
func Serve(ctx context.Context, uc *memory.UseCase) error {
	return NewServer(uc).Run(ctx, &mcp.StdioTransport{})
}

type storeParams struct {
	Text string   `json:"text"`
	Tags []string `json:"tags,omitempty"`
}

type queryParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func storeSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"text": {
				Type:        "string",
				Description: "The text to remember",
			},
			"tags": {
				Type:        "array",
				Description: "Optional tags to attach to the memory",
				Items:       &jsonschema.Schema{Type: "string"},
			},
		},
		Required: []string{"text"},
	}
}

func querySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {
				Type:        "string",
				Description: "The natural language query",
			},
			"limit": {
				Type:        "integer",
				Description: "Maximum number of memory chunks to retrieve",
			},
		},
		Required: []string{"query"},
	}
}

func (s *service) storeMemory(ctx context.Context, req *mcp.CallToolRequest, params *storeParams) (*mcp.CallToolResult, any, error) {
	m, err := s.uc.Store(ctx, memory.StoreInput{
		Text: params.Text,
		Tags: params.Tags,
	})
	if err != nil {
		return nil, nil, err
	}

	return textResult(fmt.Sprintf("Stored memory %s (%d chunks)", m.ID, len(m.Chunks))), map[string]any{
		"memory_id": string(m.ID),
		"chunks":    len(m.Chunks),
	}, nil
}

func (s *service) searchMemory(ctx context.Context, req *mcp.CallToolRequest, params *queryParams) (*mcp.CallToolResult, any, error) {
	out, err := s.uc.Query(ctx, memory.QueryInput{
		Question: params.Query,
		Raw:      true,
		Limit:    params.Limit,
	})
	if err != nil {
		return nil, nil, err
	}

	return textResult(formatResults(out.Results)), resultPayload(out.Results), nil
}

func (s *service) queryMemory(ctx context.Context, req *mcp.CallToolRequest, params *queryParams) (*mcp.CallToolResult, any, error) {
	out, err := s.uc.Query(ctx, memory.QueryInput{
		Question: params.Query,
		Limit:    params.Limit,
	})
	if err != nil {
		return nil, nil, err
	}

	text := out.Answer
	if out.Degraded {
		text = fmt.Sprintf("(answer synthesis unavailable: %s)\n%s", out.Warning, formatResults(out.Results))
	}

	return textResult(text), map[string]any{
		"answer":   out.Answer,
		"degraded": out.Degraded,
		"results":  resultPayload(out.Results),
	}, nil
}

func formatResults(results []*model.SearchResult) string {
	if len(results) == 0 {
		return "No matching memories found"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d matching chunks:\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&sb, "- [%.3f] %s (stored at %s)\n",
			r.Score, r.Chunk.Text, r.CreatedAt.Format(time.RFC3339))
	}
	return sb.String()
}

func resultPayload(results []*model.SearchResult) []map[string]any {
	payload := make([]map[string]any, 0, len(results))
	for _, r := range results {
		item := map[string]any{
			"memory_id":  string(r.Chunk.MemoryID),
			"chunk_id":   string(r.Chunk.ID),
			"text":       r.Chunk.Text,
			"score":      r.Score,
			"created_at": r.CreatedAt.Format(time.RFC3339),
		}
		if len(r.Metadata) > 0 {
			// metadata values are a closed scalar set, always marshalable
			raw, _ := json.Marshal(r.Metadata)
			item["metadata"] = json.RawMessage(raw)
		}
		payload = append(payload, item)
	}
	return payload
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
