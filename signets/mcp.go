package signets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers all signets tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerIngest(srv)
	s.registerAddBookmark(srv)
	s.registerSearch(srv)
	s.registerStats(srv)
	s.registerClear(srv)
}

// registerTool decodes JSON arguments into T, runs h and returns its result
// as JSON text. Decode and handler errors become tool errors.
func registerTool[T any](srv *mcp.Server, tool *mcp.Tool, h func(ctx context.Context, args *T) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args T
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		resp, err := h(ctx, &args)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var nodeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":    map[string]any{"type": "string"},
		"url":      map[string]any{"type": "string"},
		"children": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
	},
}

func (s *Service) registerIngest(srv *mcp.Server) {
	type req struct {
		Roots []*BookmarkNode `json:"roots"`
	}
	tool := &mcp.Tool{
		Name:        "signets_ingest",
		Description: "Ingest a bookmark tree: fetch and index every bookmark not indexed yet",
		InputSchema: inputSchema(map[string]any{
			"roots": map[string]any{"type": "array", "items": nodeSchema, "description": "Bookmark tree roots"},
		}, []string{"roots"}),
	}
	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		return s.Ingest(ctx, p.Roots, nil)
	})
}

func (s *Service) registerAddBookmark(srv *mcp.Server) {
	type req struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	tool := &mcp.Tool{
		Name:        "signets_add_bookmark",
		Description: "Add a single bookmark, fetch and index it",
		InputSchema: inputSchema(map[string]any{
			"title": map[string]any{"type": "string", "description": "Bookmark title"},
			"url":   map[string]any{"type": "string", "description": "Bookmark URL"},
		}, []string{"url"}),
	}
	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		return s.AddBookmark(ctx, &BookmarkNode{Title: p.Title, URL: p.URL, DateAdded: s.now().UTC()})
	})
}

func (s *Service) registerSearch(srv *mcp.Server) {
	type req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	tool := &mcp.Tool{
		Name:        "signets_search",
		Description: "Full-text search over indexed bookmark titles and page text",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Search query; empty lists every indexed bookmark"},
			"limit": map[string]any{"type": "integer", "description": "Max results (default: all)"},
		}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		results, err := s.Search(ctx, p.Query)
		if err != nil {
			return nil, err
		}
		if p.Limit > 0 && len(results) > p.Limit {
			results = results[:p.Limit]
		}
		return results, nil
	})
}

func (s *Service) registerStats(srv *mcp.Server) {
	type req struct{}
	tool := &mcp.Tool{
		Name:        "signets_stats",
		Description: "Count stored and indexed bookmarks",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, _ *req) (any, error) {
		return s.Stats(ctx)
	})
}

func (s *Service) registerClear(srv *mcp.Server) {
	type req struct {
		Confirm bool `json:"confirm"`
	}
	tool := &mcp.Tool{
		Name:        "signets_clear",
		Description: "Delete every bookmark record and the search index",
		InputSchema: inputSchema(map[string]any{
			"confirm": map[string]any{"type": "boolean", "description": "Must be true"},
		}, []string{"confirm"}),
	}
	registerTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		if !p.Confirm {
			return nil, fmt.Errorf("%w: confirm must be true", ErrInvalidInput)
		}
		if err := s.ClearAll(ctx); err != nil {
			return nil, err
		}
		return map[string]bool{"cleared": true}, nil
	})
}
