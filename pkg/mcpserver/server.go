// Package mcpserver exposes the query engine as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/japaniel/wordgram/pkg/lexicon"
	"github.com/japaniel/wordgram/pkg/query"
)

const (
	ToolFindBySubstring         = "find_by_substring"
	ToolFindAnagrams            = "find_anagrams"
	ToolFindAnagramsBySubstring = "find_anagrams_by_substring"
	serverName                  = "wordgram"
	serverVersion               = "0.1.0"
)

type Word struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Response is the JSON text returned by every tool.
type Response struct {
	Results []Word `json:"results"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

type toolParams struct {
	Input string `json:"input"`
}

type Server struct {
	engine *query.Engine
	server *mcp.Server
	log    zerolog.Logger
}

func NewServer(engine *query.Engine, log zerolog.Logger) *Server {
	s := &Server{
		engine: engine,
		server: mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil),
		log:    log,
	}
	s.registerTools()
	return s
}

func inputSchema(description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"input": {
				Type:        "string",
				Description: description,
			},
		},
		Required: []string{"input"},
	}
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        ToolFindBySubstring,
		Description: "List every word that contains the input, ordered alphabetically.",
		InputSchema: inputSchema("Substring to look for (letters only)"),
	}, s.handleFindBySubstring)

	s.server.AddTool(&mcp.Tool{
		Name:        ToolFindAnagrams,
		Description: "List the anagrams of a known word, excluding the word itself.",
		InputSchema: inputSchema("Word to find anagrams of"),
	}, s.handleFindAnagrams)

	s.server.AddTool(&mcp.Tool{
		Name:        ToolFindAnagramsBySubstring,
		Description: "Collect the anagrams of every word containing the input. At most 10 results.",
		InputSchema: inputSchema("Substring of at least two letters"),
	}, s.handleFindAnagramsBySubstring)
}

func (s *Server) handleFindBySubstring(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(req, ToolFindBySubstring, s.engine.FindBySubstring)
}

func (s *Server) handleFindAnagrams(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(req, ToolFindAnagrams, s.engine.FindAnagrams)
}

func (s *Server) handleFindAnagramsBySubstring(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(req, ToolFindAnagramsBySubstring, s.engine.FindAnagramsBySubstring)
}

func (s *Server) run(req *mcp.CallToolRequest, tool string, fn func(string) ([]lexicon.WordRecord, error)) (*mcp.CallToolResult, error) {
	var p toolParams
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
			return createErrorResponse(tool, fmt.Errorf("invalid arguments: %w", err))
		}
	}

	recs, err := fn(p.Input)
	if errors.Is(err, query.ErrNotFound) {
		return createJSONResponse(Response{Results: []Word{}, Message: "None"})
	}
	if err != nil {
		s.log.Error().Err(err).Str("tool", tool).Str("input", p.Input).Msg("tool call failed")
		return createErrorResponse(tool, err)
	}

	words := make([]Word, len(recs))
	for i, r := range recs {
		words[i] = Word{ID: int64(r.ID), Label: r.Label}
	}
	s.log.Debug().Str("tool", tool).Str("input", p.Input).Int("count", len(words)).Msg("tool call")
	return createJSONResponse(Response{Results: words, Count: len(words)})
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Str("server", serverName).Msg("starting MCP server on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func createJSONResponse(data any) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// Tool failures are reported in the result with IsError set, not as
// protocol errors.
func createErrorResponse(tool string, err error) (*mcp.CallToolResult, error) {
	resp, marshalErr := createJSONResponse(map[string]any{
		"error": err.Error(),
		"tool":  tool,
	})
	if marshalErr != nil {
		return nil, marshalErr
	}
	resp.IsError = true
	return resp, nil
}
