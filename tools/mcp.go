package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/archives-observability/archives/archerr"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServer exposes every registered tool over the Model Context Protocol.
// Results carry the JSON envelope as text content.
func NewMCPServer(r *Registry, name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, &mcp.ServerOptions{})
	for _, t := range r.Tools() {
		server.AddTool(&mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema(),
		}, r.mcpHandler(t.Name))
	}
	return server
}

// NewMCPHandler serves server over streamable HTTP. Responses are plain JSON
// and sessionless so the handler works behind a buffering adaptor.
func NewMCPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{Stateless: true, JSONResponse: true})
}

func (r *Registry) mcpHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var env Envelope
		params, err := decodeParams(req.Params.Arguments)
		if err != nil {
			env = Envelope{Error: string(archerr.InvalidRequest), Message: "arguments must be a JSON object"}
		} else {
			env = r.Dispatch(ctx, name, params)
		}
		return envelopeResult(env)
	}
}

func decodeParams(raw json.RawMessage) (map[string]any, error) {
	params := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return params, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil {
		return nil, err
	}
	return params, nil
}

func envelopeResult(env Envelope) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		IsError: !env.Success,
	}, nil
}
