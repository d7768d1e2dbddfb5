package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCPTool exposes endpoint as an MCP tool. Arguments are decoded
// into a fresh Req and the endpoint result is returned as JSON text.
// Decode and endpoint failures become tool errors rather than protocol
// errors, so the calling model sees the message.
func RegisterMCPTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint) {
	srv.AddTool(tool, func(ctx context.Context, call *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req Req
		if raw := call.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &req); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}

		resp, err := endpoint(WithTransport(ctx, "mcp"), &req)
		if err != nil {
			return toolError(err), nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
