package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/sitegen/generate"
	"github.com/hazyhaar/sitegen/kit"
	"github.com/hazyhaar/sitegen/sitefile"
)

var errUnauthenticated = errors.New("authentication required")

// mcpHandler serves the MCP streamable HTTP transport. Every request gets a
// server bound to the session user, so tools only see that user's projects.
func (s *Server) mcpHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.MCPServer(userID(r))
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}

// MCPServer returns an MCP server whose tools act as userID.
func (s *Server) MCPServer(userID string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "sitegen", Version: s.cfg.Version}, nil)
	as := kit.Chain(asUser(userID), kit.RequireUser(errUnauthenticated))

	kit.RegisterMCPTool[struct{}](srv, &mcp.Tool{
		Name:        "sitegen_list_projects",
		Description: "List the user's website projects with their status and file count.",
		InputSchema: inputSchema(map[string]any{}),
	}, as(func(ctx context.Context, _ any) (any, error) {
		return s.cfg.Store.ListProjects(ctx, kit.GetUserID(ctx))
	}))

	type listFilesRequest struct {
		ProjectID string `json:"project_id"`
	}
	kit.RegisterMCPTool[listFilesRequest](srv, &mcp.Tool{
		Name:        "sitegen_list_files",
		Description: "List the files of a project in deployment order. Contents are omitted.",
		InputSchema: inputSchema(map[string]any{
			"project_id": map[string]any{"type": "string", "description": "Project ID"},
		}, "project_id"),
	}, as(func(ctx context.Context, req any) (any, error) {
		r := req.(*listFilesRequest)
		p, err := s.cfg.Store.GetProject(ctx, kit.GetUserID(ctx), r.ProjectID)
		if err != nil {
			return nil, err
		}
		files, err := s.cfg.Store.ListFiles(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out := make([]fileSummary, 0, len(files))
		for _, f := range files {
			out = append(out, fileSummary{Path: f.Path, Type: f.Type, Size: f.Size, UpdatedAt: f.UpdatedAt})
		}
		return out, nil
	}))

	type generateToolRequest struct {
		ProjectID string `json:"project_id"`
		Prompt    string `json:"prompt"`
		Provider  string `json:"provider,omitempty"`
		Mode      string `json:"mode,omitempty"`
		Enhance   bool   `json:"enhance,omitempty"`
	}
	kit.RegisterMCPTool[generateToolRequest](srv, &mcp.Tool{
		Name:        "sitegen_generate",
		Description: "Generate a website for a project from a prompt, or modify the existing one with mode=modify. Returns the generation result without file contents.",
		InputSchema: inputSchema(map[string]any{
			"project_id": map[string]any{"type": "string", "description": "Project ID"},
			"prompt":     map[string]any{"type": "string", "description": "What to build or change"},
			"provider":   map[string]any{"type": "string", "description": "LLM provider, default when empty"},
			"mode":       map[string]any{"type": "string", "enum": []any{generate.ModeGenerate, generate.ModeModify}},
			"enhance":    map[string]any{"type": "boolean", "description": "Expand the prompt first (generate only)"},
		}, "project_id", "prompt"),
	}, as(func(ctx context.Context, req any) (any, error) {
		r := req.(*generateToolRequest)
		greq := generate.Request{
			UserID:    kit.GetUserID(ctx),
			ProjectID: r.ProjectID,
			Prompt:    r.Prompt,
			Provider:  r.Provider,
			Enhance:   r.Enhance,
		}
		var res *generate.Result
		var err error
		switch r.Mode {
		case "", generate.ModeGenerate:
			res, err = s.cfg.Generator.Generate(ctx, greq)
		case generate.ModeModify:
			res, err = s.cfg.Generator.Modify(ctx, greq)
		default:
			return nil, badRequest("unknown mode %q", r.Mode)
		}
		if err != nil {
			return nil, err
		}
		out := *res
		out.Files = nil
		return out, nil
	}))

	type completeRequest struct {
		HTML string `json:"html"`
	}
	kit.RegisterMCPTool[completeRequest](srv, &mcp.Tool{
		Name:        "sitegen_complete_html",
		Description: "Repair an HTML fragment into a complete document and replace local image references with hosted placeholders.",
		InputSchema: inputSchema(map[string]any{
			"html": map[string]any{"type": "string", "description": "HTML document or fragment"},
		}, "html"),
	}, func(ctx context.Context, req any) (any, error) {
		r := req.(*completeRequest)
		doc, images := sitefile.FixImageURLsReport(sitefile.CompleteHTML(r.HTML))
		return map[string]any{
			"html":      doc,
			"structure": sitefile.CheckStructure(r.HTML),
			"images":    images,
		}, nil
	})

	return srv
}

type fileSummary struct {
	Path      string            `json:"path"`
	Type      sitefile.FileType `json:"type"`
	Size      int               `json:"size"`
	UpdatedAt int64             `json:"updated_at"`
}

func asUser(id string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			return next(kit.WithUserID(ctx, id), req)
		}
	}
}

func inputSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
