package ideawatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shahar42/competotor-agent/idgen"
	"github.com/shahar42/competotor-agent/kit"
)

// RegisterMCP registers the ideawatch tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerSubmit(srv)
	svc.registerResults(srv)
	svc.registerFeedback(srv)
	svc.registerRescan(srv)
	svc.registerRuns(srv)
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

// toolChain is the middleware stack of every MCP tool.
func (svc *Service) toolChain(tool string) kit.Middleware {
	return kit.Chain(tagRequest, svc.logged(tool))
}

// tagRequest gives calls that arrive without a request ID their own.
func tagRequest(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, r any) (any, error) {
		if kit.GetRequestID(ctx) == "" {
			ctx = kit.WithRequestID(ctx, "req_"+idgen.New())
		}
		return next(ctx, r)
	}
}

// logged records the duration and outcome of every tool call.
func (svc *Service) logged(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, r any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, r)
			log := svc.logger.With("tool", tool, "transport", kit.GetTransport(ctx),
				"request_id", kit.GetRequestID(ctx), "duration_ms", time.Since(start).Milliseconds())
			if email := kit.GetEmail(ctx); email != "" {
				log = log.With("email", email)
			}
			if err != nil {
				log.Warn("ideawatch: tool failed", "error", err)
			} else {
				log.Debug("ideawatch: tool ok")
			}
			return resp, err
		}
	}
}

func (svc *Service) registerSubmit(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "idea_submit",
		Description: "Submit a product idea for competitor scanning. The scan runs in the background and results arrive by email.",
		InputSchema: inputSchema(map[string]any{
			"email":       map[string]any{"type": "string", "description": "Owner email address"},
			"description": map[string]any{"type": "string", "description": "Free-text idea description"},
			"image":       map[string]any{"type": "string", "description": "Optional base64 image or data: URL"},
			"image_mime":  map[string]any{"type": "string", "description": "Image MIME type when not a data: URL"},
			"monitor":     map[string]any{"type": "string", "description": "Monitoring window: 1m, 3m, 6m or empty"},
		}, []string{"email", "description"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.SubmitIdea(ctx, *r.(*SubmitRequest))
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p SubmitRequest
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &p,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithEmail(ctx, p.Email) },
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, svc.toolChain(tool.Name)(endpoint), decode)
}

func (svc *Service) registerResults(srv *mcp.Server) {
	type req struct {
		Email string `json:"email"`
	}

	tool := &mcp.Tool{
		Name:        "idea_results",
		Description: "List every idea of a user with its competitors, best match first",
		InputSchema: inputSchema(map[string]any{
			"email": map[string]any{"type": "string", "description": "Owner email address"},
		}, []string{"email"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.Results(ctx, r.(*req).Email)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &p,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithEmail(ctx, p.Email) },
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, svc.toolChain(tool.Name)(endpoint), decode)
}

func (svc *Service) registerFeedback(srv *mcp.Server) {
	type req struct {
		CompetitorID string `json:"competitor_id"`
		Relevant     bool   `json:"is_relevant"`
	}

	tool := &mcp.Tool{
		Name:        "idea_feedback",
		Description: "Mark a discovered competitor as relevant or not relevant",
		InputSchema: inputSchema(map[string]any{
			"competitor_id": map[string]any{"type": "string", "description": "Competitor ID"},
			"is_relevant":   map[string]any{"type": "boolean", "description": "Whether the match is relevant"},
		}, []string{"competitor_id", "is_relevant"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := svc.RecordFeedback(ctx, p.CompetitorID, p.Relevant); err != nil {
			return nil, err
		}
		return map[string]any{"competitor_id": p.CompetitorID, "is_relevant": p.Relevant}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, svc.toolChain(tool.Name)(endpoint), decode)
}

func (svc *Service) registerRescan(srv *mcp.Server) {
	type req struct {
		IdeaID string `json:"idea_id"`
	}

	tool := &mcp.Tool{
		Name:        "idea_rescan",
		Description: "Queue a new competitor scan for an idea",
		InputSchema: inputSchema(map[string]any{
			"idea_id": map[string]any{"type": "string", "description": "Idea ID"},
		}, []string{"idea_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		queued, err := svc.Rescan(ctx, p.IdeaID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"idea_id": p.IdeaID, "queued": queued}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, svc.toolChain(tool.Name)(endpoint), decode)
}

func (svc *Service) registerRuns(srv *mcp.Server) {
	type req struct {
		IdeaID string `json:"idea_id"`
		Limit  int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "idea_runs",
		Description: "List recent scan runs of an idea with their stage counts",
		InputSchema: inputSchema(map[string]any{
			"idea_id": map[string]any{"type": "string", "description": "Idea ID"},
			"limit":   map[string]any{"type": "integer", "description": "Max runs (default 10)"},
		}, []string{"idea_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if p.Limit <= 0 {
			p.Limit = 10
		}
		return svc.Runs(ctx, p.IdeaID, p.Limit)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, svc.toolChain(tool.Name)(endpoint), decode)
}
