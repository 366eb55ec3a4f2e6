package mcpgateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/vikashloomba/mcp-dashboard-go/pkg/mcpmgr"
)

// Backends is the slice of the connection manager the gateway relies on.
// *mcpmgr.Manager implements it.
type Backends interface {
	ListServers() []string
	WithSession(ctx context.Context, serverID string, fn func(context.Context, *mcp.ClientSession) error) error
}

// Gateway exposes a Streamable MCP server that fronts every registered backend
// under a single HTTP endpoint.
type Gateway struct {
	backends Backends
	opts     Options
	logger   *zap.Logger

	features *featureIndex

	server      *mcp.Server
	httpHandler http.Handler

	serverMu sync.Mutex
}

// NewGateway builds a Gateway and performs an initial synchronization of every
// backend. Backends that cannot be reached are logged and skipped; they are
// picked up by a later Sync.
func NewGateway(ctx context.Context, backends Backends, opts *Options) (*Gateway, error) {
	if backends == nil {
		return nil, fmt.Errorf("mcpgateway: backends are required")
	}
	options := opts.withDefaults()
	if options.TokenOptions != nil && options.TokenVerifier == nil {
		return nil, fmt.Errorf("mcpgateway: TokenOptions require a TokenVerifier")
	}
	g := &Gateway{
		backends: backends,
		opts:     options,
		logger:   options.Logger.Named("gateway"),
		features: newFeatureIndex(options.Namespace),
	}

	g.server = mcp.NewServer(options.Implementation, &mcp.ServerOptions{
		HasTools:   true,
		HasPrompts: true,
	})
	stream := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return g.server
	}, &options.Streamable)
	g.httpHandler = g.mountHandler(stream)

	if err := g.SyncAll(ctx); err != nil {
		g.logger.Warn("initial sync incomplete", zap.Error(err))
	}
	return g, nil
}

// Handler exposes the HTTP handler that serves the Streamable endpoint.
func (g *Gateway) Handler() http.Handler {
	return g.httpHandler
}

// Path is the HTTP path the endpoint is mounted under.
func (g *Gateway) Path() string {
	return g.opts.Path
}

// ToolNames lists the namespaced tools currently exported.
func (g *Gateway) ToolNames() []string {
	return g.features.ToolNames()
}

// Run re-synchronizes every backend on the configured interval until ctx is
// done. It returns immediately when no interval is configured.
func (g *Gateway) Run(ctx context.Context) {
	if g.opts.SyncInterval <= 0 {
		return
	}
	ticker := time.NewTicker(g.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.SyncAll(ctx); err != nil {
				g.logger.Debug("periodic sync incomplete", zap.Error(err))
			}
		}
	}
}

// SyncAll refreshes every known server. Failures for individual servers are
// joined.
func (g *Gateway) SyncAll(ctx context.Context) error {
	var errs []error
	for _, serverID := range g.backends.ListServers() {
		if err := g.SyncServer(ctx, serverID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", serverID, err))
			g.logger.Warn("sync server failed", zap.String("server", serverID), zap.Error(err))
		}
	}
	return errors.Join(errs...)
}

// SyncServer refreshes a specific server's tools and prompts.
func (g *Gateway) SyncServer(ctx context.Context, serverID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.SyncTimeout)
	defer cancel()

	var (
		tools   []*mcp.Tool
		prompts []*mcp.Prompt
	)
	err := g.backends.WithSession(ctx, serverID, func(ctx context.Context, s *mcp.ClientSession) error {
		caps := serverCapabilities(s)
		if caps == nil || caps.Tools != nil {
			for tool, err := range s.Tools(ctx, nil) {
				if err != nil {
					if mcpmgr.IsMethodUnavailable(err) {
						break
					}
					return err
				}
				tools = append(tools, tool)
			}
		}
		if caps == nil || caps.Prompts != nil {
			for prompt, err := range s.Prompts(ctx, nil) {
				if err != nil {
					if mcpmgr.IsMethodUnavailable(err) {
						break
					}
					return err
				}
				prompts = append(prompts, prompt)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	g.publishTools(serverID, tools)
	g.publishPrompts(serverID, prompts)
	g.logger.Debug("synced server",
		zap.String("server", serverID),
		zap.Int("tools", len(tools)),
		zap.Int("prompts", len(prompts)))
	return nil
}

func (g *Gateway) publishTools(serverID string, tools []*mcp.Tool) {
	removed, added := g.features.UpdateTools(serverID, tools)
	g.serverMu.Lock()
	defer g.serverMu.Unlock()
	if len(removed) > 0 {
		g.server.RemoveTools(removed...)
	}
	for _, reg := range added {
		// AddTool panics on schemas that are not JSON objects, and upstream
		// servers are not trusted to send well-formed ones.
		if !isObjectSchema(reg.Tool.InputSchema) {
			reg.Tool.InputSchema = map[string]any{"type": "object"}
		}
		if reg.Tool.OutputSchema != nil && !isObjectSchema(reg.Tool.OutputSchema) {
			reg.Tool.OutputSchema = nil
		}
		g.server.AddTool(reg.Tool, g.makeToolHandler(reg.Target))
	}
}

func (g *Gateway) publishPrompts(serverID string, prompts []*mcp.Prompt) {
	removed, added := g.features.UpdatePrompts(serverID, prompts)
	g.serverMu.Lock()
	defer g.serverMu.Unlock()
	if len(removed) > 0 {
		g.server.RemovePrompts(removed...)
	}
	for _, reg := range added {
		g.server.AddPrompt(reg.Prompt, g.makePromptHandler(reg.Target))
	}
}

func (g *Gateway) makeToolHandler(t target) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := &mcp.CallToolParams{Name: t.NativeName}
		if req.Params != nil {
			params.Meta = req.Params.Meta
			if len(req.Params.Arguments) > 0 {
				params.Arguments = req.Params.Arguments
			}
		}
		var res *mcp.CallToolResult
		err := g.backends.WithSession(ctx, t.ServerID, func(ctx context.Context, s *mcp.ClientSession) error {
			var err error
			res, err = s.CallTool(ctx, params)
			return err
		})
		if err != nil {
			g.logger.Info("forwarded tool call failed",
				zap.String("server", t.ServerID),
				zap.String("tool", t.NativeName),
				zap.String("kind", string(mcpmgr.KindOf(err))),
				zap.Error(err))
			return toolFailure(err), nil
		}
		return res, nil
	}
}

func (g *Gateway) makePromptHandler(t target) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		params := &mcp.GetPromptParams{Name: t.NativeName}
		if req.Params != nil {
			params.Meta = req.Params.Meta
			if len(req.Params.Arguments) > 0 {
				params.Arguments = req.Params.Arguments
			}
		}
		var res *mcp.GetPromptResult
		err := g.backends.WithSession(ctx, t.ServerID, func(ctx context.Context, s *mcp.ClientSession) error {
			var err error
			res, err = s.GetPrompt(ctx, params)
			return err
		})
		return res, err
	}
}

// toolFailure reports a backend failure to the downstream client as a tool
// error so the calling model can see and react to it.
func toolFailure(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func (g *Gateway) mountHandler(stream http.Handler) http.Handler {
	var handler http.Handler = stream
	if g.opts.TokenVerifier != nil {
		handler = auth.RequireBearerToken(g.opts.TokenVerifier, g.opts.TokenOptions)(handler)
	}
	path := g.opts.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	g.opts.Path = path
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	if !strings.HasSuffix(path, "/") {
		mux.Handle(path+"/", handler)
	}
	return mux
}

func serverCapabilities(s *mcp.ClientSession) *mcp.ServerCapabilities {
	if ir := s.InitializeResult(); ir != nil {
		return ir.Capabilities
	}
	return nil
}

func isObjectSchema(schema any) bool {
	m, ok := schema.(map[string]any)
	return ok && m["type"] == "object"
}
