package mcpgateway

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Options configure a Gateway instance.
type Options struct {
	// Implementation identifies the gateway's MCP server implementation metadata.
	Implementation *mcp.Implementation
	// Path mounts the Streamable handler under a specific HTTP path. Defaults
	// to "/mcp".
	Path string
	// Namespace customizes how upstream names are exposed to downstream
	// clients. Defaults to ServerPrefixNamespace.
	Namespace NamespaceStrategy
	// Streamable tweaks the Streamable HTTP handler behavior passed to
	// mcp.NewStreamableHTTPHandler.
	Streamable mcp.StreamableHTTPOptions
	// TokenVerifier, when set, requires a bearer token on every request to the
	// endpoint.
	TokenVerifier auth.TokenVerifier
	// TokenOptions tune the bearer token check.
	TokenOptions *auth.RequireBearerTokenOptions
	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
	// SyncTimeout bounds how long a single server synchronization may take.
	SyncTimeout time.Duration
	// SyncInterval re-synchronizes every server periodically while Run is
	// active. Zero disables periodic refresh.
	SyncInterval time.Duration
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Implementation == nil {
		opts.Implementation = &mcp.Implementation{
			Name:    "mcp-dashboard-gateway",
			Title:   "MCP Dashboard Gateway",
			Version: "1.0.0",
		}
	} else {
		impl := *opts.Implementation
		opts.Implementation = &impl
	}
	if opts.Path == "" {
		opts.Path = "/mcp"
	}
	if opts.Namespace == nil {
		opts.Namespace = ServerPrefixNamespace{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 30 * time.Second
	}
	return opts
}
