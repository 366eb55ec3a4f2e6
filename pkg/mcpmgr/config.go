package mcpmgr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// RPCDirection represents the direction of an observed JSON-RPC message.
type RPCDirection string

const (
	RPCDirectionSend    RPCDirection = "send"
	RPCDirectionReceive RPCDirection = "receive"
)

// RPCLogEvent encapsulates JSON-RPC traffic for custom logging.
type RPCLogEvent struct {
	Direction RPCDirection
	Message   []byte
	ServerID  string
}

// RPCLogger is invoked for each JSON-RPC message when logging is enabled.
type RPCLogger func(RPCLogEvent)

// TransportKind identifies how a backend is reached.
type TransportKind string

const (
	// TransportSubprocess launches the backend as a child process and speaks
	// MCP over its stdin/stdout.
	TransportSubprocess TransportKind = "subprocess"
	// TransportNetwork dials the backend over Streamable HTTP, falling back to
	// SSE.
	TransportNetwork TransportKind = "network"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultTerminateGrace = 5 * time.Second
)

// ServerConfig describes one backend tool server. Values are copied into the
// Registry at startup and never mutated afterwards.
type ServerConfig struct {
	ID        string
	Name      string
	Transport TransportKind

	// Subprocess settings.
	Command string
	Args    []string
	Dir     string
	Env     map[string]string

	// Network settings.
	BaseURL   string
	Headers   http.Header
	PreferSSE *bool

	// ConnectTimeout bounds transport start plus handshake. Zero selects the
	// manager default.
	ConnectTimeout time.Duration
	// CallTimeout bounds a single operation on an established session. Zero
	// means no limit is imposed by this layer.
	CallTimeout time.Duration
	// TerminateGrace is how long a subprocess may take to exit after its
	// stdin is closed before it is signalled.
	TerminateGrace time.Duration
}

// DisplayName returns Name, or the ID when no name was configured.
func (c ServerConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Validate reports the first structural problem with the configuration.
func (c ServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("mcpmgr: server id is required")
	}
	switch c.Transport {
	case TransportSubprocess:
		if c.Command == "" {
			return fmt.Errorf("mcpmgr: command missing for %q", c.ID)
		}
	case TransportNetwork:
		if c.BaseURL == "" {
			return fmt.Errorf("mcpmgr: base url missing for %q", c.ID)
		}
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("mcpmgr: invalid base url for %q: %w", c.ID, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("mcpmgr: base url for %q must be http or https, got %q", c.ID, u.Scheme)
		}
	default:
		return fmt.Errorf("mcpmgr: unknown transport %q for %q", c.Transport, c.ID)
	}
	if c.ConnectTimeout < 0 || c.CallTimeout < 0 || c.TerminateGrace < 0 {
		return fmt.Errorf("mcpmgr: negative duration in config for %q", c.ID)
	}
	return nil
}

func (c ServerConfig) clone() ServerConfig {
	out := c
	if c.Args != nil {
		out.Args = append([]string(nil), c.Args...)
	}
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	out.Headers = cloneHeader(c.Headers)
	if c.PreferSSE != nil {
		v := *c.PreferSSE
		out.PreferSSE = &v
	}
	return out
}

// TransportFactory builds the transport used to reach a backend. Tests and
// embedders can replace the default to supply in-memory or instrumented
// transports.
type TransportFactory func(ctx context.Context, cfg ServerConfig) (mcp.Transport, error)

// ManagerOptions configures a Manager instance.
type ManagerOptions struct {
	// ClientName overrides the client name advertised during initialization.
	// When empty, "mcp-dashboard" is used.
	ClientName string
	// ClientVersion controls the semantic version reported to servers.
	ClientVersion string
	// DefaultConnectTimeout applies whenever a server configuration omits an
	// explicit ConnectTimeout.
	DefaultConnectTimeout time.Duration
	// ClientOptions are passed to every mcp.Client the manager creates.
	ClientOptions mcp.ClientOptions
	// LogJSONRPC logs every JSON-RPC message at debug level.
	LogJSONRPC bool
	// RPCLogger receives JSON-RPC traffic; it takes precedence over LogJSONRPC.
	RPCLogger RPCLogger
	// Transport replaces the default transport construction.
	Transport TransportFactory
	// HTTPClient is the base client for network transports.
	HTTPClient *http.Client
	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

func (o *ManagerOptions) withDefaults() ManagerOptions {
	if o == nil {
		o = &ManagerOptions{}
	}
	opts := *o
	if opts.ClientName == "" {
		opts.ClientName = "mcp-dashboard"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.DefaultConnectTimeout <= 0 {
		opts.DefaultConnectTimeout = defaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}
