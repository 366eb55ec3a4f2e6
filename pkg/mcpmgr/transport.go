package mcpmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// candidateTransports returns the transports to try, in order, for cfg. Network
// servers get a Streamable HTTP attempt followed by SSE unless SSE is preferred
// or the endpoint is obviously an SSE one.
func (m *Manager) candidateTransports(ctx context.Context, cfg ServerConfig) ([]mcp.Transport, error) {
	if m.opts.Transport != nil {
		t, err := m.opts.Transport(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return []mcp.Transport{t}, nil
	}
	switch {
	case IsSubprocess(cfg):
		t, err := buildCommandTransport(cfg)
		if err != nil {
			return nil, err
		}
		return []mcp.Transport{t}, nil
	case IsNetwork(cfg):
		client := decorateHTTPClient(m.opts.HTTPClient, cfg.Headers)
		streamable := &mcp.StreamableClientTransport{Endpoint: cfg.BaseURL, HTTPClient: client}
		sse := &mcp.SSEClientTransport{Endpoint: cfg.BaseURL, HTTPClient: client}
		if shouldPreferSSE(cfg) {
			return []mcp.Transport{sse}, nil
		}
		return []mcp.Transport{streamable, sse}, nil
	default:
		return nil, fmt.Errorf("mcpmgr: unsupported transport %q for %q", cfg.Transport, cfg.ID)
	}
}

func buildCommandTransport(cfg ServerConfig) (*mcp.CommandTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcpmgr: command missing for %q", cfg.ID)
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	grace := cfg.TerminateGrace
	if grace <= 0 {
		grace = defaultTerminateGrace
	}
	return &mcp.CommandTransport{Command: cmd, TerminateDuration: grace}, nil
}

func shouldPreferSSE(cfg ServerConfig) bool {
	if cfg.PreferSSE != nil {
		return *cfg.PreferSSE
	}
	return strings.HasSuffix(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"), "/sse")
}

// detachedTransport hands the delegate a long-lived context on Connect. The
// go-sdk network transports tie the connection's lifetime to the context passed
// to Connect, which would otherwise be the short handshake deadline.
type detachedTransport struct {
	ctx      context.Context
	delegate mcp.Transport
}

func (t *detachedTransport) Connect(context.Context) (mcp.Connection, error) {
	return t.delegate.Connect(t.ctx)
}

type loggingTransport struct {
	serverID string
	delegate mcp.Transport
	logger   RPCLogger
}

func (t *loggingTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.delegate.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &loggingConnection{serverID: t.serverID, delegate: conn, logger: t.logger}, nil
}

type loggingConnection struct {
	serverID string
	delegate mcp.Connection
	logger   RPCLogger
	mu       sync.Mutex
}

func (c *loggingConnection) SessionID() string { return c.delegate.SessionID() }

func (c *loggingConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	msg, err := c.delegate.Read(ctx)
	if err == nil {
		c.emit(RPCDirectionReceive, msg)
	}
	return msg, err
}

func (c *loggingConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	if err := c.delegate.Write(ctx, msg); err != nil {
		return err
	}
	c.emit(RPCDirectionSend, msg)
	return nil
}

func (c *loggingConnection) Close() error { return c.delegate.Close() }

func (c *loggingConnection) emit(direction RPCDirection, msg jsonrpc.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	encoded, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		encoded, _ = json.Marshal(err.Error())
	}
	c.logger(RPCLogEvent{Direction: direction, Message: encoded, ServerID: c.serverID})
}

func (m *Manager) resolveRPCLogger() RPCLogger {
	if m.opts.RPCLogger != nil {
		return m.opts.RPCLogger
	}
	if !m.opts.LogJSONRPC {
		return nil
	}
	logger := m.logger
	return func(event RPCLogEvent) {
		logger.Debug("jsonrpc",
			zap.String("server", event.ServerID),
			zap.String("direction", string(event.Direction)),
			zap.ByteString("message", event.Message))
	}
}

func decorateHTTPClient(base *http.Client, headers http.Header) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	if len(headers) == 0 {
		return base
	}
	clone := *base
	clone.Transport = &headerDecorator{
		next:    defaultRoundTripper(base.Transport),
		headers: cloneHeader(headers),
	}
	return &clone
}

type headerDecorator struct {
	next    http.RoundTripper
	headers http.Header
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(req.Context())
	for k, values := range d.headers {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	return d.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}

func cloneHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	return h.Clone()
}
