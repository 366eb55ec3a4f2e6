package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/vikashloomba/mcp-dashboard-go/pkg/mcpmgr"
)

// SessionRunner runs a function against a live session for a server id.
// *mcpmgr.Manager implements it.
type SessionRunner interface {
	WithSession(ctx context.Context, serverID string, fn func(context.Context, *mcp.ClientSession) error) error
}

// Options configures an Invoker.
type Options struct {
	// Logger receives one entry per invocation. Defaults to a no-op logger.
	Logger *zap.Logger
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}

// Invoker performs status checks, listings and calls against registered
// servers and reports every outcome as an Envelope. It never returns an error
// or panics to its caller.
type Invoker struct {
	sessions SessionRunner
	logger   *zap.Logger
}

// NewInvoker returns an Invoker backed by sessions.
func NewInvoker(sessions SessionRunner, opts *Options) *Invoker {
	options := opts.withDefaults()
	return &Invoker{sessions: sessions, logger: options.Logger.Named("invoke")}
}

// StatusReport is the data of a successful status check.
type StatusReport struct {
	// Status is "healthy" when the server answered a ping and "error"
	// otherwise.
	Status          string              `json:"status"`
	Connected       bool                `json:"connected"`
	Server          *mcp.Implementation `json:"server,omitempty"`
	ProtocolVersion string              `json:"protocolVersion,omitempty"`
	Error           string              `json:"error,omitempty"`
}

const (
	statusHealthy = "healthy"
	statusError   = "error"
)

// Do dispatches req to the matching operation.
func (inv *Invoker) Do(ctx context.Context, req Request) Envelope {
	if req.ID == "" {
		req.ID = NewRequest(req.Op, req.ServerID).ID
	}
	if err := req.Validate(); err != nil {
		env := Fail(err, 0)
		inv.log(req, env)
		return env
	}
	return inv.run(ctx, req, func(ctx context.Context) (any, error) {
		switch req.Op {
		case OpStatus:
			return inv.status(ctx, req.ServerID)
		case OpTools:
			return inv.listTools(ctx, req.ServerID)
		case OpPrompts:
			return inv.listPrompts(ctx, req.ServerID)
		case OpCallTool:
			return inv.callTool(ctx, req.ServerID, req.Name, req.Arguments)
		default:
			return inv.getPrompt(ctx, req.ServerID, req.Name, req.Arguments)
		}
	})
}

// Status pings serverID. A server that cannot be reached at all yields a
// failed envelope; one that is reachable but does not answer the ping yields
// a successful envelope whose StatusReport says "error".
func (inv *Invoker) Status(ctx context.Context, serverID string) Envelope {
	return inv.Do(ctx, Request{Op: OpStatus, ServerID: serverID})
}

// ListTools returns the server's tools as []Descriptor.
func (inv *Invoker) ListTools(ctx context.Context, serverID string) Envelope {
	return inv.Do(ctx, Request{Op: OpTools, ServerID: serverID})
}

// ListPrompts returns the server's prompts as []Descriptor.
func (inv *Invoker) ListPrompts(ctx context.Context, serverID string) Envelope {
	return inv.Do(ctx, Request{Op: OpPrompts, ServerID: serverID})
}

// CallTool invokes a tool. The envelope carries the tool's structured content
// when it produced any, and the full *mcp.CallToolResult otherwise.
func (inv *Invoker) CallTool(ctx context.Context, serverID, name string, args map[string]any) Envelope {
	return inv.Do(ctx, Request{Op: OpCallTool, ServerID: serverID, Name: name, Arguments: args})
}

// GetPrompt renders a prompt into an *mcp.GetPromptResult.
func (inv *Invoker) GetPrompt(ctx context.Context, serverID, name string, args map[string]any) Envelope {
	return inv.Do(ctx, Request{Op: OpGetPrompt, ServerID: serverID, Name: name, Arguments: args})
}

func (inv *Invoker) run(ctx context.Context, req Request, op func(context.Context) (any, error)) (env Envelope) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			env = Fail(fmt.Errorf("invoke: %s on %q panicked: %v", req.Op, req.ServerID, r), time.Since(start))
		}
		inv.log(req, env)
	}()
	data, err := op(ctx)
	if err != nil {
		return Fail(err, time.Since(start))
	}
	return Succeed(data, time.Since(start))
}

func (inv *Invoker) log(req Request, env Envelope) {
	fields := []zap.Field{
		zap.String("request_id", req.ID),
		zap.String("server", req.ServerID),
		zap.String("op", string(req.Op)),
	}
	if req.Name != "" {
		fields = append(fields, zap.String("name", req.Name))
	}
	if env.ExecutionTime != nil {
		fields = append(fields, zap.Float64("duration_ms", *env.ExecutionTime))
	}
	if env.Success {
		inv.logger.Debug("invocation succeeded", fields...)
		return
	}
	fields = append(fields, zap.String("kind", string(env.Kind)), zap.String("error", env.Error))
	inv.logger.Info("invocation failed", fields...)
}

func (inv *Invoker) status(ctx context.Context, serverID string) (any, error) {
	var (
		reached bool
		report  = StatusReport{Status: statusHealthy, Connected: true}
	)
	err := inv.sessions.WithSession(ctx, serverID, func(ctx context.Context, s *mcp.ClientSession) error {
		reached = true
		if ir := s.InitializeResult(); ir != nil {
			report.Server = ir.ServerInfo
			report.ProtocolVersion = ir.ProtocolVersion
		}
		return s.Ping(ctx, nil)
	})
	if err == nil {
		return report, nil
	}
	if !reached || ctx.Err() != nil {
		return nil, err
	}
	report.Status = statusError
	report.Connected = mcpmgr.KindOf(err) != mcpmgr.KindTransportBroken
	report.Error = messageOf(err)
	return report, nil
}

func (inv *Invoker) listTools(ctx context.Context, serverID string) (any, error) {
	out := []Descriptor{}
	err := inv.sessions.WithSession(ctx, serverID, func(ctx context.Context, s *mcp.ClientSession) error {
		if ir := s.InitializeResult(); ir != nil && ir.Capabilities != nil && ir.Capabilities.Tools == nil {
			return nil
		}
		for tool, err := range s.Tools(ctx, nil) {
			if err != nil {
				if mcpmgr.IsMethodUnavailable(err) {
					out = []Descriptor{}
					return nil
				}
				return err
			}
			out = append(out, toolDescriptor(tool))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (inv *Invoker) listPrompts(ctx context.Context, serverID string) (any, error) {
	out := []Descriptor{}
	err := inv.sessions.WithSession(ctx, serverID, func(ctx context.Context, s *mcp.ClientSession) error {
		if ir := s.InitializeResult(); ir != nil && ir.Capabilities != nil && ir.Capabilities.Prompts == nil {
			return nil
		}
		for prompt, err := range s.Prompts(ctx, nil) {
			if err != nil {
				if mcpmgr.IsMethodUnavailable(err) {
					out = []Descriptor{}
					return nil
				}
				return err
			}
			out = append(out, promptDescriptor(prompt))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (inv *Invoker) callTool(ctx context.Context, serverID, name string, args map[string]any) (any, error) {
	var data any
	err := inv.sessions.WithSession(ctx, serverID, func(ctx context.Context, s *mcp.ClientSession) error {
		params := &mcp.CallToolParams{Name: name, Arguments: args}
		if args == nil {
			params.Arguments = map[string]any{}
		}
		res, err := s.CallTool(ctx, params)
		if err != nil {
			return err
		}
		if res.IsError {
			return &mcpmgr.RemoteError{ServerID: serverID, Method: "tools/call", Message: textOf(res.Content)}
		}
		if res.StructuredContent != nil {
			data = res.StructuredContent
		} else {
			data = res
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (inv *Invoker) getPrompt(ctx context.Context, serverID, name string, args map[string]any) (any, error) {
	params := &mcp.GetPromptParams{Name: name, Arguments: stringifyArgs(args)}
	var res *mcp.GetPromptResult
	err := inv.sessions.WithSession(ctx, serverID, func(ctx context.Context, s *mcp.ClientSession) error {
		var err error
		res, err = s.GetPrompt(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// stringifyArgs converts prompt arguments to the string map MCP requires.
// Strings pass through; other values are JSON encoded.
func stringifyArgs(args map[string]any) map[string]string {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(raw)
		}
	}
	return out
}

func textOf(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if t, ok := c.(*mcp.TextContent); ok && t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func messageOf(err error) string {
	if err == nil || err.Error() == "" {
		return UnknownError
	}
	return err.Error()
}

func classify(err error) mcpmgr.ErrorKind {
	if err == nil {
		return mcpmgr.KindUnknown
	}
	return mcpmgr.KindOf(err)
}
