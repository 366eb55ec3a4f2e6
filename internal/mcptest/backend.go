// Package mcptest provides in-process MCP backends for tests. Each backend is
// a real go-sdk server reached over in-memory transports, so handshakes,
// listings and calls exercise the same code paths as a spawned process.
package mcptest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Backend is a fake tool server. The zero value is not usable; call
// NewBackend.
type Backend struct {
	Name string

	// ConnectDelay is slept before every handshake, standing in for process
	// start-up cost.
	ConnectDelay time.Duration
	// FailConnect makes every connection attempt fail.
	FailConnect error

	server   *mcp.Server
	connects atomic.Int64

	mu       sync.Mutex
	sessions []*mcp.ServerSession
}

// NewBackend returns a backend exposing the tools "echo", "fail" and "sleep"
// and the prompt "greet".
func NewBackend(name string) *Backend {
	b := &Backend{Name: name}
	b.server = mcp.NewServer(&mcp.Implementation{Name: name, Version: "0.0.1"}, nil)
	objectSchema := map[string]any{"type": "object"}

	b.server.AddTool(&mcp.Tool{
		Name:        "echo",
		Description: "Returns its arguments unchanged.",
		InputSchema: objectSchema,
	}, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := decodeArgs(req)
		if err != nil {
			return nil, err
		}
		raw, _ := json.Marshal(args)
		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(raw)}},
			StructuredContent: args,
		}, nil
	})

	b.server.AddTool(&mcp.Tool{
		Name:        "fail",
		Description: "Always reports a tool error.",
		InputSchema: objectSchema,
	}, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := decodeArgs(req)
		msg, _ := args["message"].(string)
		if msg == "" {
			msg = "tool failed"
		}
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		}, nil
	})

	b.server.AddTool(&mcp.Tool{
		Name:        "sleep",
		Description: "Waits for ms milliseconds, then returns.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"ms": map[string]any{"type": "number"}},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := decodeArgs(req)
		ms, _ := args["ms"].(float64)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}
		return &mcp.CallToolResult{StructuredContent: map[string]any{"slept": ms}}, nil
	})

	b.server.AddPrompt(&mcp.Prompt{
		Name:        "greet",
		Description: "Greets someone by name.",
		Arguments:   []*mcp.PromptArgument{{Name: "name", Required: true}},
	}, func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		name := req.Params.Arguments["name"]
		if name == "" {
			return nil, errors.New("name is required")
		}
		return &mcp.GetPromptResult{
			Description: "greeting",
			Messages: []*mcp.PromptMessage{{
				Role:    "user",
				Content: &mcp.TextContent{Text: fmt.Sprintf("Hello, %s!", name)},
			}},
		}, nil
	})
	return b
}

// Connect starts a server session over a fresh in-memory pipe and returns the
// client end. Its signature matches mcpmgr.TransportFactory once the config
// argument is bound.
func (b *Backend) Connect(ctx context.Context) (mcp.Transport, error) {
	b.connects.Add(1)
	if b.ConnectDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.ConnectDelay):
		}
	}
	if b.FailConnect != nil {
		return nil, b.FailConnect
	}
	clientT, serverT := mcp.NewInMemoryTransports()
	ss, err := b.server.Connect(ctx, serverT, nil)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.sessions = append(b.sessions, ss)
	b.mu.Unlock()
	return clientT, nil
}

// Connects reports how many connection attempts the backend has seen.
func (b *Backend) Connects() int { return int(b.connects.Load()) }

// Break closes every server-side session, simulating a crashed process.
func (b *Backend) Break() {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = nil
	b.mu.Unlock()
	for _, ss := range sessions {
		_ = ss.Close()
	}
}

// Server exposes the underlying MCP server so tests can add features.
func (b *Backend) Server() *mcp.Server { return b.server }

func decodeArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	args := map[string]any{}
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}
