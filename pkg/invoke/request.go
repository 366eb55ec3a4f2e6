package invoke

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidRequest is matched by failures caused by a malformed Request.
var ErrInvalidRequest = errors.New("invoke: invalid request")

// Op names one of the operations the invoker can perform on a server.
type Op string

const (
	OpStatus    Op = "status"
	OpTools     Op = "tools"
	OpPrompts   Op = "prompts"
	OpCallTool  Op = "call-tool"
	OpGetPrompt Op = "get-prompt"
)

// ParseOp accepts the canonical operation names plus the spellings dashboard
// pages have historically sent.
func ParseOp(s string) (Op, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "status", "health":
		return OpStatus, true
	case "tools", "list-tools", "listtools":
		return OpTools, true
	case "prompts", "list-prompts", "listprompts":
		return OpPrompts, true
	case "call-tool", "calltool", "call_tool":
		return OpCallTool, true
	case "get-prompt", "getprompt", "get_prompt":
		return OpGetPrompt, true
	default:
		return "", false
	}
}

// Request is a single invocation addressed to one server.
type Request struct {
	// ID correlates log lines for one invocation. Do fills it when empty.
	ID        string
	Op        Op
	ServerID  string
	Name      string
	Arguments map[string]any
}

// NewRequest returns a Request with a fresh correlation id.
func NewRequest(op Op, serverID string) Request {
	return Request{ID: uuid.NewString(), Op: op, ServerID: serverID}
}

// Validate reports whether the request is well formed. It does not consult
// the registry.
func (r Request) Validate() error {
	if r.ServerID == "" {
		return fmt.Errorf("%w: server id is required", ErrInvalidRequest)
	}
	switch r.Op {
	case OpStatus, OpTools, OpPrompts:
		return nil
	case OpCallTool:
		if r.Name == "" {
			return fmt.Errorf("%w: tool name is required", ErrInvalidRequest)
		}
	case OpGetPrompt:
		if r.Name == "" {
			return fmt.Errorf("%w: prompt name is required", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, r.Op)
	}
	return nil
}
