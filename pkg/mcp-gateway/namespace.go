package mcpgateway

import "fmt"

// NamespaceStrategy generates the downstream identifiers for upstream MCP
// servers. Implementations must be deterministic and collision-free for a given
// serverID/name pair.
type NamespaceStrategy interface {
	ToolName(serverID, toolName string) string
	PromptName(serverID, promptName string) string
}

// ServerPrefixNamespace prefixes every identifier with the originating server
// ID, separating fields with a configurable delimiter (defaults to "__", which
// MCP tool names accept).
type ServerPrefixNamespace struct {
	Separator string
}

func (s ServerPrefixNamespace) separator() string {
	if s.Separator == "" {
		return "__"
	}
	return s.Separator
}

func (s ServerPrefixNamespace) ToolName(serverID, toolName string) string {
	return s.decorate(serverID, toolName)
}

func (s ServerPrefixNamespace) PromptName(serverID, promptName string) string {
	return s.decorate(serverID, promptName)
}

func (s ServerPrefixNamespace) decorate(serverID, value string) string {
	return fmt.Sprintf("%s%s%s", serverID, s.separator(), value)
}
