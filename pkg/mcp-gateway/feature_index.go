package mcpgateway

import (
	"maps"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	metaKeyServerID   = "mcpgateway.server_id"
	metaKeyNativeName = "mcpgateway.native_name"
)

// featureIndex remembers which gateway names belong to which backend so a
// resync can retract exactly the names it previously published.
type featureIndex struct {
	ns NamespaceStrategy

	mu sync.RWMutex

	tools         map[string]target
	serverTools   map[string][]string
	prompts       map[string]target
	serverPrompts map[string][]string
}

type target struct {
	GatewayName string
	ServerID    string
	NativeName  string
}

type toolRegistration struct {
	Tool   *mcp.Tool
	Target target
}

type promptRegistration struct {
	Prompt *mcp.Prompt
	Target target
}

func newFeatureIndex(ns NamespaceStrategy) *featureIndex {
	return &featureIndex{
		ns:            ns,
		tools:         make(map[string]target),
		serverTools:   make(map[string][]string),
		prompts:       make(map[string]target),
		serverPrompts: make(map[string][]string),
	}
}

func (f *featureIndex) UpdateTools(serverID string, upstream []*mcp.Tool) (removed []string, added []toolRegistration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed = removeLocked(f.tools, f.serverTools, serverID)
	added = make([]toolRegistration, 0, len(upstream))
	names := make([]string, 0, len(upstream))
	for _, tool := range upstream {
		if tool == nil {
			continue
		}
		gatewayName := f.ns.ToolName(serverID, tool.Name)
		clone := *tool
		clone.Name = gatewayName
		clone.Meta = withMeta(tool.Meta, serverID, tool.Name)
		t := target{GatewayName: gatewayName, ServerID: serverID, NativeName: tool.Name}
		f.tools[gatewayName] = t
		added = append(added, toolRegistration{Tool: &clone, Target: t})
		names = append(names, gatewayName)
	}
	f.serverTools[serverID] = names
	return removed, added
}

func (f *featureIndex) UpdatePrompts(serverID string, upstream []*mcp.Prompt) (removed []string, added []promptRegistration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed = removeLocked(f.prompts, f.serverPrompts, serverID)
	added = make([]promptRegistration, 0, len(upstream))
	var names []string
	for _, prompt := range upstream {
		if prompt == nil {
			continue
		}
		gatewayName := f.ns.PromptName(serverID, prompt.Name)
		clone := *prompt
		clone.Name = gatewayName
		clone.Meta = withMeta(prompt.Meta, serverID, prompt.Name)
		t := target{GatewayName: gatewayName, ServerID: serverID, NativeName: prompt.Name}
		f.prompts[gatewayName] = t
		added = append(added, promptRegistration{Prompt: &clone, Target: t})
		names = append(names, gatewayName)
	}
	f.serverPrompts[serverID] = names
	return removed, added
}

func (f *featureIndex) ToolTarget(name string) (target, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.tools[name]
	return t, ok
}

func (f *featureIndex) PromptTarget(name string) (target, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prompts[name]
	return p, ok
}

// ToolNames returns every published tool name in sorted order.
func (f *featureIndex) ToolNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.tools))
	for name := range f.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func removeLocked(index map[string]target, byServer map[string][]string, serverID string) []string {
	names := byServer[serverID]
	if len(names) == 0 {
		return nil
	}
	for _, name := range names {
		delete(index, name)
	}
	delete(byServer, serverID)
	return append([]string(nil), names...)
}

func withMeta(base map[string]any, serverID, nativeName string) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any)
	}
	out[metaKeyServerID] = serverID
	out[metaKeyNativeName] = nativeName
	return out
}
