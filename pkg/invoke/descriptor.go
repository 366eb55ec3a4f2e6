package invoke

import "github.com/modelcontextprotocol/go-sdk/mcp"

// Descriptor describes one tool or prompt offered by a server.
type Descriptor struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	// InputSchema is the JSON Schema of the accepted arguments. Prompt
	// arguments are always strings, so their schema is synthesized.
	InputSchema any `json:"inputSchema,omitempty"`
	// Arguments lists prompt arguments in declaration order.
	Arguments []*mcp.PromptArgument `json:"arguments,omitempty"`
}

func toolDescriptor(t *mcp.Tool) Descriptor {
	title := t.Title
	if title == "" && t.Annotations != nil {
		title = t.Annotations.Title
	}
	return Descriptor{
		Name:        t.Name,
		Title:       title,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

func promptDescriptor(p *mcp.Prompt) Descriptor {
	return Descriptor{
		Name:        p.Name,
		Title:       p.Title,
		Description: p.Description,
		InputSchema: promptSchema(p.Arguments),
		Arguments:   p.Arguments,
	}
}

func promptSchema(args []*mcp.PromptArgument) map[string]any {
	props := make(map[string]any, len(args))
	var required []string
	for _, a := range args {
		prop := map[string]any{"type": "string"}
		if a.Description != "" {
			prop["description"] = a.Description
		}
		props[a.Name] = prop
		if a.Required {
			required = append(required, a.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
