package facade

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownAction is matched by failures for actions that are not configured.
var ErrUnknownAction = errors.New("facade: unknown action")

// Action maps a dashboard button onto a tool call with default arguments.
type Action struct {
	Tool     string         `yaml:"tool"`
	Defaults map[string]any `yaml:"defaults"`
}

// Actions indexes configured actions by server id, then action name.
type Actions map[string]map[string]Action

type actionsFile struct {
	Actions Actions `yaml:"actions"`
}

// LoadActions reads the "actions" section of a YAML configuration file. A file
// without that section yields an empty set.
func LoadActions(path string) (Actions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("facade: read config: %w", err)
	}
	return ParseActions(data)
}

// ParseActions decodes the "actions" section of a YAML document.
func ParseActions(data []byte) (Actions, error) {
	var f actionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("facade: parse actions: %w", err)
	}
	for serverID, byName := range f.Actions {
		for name, a := range byName {
			if a.Tool == "" {
				return nil, fmt.Errorf("facade: action %s/%s has no tool", serverID, name)
			}
		}
	}
	if f.Actions == nil {
		f.Actions = Actions{}
	}
	return f.Actions, nil
}

// Lookup returns the action registered for serverID under name.
func (a Actions) Lookup(serverID, name string) (Action, error) {
	if action, ok := a[serverID][name]; ok {
		return action, nil
	}
	return Action{}, fmt.Errorf("%w %q for server %q", ErrUnknownAction, name, serverID)
}

// Names lists the action names configured for serverID in sorted order.
func (a Actions) Names(serverID string) []string {
	names := make([]string, 0, len(a[serverID]))
	for name := range a[serverID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Arguments merges overrides onto the action's defaults. Neither input is
// modified.
func (a Action) Arguments(overrides map[string]any) map[string]any {
	out := maps.Clone(a.Defaults)
	if out == nil {
		out = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
