package tools

import (
	"context"
	"fmt"
	"sort"
)

// Tool describes one invocable capability. Names are namespaced as
// "prefix.name" (network.ping, mysql.execute_query).
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Invoker is the registry surface the orchestration core consumes. List
// returns the tools for one agent's namespace prefix; Invoke runs a tool by
// its namespaced name.
type Invoker interface {
	List(ctx context.Context, prefix string) ([]Tool, error)
	Invoke(ctx context.Context, name string, params map[string]any) (string, error)
}

// Static is a fixed in-memory registry, used in tests and as a stand-in when
// no MCP servers are configured.
type Static struct {
	Tools   []Tool
	Handler func(ctx context.Context, name string, params map[string]any) (string, error)
}

func (s *Static) List(_ context.Context, prefix string) ([]Tool, error) {
	var out []Tool
	for _, t := range s.Tools {
		if prefix == "" || hasPrefix(t.Name, prefix) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Static) Invoke(ctx context.Context, name string, params map[string]any) (string, error) {
	for _, t := range s.Tools {
		if t.Name == name {
			if s.Handler == nil {
				return "", fmt.Errorf("tool %s has no handler", name)
			}
			return s.Handler(ctx, name, params)
		}
	}
	return "", fmt.Errorf("unknown tool: %s", name)
}

func hasPrefix(name, prefix string) bool {
	return len(name) > len(prefix)+1 && name[:len(prefix)] == prefix && name[len(prefix)] == '.'
}
