package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"netagent/internal/config"
)

// MCPRegistry runs one stdio MCP client per configured server and exposes
// their tools under the server's namespace prefix. Connections are
// established once at startup and shared by all requests; the tool list is
// fetched per server and cached.
type MCPRegistry struct {
	mu      sync.RWMutex
	clients map[string]*client.Client
	cache   map[string][]Tool
}

func NewMCPRegistry() *MCPRegistry {
	return &MCPRegistry{
		clients: make(map[string]*client.Client),
		cache:   make(map[string][]Tool),
	}
}

// Start launches and initializes every configured server process.
func (r *MCPRegistry) Start(ctx context.Context, servers []config.MCPServerConfig) error {
	for _, s := range servers {
		c, err := client.NewStdioMCPClient(s.Command, s.Env, s.Args...)
		if err != nil {
			return fmt.Errorf("start mcp server %s: %w", s.Prefix, err)
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initReq.Params.ClientInfo = mcp.Implementation{Name: "netagent", Version: "0.1.0"}
		if _, err := c.Initialize(ctx, initReq); err != nil {
			_ = c.Close()
			return fmt.Errorf("initialize mcp server %s: %w", s.Prefix, err)
		}

		r.mu.Lock()
		r.clients[s.Prefix] = c
		r.mu.Unlock()
		log.Info().Str("prefix", s.Prefix).Str("command", s.Command).Msg("mcp server connected")
	}
	return nil
}

func (r *MCPRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for prefix, c := range r.clients {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("prefix", prefix).Msg("closing mcp client")
		}
	}
	r.clients = make(map[string]*client.Client)
}

func (r *MCPRegistry) List(ctx context.Context, prefix string) ([]Tool, error) {
	r.mu.RLock()
	if cached, ok := r.cache[prefix]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	c, ok := r.clients[prefix]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no mcp server for prefix %q", prefix)
	}

	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools %s: %w", prefix, err)
	}

	out := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, Tool{
			Name:        namespaced(prefix, t.Name),
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
		})
	}

	r.mu.Lock()
	r.cache[prefix] = out
	r.mu.Unlock()
	return out, nil
}

func (r *MCPRegistry) Invoke(ctx context.Context, name string, params map[string]any) (string, error) {
	prefix, bare, ok := strings.Cut(name, ".")
	if !ok {
		return "", fmt.Errorf("tool name %q has no namespace", name)
	}

	r.mu.RLock()
	c, found := r.clients[prefix]
	r.mu.RUnlock()
	if !found {
		return "", fmt.Errorf("no mcp server for prefix %q", prefix)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = bare
	req.Params.Arguments = params
	res, err := c.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", name, err)
	}

	text := contentText(res.Content)
	if res.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}

func contentText(content []mcp.Content) string {
	var b strings.Builder
	for _, c := range content {
		if tc, ok := mcp.AsTextContent(c); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func namespaced(prefix, name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return prefix + "." + name
}

func schemaToMap(s mcp.ToolInputSchema) map[string]any {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
