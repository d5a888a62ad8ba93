package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPLauncher launches stdio MCP servers as tool providers.
type MCPLauncher struct {
	// ClientName and ClientVersion are reported during the initialize
	// handshake.
	ClientName    string
	ClientVersion string
	// InheritEnv passes the current process environment to providers,
	// with Spec.Env applied on top.
	InheritEnv bool
}

// Launch starts the provider subprocess and waits for its initialize
// response, which is the readiness handshake.
func (l *MCPLauncher) Launch(ctx context.Context, spec Spec) (Conn, error) {
	var base []string
	if l.InheritEnv {
		base = os.Environ()
	}

	c, err := client.NewStdioMCPClient(spec.Command, mergeEnv(base, spec.Env), spec.Args...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    l.clientName(),
		Version: l.ClientVersion,
	}
	if _, err := c.Initialize(ctx, req); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize %s: %w", spec.Name, err)
	}

	return &mcpConn{client: c}, nil
}

func (l *MCPLauncher) clientName() string {
	if l.ClientName == "" {
		return "graphseed"
	}
	return l.ClientName
}

type mcpConn struct {
	client *client.Client
}

func (c *mcpConn) Tools(ctx context.Context) ([]ToolInfo, error) {
	listed, err := listAllTools(ctx, c.client)
	if err != nil {
		return nil, err
	}
	tools := make([]ToolInfo, 0, len(listed))
	for _, t := range listed {
		tools = append(tools, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: Schema{
				Properties: t.InputSchema.Properties,
				Required:   t.InputSchema.Required,
			},
		})
	}
	return tools, nil
}

// toolPager is the paged tools/list call of an MCP client.
type toolPager interface {
	ListToolsByPage(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
}

// listAllTools follows NextCursor until the server reports no further page.
// A cursor the server already returned ends the listing with an error.
func listAllTools(ctx context.Context, p toolPager) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	seen := make(map[mcp.Cursor]bool)
	req := mcp.ListToolsRequest{}
	for {
		res, err := p.ListToolsByPage(ctx, req)
		if err != nil {
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		if seen[res.NextCursor] {
			return nil, fmt.Errorf("tools/list repeated cursor %q", res.NextCursor)
		}
		seen[res.NextCursor] = true
		req.Params.Cursor = res.NextCursor
	}
}

func (c *mcpConn) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", name, err)
	}
	text := flattenContent(res.Content)
	if res.IsError {
		return "", fmt.Errorf("%s reported an error: %s", name, text)
	}
	return text, nil
}

func (c *mcpConn) Close() error {
	return c.client.Close()
}

// flattenContent joins the text items of a tool result. Non-text items are
// summarised by their type.
func flattenContent(items []mcp.Content) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if tc, ok := mcp.AsTextContent(item); ok {
			parts = append(parts, tc.Text)
			continue
		}
		parts = append(parts, fmt.Sprintf("[%T omitted]", item))
	}
	return strings.Join(parts, "\n")
}

// mergeEnv overlays extra KEY=VALUE pairs onto base. Keys in extra replace
// matching keys in base; the result is deterministic.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, override := extra[key]; override {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

var (
	_ Launcher  = (*MCPLauncher)(nil)
	_ toolPager = (*client.Client)(nil)
)
