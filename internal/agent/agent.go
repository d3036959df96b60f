// Package agent augments a backend adapter with MCP tool results. It plays
// the selector/executor role: the user's question picks the relevant tool
// servers, their tools run, and the collected results are handed to the
// underlying provider as extra context.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"AgentChat/internal/backend"
	"AgentChat/internal/mcp"
	"AgentChat/internal/session"
)

// Planner selects and executes MCP tools for a question. It is shared by
// every wrapped adapter; the tool inventory refreshes on demand.
type Planner struct {
	registry *mcp.Registry
	mappings []serverMapping
	logger   *slog.Logger

	mu    sync.RWMutex
	tools []mcp.Tool
}

// NewPlanner creates a planner over the given MCP client registry.
func NewPlanner(registry *mcp.Registry, logger *slog.Logger) *Planner {
	return &Planner{
		registry: registry,
		mappings: defaultMappings,
		logger:   logger,
	}
}

// RefreshTools re-reads the tool inventory from every connected server.
func (p *Planner) RefreshTools(ctx context.Context) error {
	var tools []mcp.Tool
	for _, client := range p.registry.All() {
		listed, err := client.ListTools(ctx)
		if err != nil {
			p.logger.Warn("failed to list tools from MCP server", "server", client.Name(), "error", err)
			continue
		}
		tools = append(tools, listed...)
		p.logger.Info("loaded tools from MCP server", "server", client.Name(), "count", len(listed))
	}

	p.mu.Lock()
	p.tools = tools
	p.mu.Unlock()
	return nil
}

// Tools returns the current tool inventory.
func (p *Planner) Tools() []mcp.Tool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tools := make([]mcp.Tool, len(p.tools))
	copy(tools, p.tools)
	return tools
}

// Wrap returns an Adapter that augments base with tool results before
// generating. The wrapper satisfies the same contract as any provider
// adapter, so the dispatcher treats it like one.
func (p *Planner) Wrap(base backend.Adapter) backend.Adapter {
	return &toolBackend{planner: p, base: base}
}

// gather runs the tools of every server relevant to the question and
// collects their textual results.
func (p *Planner) gather(ctx context.Context, question string) (string, []string) {
	servers := selectServers(question, p.mappings)
	if len(servers) == 0 {
		return "", nil
	}

	var sb strings.Builder
	var used []string
	for _, serverName := range servers {
		client, ok := p.registry.Get(serverName)
		if !ok {
			p.logger.Warn("selected MCP server not connected", "server", serverName)
			continue
		}

		for _, tool := range p.Tools() {
			if tool.ServerName != serverName {
				continue
			}
			result, err := client.CallTool(ctx, tool.Name, map[string]interface{}{"query": question})
			if err != nil {
				p.logger.Warn("tool invocation failed", "server", serverName, "tool", tool.Name, "error", err)
				continue
			}
			if result == "" {
				continue
			}
			fmt.Fprintf(&sb, "[%s/%s]\n%s\n\n", serverName, tool.Name, result)
		}
		used = append(used, serverName)
	}

	return sb.String(), used
}

// toolBackend is the tool-augmented Adapter produced by Planner.Wrap.
type toolBackend struct {
	planner *Planner
	base    backend.Adapter
}

// Name returns the wrapped provider identifier.
func (b *toolBackend) Name() string { return b.base.Name() }

// Generate collects tool results for the latest user message, injects them
// as a system message ahead of the history and delegates to the base
// adapter. Tool failures degrade to a plain generation; they never fail the
// exchange.
func (b *toolBackend) Generate(ctx context.Context, history []session.Message) (string, error) {
	question := latestUserMessage(history)
	if question == "" {
		return b.base.Generate(ctx, history)
	}

	results, used := b.planner.gather(ctx, question)
	if results == "" {
		return b.base.Generate(ctx, history)
	}

	toolContext := session.Message{
		Role: session.RoleSystem,
		Content: fmt.Sprintf(
			"Tool results gathered from the %s server(s). Use them to answer the user's question:\n\n%s",
			strings.Join(used, ", "), results),
		Timestamp: time.Now(),
	}

	augmented := make([]session.Message, 0, len(history)+1)
	augmented = append(augmented, toolContext)
	augmented = append(augmented, history...)
	return b.base.Generate(ctx, augmented)
}

func latestUserMessage(history []session.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
