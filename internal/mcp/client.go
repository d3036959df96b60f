package mcp

import (
	"context"
	"fmt"
	"sync"
)

// Client represents a connection to an MCP tool server. The tool-invocation
// wire protocol is JSON-RPC 2.0 over one of the supported transports.
type Client interface {
	// Initialize performs the MCP handshake.
	Initialize(ctx context.Context) error

	// ListTools returns the tools this server exposes.
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool invokes a tool and returns its textual result.
	CallTool(ctx context.Context, toolName string, args map[string]interface{}) (string, error)

	// Close disconnects from the server.
	Close() error

	// Name returns the client identifier.
	Name() string
}

// Tool represents an MCP tool available for invocation
type Tool struct {
	Name        string                 // Tool name
	Description string                 // Tool description
	InputSchema map[string]interface{} // JSON Schema for input parameters
	ServerName  string                 // Which server provides this tool
}

// Registry manages the set of connected MCP clients
type Registry struct {
	clients map[string]Client
	mu      sync.RWMutex
}

// NewRegistry creates an empty client registry
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client to the registry
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
}

// Get retrieves a client by name
func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	return client, ok
}

// All returns all registered clients
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Close closes all registered clients
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, client := range r.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close client %s: %w", name, err)
		}
	}
	return firstErr
}

// Count returns the number of registered clients
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
