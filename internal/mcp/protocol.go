package mcp

// JSON-RPC 2.0 protocol types for the Model Context Protocol

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Always "2.0"
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"` // Always "2.0"
	ID      int         `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCP-specific JSON-RPC methods
const (
	MethodInitialize = "initialize"
	MethodListTools  = "tools/list"
	MethodCallTool   = "tools/call"
)

// protocolVersion is the MCP revision this client speaks.
const protocolVersion = "2024-11-05"

// InitializeParams represents parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
}

// ClientCapabilities describes what the client supports
type ClientCapabilities struct {
	Roots *RootsCapability `json:"roots,omitempty"`
}

// RootsCapability indicates the client supports roots
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ClientInfo contains client identification
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func clientInfo() InitializeParams {
	return InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    ClientCapabilities{Roots: &RootsCapability{}},
		ClientInfo: ClientInfo{
			Name:    "agentchat",
			Version: "1.0.0",
		},
	}
}

// InitializeResult represents the result of the initialize request
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

// ServerInfo contains server identification
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListToolsResult represents the result of a tools/list request
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// ToolInfo describes an available tool
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"` // JSON Schema
}

// CallToolParams represents parameters for a tools/call request
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// CallToolResult represents the result of a tools/call request
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content represents tool response content
type Content struct {
	Type string `json:"type"` // e.g. "text"
	Text string `json:"text"`
}

// Text flattens the textual content blocks of a tool result into one string.
func (r CallToolResult) Text() string {
	var out string
	for _, c := range r.Content {
		if c.Type != "text" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += c.Text
	}
	return out
}
