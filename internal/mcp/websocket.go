package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketClient implements Client for remote MCP servers speaking JSON-RPC
// over a WebSocket connection. Requests are serialized on the single
// connection; one request is in flight at a time.
type WebSocketClient struct {
	name   string
	url    string
	conn   *websocket.Conn
	reqID  int32
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewWebSocketClient dials url and returns a WebSocket-based MCP client.
func NewWebSocketClient(name string, url string, logger *slog.Logger) (*WebSocketClient, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	client := &WebSocketClient{
		name:   name,
		url:    url,
		conn:   conn,
		logger: logger,
	}

	logger.Info("created MCP WebSocket client", "name", name, "url", url)
	return client, nil
}

// Name returns the client identifier.
func (c *WebSocketClient) Name() string {
	return c.name
}

// Initialize performs the MCP handshake.
func (c *WebSocketClient) Initialize(ctx context.Context) error {
	var result InitializeResult
	if err := c.call(ctx, MethodInitialize, clientInfo(), &result); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	c.logger.Info("MCP server initialized",
		"server", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)
	return nil
}

// ListTools returns the tools this server exposes.
func (c *WebSocketClient) ListTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodListTools, nil, &result); err != nil {
		return nil, fmt.Errorf("list tools failed: %w", err)
	}

	tools := make([]Tool, len(result.Tools))
	for i, info := range result.Tools {
		tools[i] = Tool{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
			ServerName:  c.name,
		}
	}

	c.logger.Info("listed tools from MCP server", "server", c.name, "count", len(tools))
	return tools, nil
}

// CallTool invokes a tool and returns its textual result.
func (c *WebSocketClient) CallTool(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	params := CallToolParams{Name: toolName, Arguments: args}

	var result CallToolResult
	if err := c.call(ctx, MethodCallTool, params, &result); err != nil {
		return "", fmt.Errorf("call tool failed: %w", err)
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s reported an error: %s", toolName, result.Text())
	}

	c.logger.Info("called tool", "server", c.name, "tool", toolName)
	return result.Text(), nil
}

// Close sends a close frame and tears the connection down.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}

	c.logger.Info("closed MCP WebSocket client", "name", c.name)
	return nil
}

// call sends one JSON-RPC request over the socket and reads the reply.
func (c *WebSocketClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		c.conn.SetReadDeadline(deadline)
	}

	request := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      int(atomic.AddInt32(&c.reqID, 1)),
		Method:  method,
		Params:  params,
	}

	if err := c.conn.WriteJSON(request); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	_, responseJSON, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	return decodeResponse(responseJSON, result)
}
