package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// HTTPClient implements Client for remote MCP servers speaking JSON-RPC
// over plain HTTP POST.
type HTTPClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	reqID      int32
	logger     *slog.Logger
}

// NewHTTPClient creates an HTTP-based MCP client for a remote server.
func NewHTTPClient(name string, baseURL string, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	client := &HTTPClient{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}

	logger.Info("created MCP HTTP client", "name", name, "url", baseURL)
	return client, nil
}

// Name returns the client identifier.
func (c *HTTPClient) Name() string {
	return c.name
}

// Initialize performs the MCP handshake.
func (c *HTTPClient) Initialize(ctx context.Context) error {
	var result InitializeResult
	if err := c.call(ctx, MethodInitialize, clientInfo(), &result); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	c.logger.Info("MCP server initialized", "server", result.ServerInfo.Name, "version", result.ServerInfo.Version)
	return nil
}

// ListTools returns the tools this server exposes.
func (c *HTTPClient) ListTools(ctx context.Context) ([]Tool, error) {
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
func (c *HTTPClient) CallTool(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
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

// Close disconnects from the server. HTTP is stateless, so this only logs.
func (c *HTTPClient) Close() error {
	c.logger.Info("closed MCP HTTP client", "name", c.name)
	return nil
}

// call sends one JSON-RPC request and decodes the result.
func (c *HTTPClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	request := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      int(atomic.AddInt32(&c.reqID, 1)),
		Method:  method,
		Params:  params,
	}

	requestJSON, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewBuffer(requestJSON))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(body))
	}

	responseJSON, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	return decodeResponse(responseJSON, result)
}

// decodeResponse parses a JSON-RPC response and unmarshals its result.
func decodeResponse(responseJSON []byte, result interface{}) error {
	var response JSONRPCResponse
	if err := json.Unmarshal(responseJSON, &response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if response.Error != nil {
		return fmt.Errorf("RPC error %d: %s", response.Error.Code, response.Error.Message)
	}

	if result != nil {
		resultJSON, err := json.Marshal(response.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		if err := json.Unmarshal(resultJSON, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	return nil
}
