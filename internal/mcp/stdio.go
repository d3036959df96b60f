package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
)

// StdioClient implements Client for local MCP servers spawned as child
// processes, exchanging newline-delimited JSON-RPC over stdin/stdout.
type StdioClient struct {
	name    string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser
	scanner *bufio.Scanner
	reqID   int32
	logger  *slog.Logger
	mu      sync.Mutex
	closed  bool
}

// NewStdioClient starts the local MCP server script and returns a client
// connected to it.
func NewStdioClient(name string, script string, logger *slog.Logger) (*StdioClient, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	cmd := exec.Command("python3", script)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start MCP server process: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	client := &StdioClient{
		name:    name,
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		scanner: scanner,
		logger:  logger,
	}

	go client.logStderr()

	logger.Info("started MCP stdio client", "name", name, "script", script)
	return client, nil
}

// Name returns the client identifier.
func (c *StdioClient) Name() string {
	return c.name
}

// Initialize performs the MCP handshake.
func (c *StdioClient) Initialize(ctx context.Context) error {
	var result InitializeResult
	if err := c.call(ctx, MethodInitialize, clientInfo(), &result); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	c.logger.Info("MCP server initialized", "server", result.ServerInfo.Name, "version", result.ServerInfo.Version)
	return nil
}

// ListTools returns the tools this server exposes.
func (c *StdioClient) ListTools(ctx context.Context) ([]Tool, error) {
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
func (c *StdioClient) CallTool(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
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

// Close shuts the pipes and kills the child process.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.stdout != nil {
		c.stdout.Close()
	}
	if c.stderr != nil {
		c.stderr.Close()
	}

	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil {
			c.logger.Warn("failed to kill MCP server process", "error", err)
		}
		c.cmd.Wait() // reap the child
	}

	c.logger.Info("closed MCP stdio client", "name", c.name)
	return nil
}

// call sends one JSON-RPC request on stdin and reads the reply line.
func (c *StdioClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

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

	if _, err := c.stdin.Write(append(requestJSON, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		return fmt.Errorf("EOF from MCP server")
	}

	return decodeResponse(c.scanner.Bytes(), result)
}

// logStderr forwards the child's stderr into the structured log.
func (c *StdioClient) logStderr() {
	scanner := bufio.NewScanner(c.stderr)
	for scanner.Scan() {
		c.logger.Warn("MCP server stderr", "server", c.name, "message", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		c.logger.Error("error reading stderr", "server", c.name, "error", err)
	}
}
