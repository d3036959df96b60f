package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"AgentChat/internal/agent"
	"AgentChat/internal/archive"
	"AgentChat/internal/backend"
	"AgentChat/internal/cache"
	"AgentChat/internal/config"
	"AgentChat/internal/dispatcher"
	"AgentChat/internal/gateway"
	"AgentChat/internal/mcp"
	"AgentChat/internal/session"
	"AgentChat/internal/telemetry"
)

func main() {
	var cfg config.Config
	var optionsFile string
	var providers string
	var mcpLocalServers string
	var mcpRemoteServers string

	flag.StringVar(&cfg.Addr, "addr", ":8080", "HTTP listen address")
	flag.StringVar(&cfg.LogDir, "log-dir", "logs", "Directory for logs, traces and metrics")
	flag.StringVar(&cfg.ArchivePath, "archive", "agentchat.db", "SQLite transcript archive path (empty to disable)")
	flag.StringVar(&optionsFile, "options", "", "TOML options file with provider model choices")
	flag.StringVar(&providers, "providers", strings.Join(config.Backends(), ","),
		"Comma-separated providers to enable (groq|openai|gemini|ollama)")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", 60*time.Second, "Per-call provider timeout")
	flag.DurationVar(&cfg.CacheTTL, "cache-ttl", 10*time.Minute, "Response cache TTL (0 keeps entries forever)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	// MCP flags
	flag.BoolVar(&cfg.MCPEnabled, "mcp-enabled", false, "Enable MCP tool support")
	flag.StringVar(&mcpLocalServers, "mcp-local", "", "Comma-separated paths to local MCP server scripts")
	flag.StringVar(&mcpRemoteServers, "mcp-remote", "", "Comma-separated URLs to remote MCP servers")

	flag.Parse()

	if mcpLocalServers != "" {
		cfg.MCPLocalServers = strings.Split(mcpLocalServers, ",")
	}
	if mcpRemoteServers != "" {
		cfg.MCPRemoteServers = strings.Split(mcpRemoteServers, ",")
	}

	if err := run(cfg, optionsFile, strings.Split(providers, ",")); err != nil {
		fmt.Fprintf(os.Stderr, "agentchat: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, optionsFile string, providers []string) error {
	logger, err := telemetry.InitLogger(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	options, err := config.LoadOptions(optionsFile)
	if err != nil {
		return err
	}
	cfg.Options = options

	for i := range providers {
		providers[i] = strings.TrimSpace(providers[i])
	}

	// A missing credential for an enabled provider is a startup error, not a
	// per-request surprise.
	if err := config.ValidateCredentials(providers, os.Getenv); err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	var adapters []backend.Adapter
	for _, name := range providers {
		switch name {
		case config.BackendGroq:
			adapters = append(adapters, backend.NewGroq(config.Credential(name), options.Model(name), httpClient, logger, tracer, meter))
		case config.BackendOpenAI:
			adapters = append(adapters, backend.NewOpenAI(config.Credential(name), options.Model(name), httpClient, logger, tracer, meter))
		case config.BackendGemini:
			adapters = append(adapters, backend.NewGemini(config.Credential(name), options.Model(name), httpClient, logger, tracer, meter))
		case config.BackendOllama:
			adapters = append(adapters, backend.NewOllama("http://localhost:11434", options.Model(name), httpClient, logger, tracer, meter))
		default:
			return fmt.Errorf("unknown provider %q in -providers", name)
		}
	}
	registry := backend.NewRegistry(adapters...)

	store := session.NewStore()
	respCache := cache.New(cfg.CacheTTL)

	opts := []dispatcher.Option{
		dispatcher.WithTimeout(cfg.RequestTimeout),
		dispatcher.WithHistoryWindow(options.HistoryWindow),
	}

	if cfg.ArchivePath != "" {
		arch, err := archive.Open(cfg.ArchivePath, logger)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer arch.Close()
		opts = append(opts, dispatcher.WithArchive(arch))
	}

	if cfg.MCPEnabled {
		planner, err := initMCP(ctx, cfg, logger)
		if err != nil {
			logger.Warn("failed to initialize MCP, continuing without tool support", "error", err)
		} else {
			opts = append(opts, dispatcher.WithPlanner(planner))
		}
	}

	d := dispatcher.New(store, registry, respCache, logger, tracer, meter, opts...)
	gw := gateway.New(d, options, logger)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: gw.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "backends", registry.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// initMCP connects the configured MCP servers and builds the tool planner.
func initMCP(ctx context.Context, cfg config.Config, logger *slog.Logger) (*agent.Planner, error) {
	registry := mcp.NewRegistry()

	for _, script := range cfg.MCPLocalServers {
		client, err := mcp.NewStdioClient(script, script, logger)
		if err != nil {
			logger.Warn("failed to create stdio MCP client", "script", script, "error", err)
			continue
		}
		if err := client.Initialize(ctx); err != nil {
			logger.Warn("failed to initialize stdio MCP client", "script", script, "error", err)
			client.Close()
			continue
		}
		registry.Register(script, client)
		logger.Info("registered local MCP server", "script", script)
	}

	for _, serverURL := range cfg.MCPRemoteServers {
		var client mcp.Client
		var err error

		if strings.HasPrefix(serverURL, "ws://") || strings.HasPrefix(serverURL, "wss://") {
			client, err = mcp.NewWebSocketClient(serverURL, serverURL, logger)
		} else {
			client, err = mcp.NewHTTPClient(serverURL, serverURL, logger)
		}
		if err != nil {
			logger.Warn("failed to create remote MCP client", "url", serverURL, "error", err)
			continue
		}
		if err := client.Initialize(ctx); err != nil {
			logger.Warn("failed to initialize remote MCP client", "url", serverURL, "error", err)
			client.Close()
			continue
		}
		registry.Register(serverURL, client)
		logger.Info("registered remote MCP server", "url", serverURL)
	}

	if registry.Count() == 0 {
		return nil, fmt.Errorf("no MCP servers could be connected")
	}

	planner := agent.NewPlanner(registry, logger)
	if err := planner.RefreshTools(ctx); err != nil {
		return nil, fmt.Errorf("failed to load MCP tools: %w", err)
	}

	logger.Info("MCP initialized", "servers", registry.Count(), "tools", len(planner.Tools()))
	return planner, nil
}
