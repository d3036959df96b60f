package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"AgentChat/internal/session"
)

// OllamaRequest represents the request body for the Ollama chat API
type OllamaRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// OllamaResponse represents the response from the Ollama chat API
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// OllamaTagsResponse represents the response from the Ollama /api/tags endpoint
type OllamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaModel represents a single model in the Ollama tags response
type OllamaModel struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// Ollama is the Adapter for a locally hosted Ollama instance. No credential
// is required.
type Ollama struct {
	name       string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// NewOllama creates an Ollama adapter against the given base URL
// (e.g. http://localhost:11434).
func NewOllama(baseURL, model string, httpClient *http.Client, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Ollama {
	return &Ollama{
		name:       "ollama",
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
	}
}

// Name returns the provider identifier.
func (a *Ollama) Name() string { return a.name }

// Generate calls the Ollama chat endpoint with the full history.
func (a *Ollama) Generate(ctx context.Context, history []session.Message) (string, error) {
	ctx, span := a.tracer.Start(ctx, a.name+"_api_call")
	defer span.End()

	reqBody := OllamaRequest{
		Model:    a.model,
		Messages: toWire(history),
		Stream:   false,
	}

	a.logger.Debug("calling provider api", "provider", a.name, "model", a.model, "messages", len(history))

	body, err := postJSON(ctx, a.httpClient, a.meter, a.name, a.baseURL+"/api/chat", nil, reqBody)
	if err != nil {
		a.logger.Warn("provider call failed", "provider", a.name, "error", err)
		return "", err
	}

	var apiResp OllamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal %s response: %w", a.name, err)
	}

	return apiResp.Message.Content, nil
}

// ListModels fetches the list of locally available Ollama models.
func (a *Ollama) ListModels(ctx context.Context) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request (is Ollama running?): %v: %w", err, ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags returned %d: %w", resp.StatusCode, ErrProviderUnavailable)
	}

	var tagsResp OllamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags response: %w", err)
	}

	return tagsResp.Models, nil
}
