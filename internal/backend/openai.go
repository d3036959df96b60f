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

// OpenAIRequest represents the request body for OpenAI-compatible chat APIs
type OpenAIRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
}

// OpenAIResponse represents the response from OpenAI-compatible chat APIs
type OpenAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]interface{} `json:"usage"`
}

// OpenAI is the Adapter for the OpenAI chat completions API.
type OpenAI struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// NewOpenAI creates an OpenAI adapter. The credential is injected at
// construction; its presence is validated before the server accepts traffic.
func NewOpenAI(apiKey, model string, httpClient *http.Client, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *OpenAI {
	return &OpenAI{
		name:       "openai",
		apiKey:     apiKey,
		model:      model,
		baseURL:    "https://api.openai.com/v1/chat/completions",
		httpClient: httpClient,
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
	}
}

// Name returns the provider identifier.
func (a *OpenAI) Name() string { return a.name }

// Generate calls the chat completions endpoint with the full history.
func (a *OpenAI) Generate(ctx context.Context, history []session.Message) (string, error) {
	ctx, span := a.tracer.Start(ctx, a.name+"_api_call")
	defer span.End()

	if a.apiKey == "" {
		return "", fmt.Errorf("%s API key not set: %w", a.name, ErrAuthentication)
	}

	reqBody := OpenAIRequest{
		Model:    a.model,
		Messages: toWire(history),
	}

	a.logger.Debug("calling provider api", "provider", a.name, "model", a.model, "messages", len(history))

	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}
	body, err := postJSON(ctx, a.httpClient, a.meter, a.name, a.baseURL, headers, reqBody)
	if err != nil {
		a.logger.Warn("provider call failed", "provider", a.name, "error", err)
		return "", err
	}

	var apiResp OpenAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal %s response: %w", a.name, err)
	}

	recordUsage(ctx, a.meter, apiResp.Usage)

	if len(apiResp.Choices) > 0 {
		return apiResp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("empty response from %s: %w", a.name, ErrProviderUnavailable)
}
