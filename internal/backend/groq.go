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

// Groq is the Adapter for the Groq cloud API. The wire format is
// OpenAI-compatible, only the endpoint and credential differ.
type Groq struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// NewGroq creates a Groq adapter with an injected credential.
func NewGroq(apiKey, model string, httpClient *http.Client, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Groq {
	return &Groq{
		name:       "groq",
		apiKey:     apiKey,
		model:      model,
		baseURL:    "https://api.groq.com/openai/v1/chat/completions",
		httpClient: httpClient,
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
	}
}

// Name returns the provider identifier.
func (a *Groq) Name() string { return a.name }

// Generate calls the Groq chat completions endpoint with the full history.
func (a *Groq) Generate(ctx context.Context, history []session.Message) (string, error) {
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
