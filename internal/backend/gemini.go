package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"AgentChat/internal/session"
)

// GeminiPart is a single content part in the Gemini API
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiContent is a role-tagged content block. Gemini uses "model" where
// the other providers use "assistant".
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiRequest represents the request body for the generateContent API
type GeminiRequest struct {
	SystemInstruction *GeminiContent  `json:"system_instruction,omitempty"`
	Contents          []GeminiContent `json:"contents"`
}

// GeminiResponse represents the response from the generateContent API
type GeminiResponse struct {
	Candidates []struct {
		Content      GeminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata map[string]interface{} `json:"usageMetadata"`
}

// Gemini is the Adapter for the Google Gemini generateContent API.
type Gemini struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// NewGemini creates a Gemini adapter with an injected credential.
func NewGemini(apiKey, model string, httpClient *http.Client, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Gemini {
	return &Gemini{
		name:       "gemini",
		apiKey:     apiKey,
		model:      model,
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		httpClient: httpClient,
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
	}
}

// Name returns the provider identifier.
func (a *Gemini) Name() string { return a.name }

// Generate calls the generateContent endpoint. Leading system messages are
// folded into the system instruction; assistant turns map to role "model".
func (a *Gemini) Generate(ctx context.Context, history []session.Message) (string, error) {
	ctx, span := a.tracer.Start(ctx, a.name+"_api_call")
	defer span.End()

	if a.apiKey == "" {
		return "", fmt.Errorf("%s API key not set: %w", a.name, ErrAuthentication)
	}

	reqBody := GeminiRequest{}
	for _, msg := range history {
		switch msg.Role {
		case session.RoleSystem:
			if reqBody.SystemInstruction == nil {
				reqBody.SystemInstruction = &GeminiContent{}
			}
			reqBody.SystemInstruction.Parts = append(reqBody.SystemInstruction.Parts, GeminiPart{Text: msg.Content})
		case session.RoleAssistant:
			reqBody.Contents = append(reqBody.Contents, GeminiContent{
				Role:  "model",
				Parts: []GeminiPart{{Text: msg.Content}},
			})
		default:
			reqBody.Contents = append(reqBody.Contents, GeminiContent{
				Role:  "user",
				Parts: []GeminiPart{{Text: msg.Content}},
			})
		}
	}

	a.logger.Debug("calling provider api", "provider", a.name, "model", a.model, "messages", len(history))

	url := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, a.model)
	headers := map[string]string{"x-goog-api-key": a.apiKey}
	body, err := postJSON(ctx, a.httpClient, a.meter, a.name, url, headers, reqBody)
	if err != nil {
		a.logger.Warn("provider call failed", "provider", a.name, "error", err)
		return "", err
	}

	var apiResp GeminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal %s response: %w", a.name, err)
	}

	recordUsage(ctx, a.meter, apiResp.UsageMetadata)

	if len(apiResp.Candidates) > 0 {
		var sb strings.Builder
		for _, part := range apiResp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		if sb.Len() > 0 {
			return sb.String(), nil
		}
	}

	return "", fmt.Errorf("empty response from %s: %w", a.name, ErrProviderUnavailable)
}
