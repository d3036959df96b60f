package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"

	"AgentChat/internal/session"
)

// Classified failure conditions. Adapters wrap these so the gateway can map
// a failure to an error_kind without inspecting provider payloads.
var (
	// ErrUnsupportedProvider means the selected backend name is not in the
	// configured provider set. User-correctable.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrAuthentication means a credential is missing or was rejected by the
	// provider. Operator-correctable, never retried.
	ErrAuthentication = errors.New("authentication error")

	// ErrProviderUnavailable means the remote call could not complete:
	// network failure, timeout or rate limit. Safe to retry later; this core
	// never retries automatically.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Adapter is the uniform interface over each LLM provider. Generate
// translates the conversation into a provider call and the provider response
// back into plain text. Adapters hold no shared mutable state; the outbound
// network call is their only side effect.
type Adapter interface {
	// Name returns the provider identifier this adapter serves.
	Name() string

	// Generate produces a reply for the given non-empty history. The context
	// carries the caller-configured timeout; expiry is reported as
	// ErrProviderUnavailable.
	Generate(ctx context.Context, history []session.Message) (string, error)
}

// ModelLister is implemented by adapters that can enumerate the models their
// provider currently serves. Only Ollama supports this; hosted providers
// publish a fixed catalog instead.
type ModelLister interface {
	ListModels(ctx context.Context) ([]OllamaModel, error)
}

// wireMessage is the role/content pair shared by the OpenAI-compatible and
// Ollama chat endpoints.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toWire(history []session.Message) []wireMessage {
	msgs := make([]wireMessage, len(history))
	for i, msg := range history {
		msgs[i] = wireMessage{Role: msg.Role, Content: msg.Content}
	}
	return msgs
}

// classifyStatus maps a non-2xx provider status to the failure taxonomy.
func classifyStatus(provider string, status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s rejected credentials (%d): %s: %w",
			provider, status, truncate(body), ErrAuthentication)
	default:
		// Rate limits, timeouts and server errors are all transient from the
		// caller's point of view.
		return fmt.Errorf("%s returned %d: %s: %w",
			provider, status, truncate(body), ErrProviderUnavailable)
	}
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// postJSON sends a JSON request to a provider endpoint, records the request
// duration histogram and returns the raw response body. Transport errors and
// context expiry come back as ErrProviderUnavailable.
func postJSON(ctx context.Context, client *http.Client, meter metric.Meter, provider, url string, headers map[string]string, reqBody any) ([]byte, error) {
	start := time.Now()

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %v: %w", provider, err, ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s response read failed: %v: %w", provider, err, ErrProviderUnavailable)
	}

	duration := time.Since(start)
	histogram, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(provider, resp.StatusCode, body)
	}

	return body, nil
}

// recordUsage records OpenTelemetry counters from a provider usage block.
func recordUsage(ctx context.Context, meter metric.Meter, usage map[string]interface{}) {
	if usage == nil {
		return
	}

	for key, value := range usage {
		if floatVal, ok := value.(float64); ok {
			counter, err := meter.Int64Counter(
				fmt.Sprintf("llm.usage.%s", key),
				metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
			)
			if err != nil {
				continue
			}
			counter.Add(ctx, int64(floatVal))
		}
	}
}
