package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"AgentChat/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusForbidden, ErrAuthentication},
		{http.StatusTooManyRequests, ErrProviderUnavailable},
		{http.StatusInternalServerError, ErrProviderUnavailable},
		{http.StatusBadGateway, ErrProviderUnavailable},
		{http.StatusNotFound, ErrProviderUnavailable},
	}

	for _, tc := range cases {
		err := classifyStatus("test", tc.status, []byte("body"))
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	client := &http.Client{Timeout: time.Second}
	adapter := NewOllama("http://localhost:11434", "llama3:latest", client, testLogger(), otel.Tracer("test"), otel.Meter("test"))
	registry := NewRegistry(adapter)

	if _, err := registry.Lookup("ollama"); err != nil {
		t.Fatalf("lookup of configured backend failed: %v", err)
	}
	if _, err := registry.Lookup("unknown-provider"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	names := registry.Names()
	if len(names) != 1 || names[0] != "ollama" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2}
		}`))
	}))
	defer srv.Close()

	adapter := NewOpenAI("test-key", "gpt-4o-mini", srv.Client(), testLogger(), otel.Tracer("test"), otel.Meter("test"))
	adapter.baseURL = srv.URL

	reply, err := adapter.Generate(context.Background(), []session.Message{
		{Role: session.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestOpenAIMissingKeyFailsWithoutNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	adapter := NewOpenAI("", "gpt-4o-mini", srv.Client(), testLogger(), otel.Tracer("test"), otel.Meter("test"))
	adapter.baseURL = srv.URL

	_, err := adapter.Generate(context.Background(), []session.Message{{Role: session.RoleUser, Content: "hello"}})
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if called {
		t.Fatalf("network call made without credential")
	}
}

func TestGroqRejectedCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := NewGroq("bad-key", "llama-3.3-70b-versatile", srv.Client(), testLogger(), otel.Tracer("test"), otel.Meter("test"))
	adapter.baseURL = srv.URL

	_, err := adapter.Generate(context.Background(), []session.Message{{Role: session.RoleUser, Content: "hello"}})
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestOllamaTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	adapter := NewOllama(srv.URL, "llama3:latest", srv.Client(), testLogger(), otel.Tracer("test"), otel.Meter("test"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := adapter.Generate(ctx, []session.Message{{Role: session.RoleUser, Content: "hello"}})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable on timeout, got %v", err)
	}
}

func TestOllamaListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models": [
			{"name": "llama3:latest", "size": 4661224676},
			{"name": "mistral:7b", "size": 4109865159}
		]}`))
	}))
	defer srv.Close()

	adapter := NewOllama(srv.URL, "llama3:latest", srv.Client(), testLogger(), otel.Tracer("test"), otel.Meter("test"))

	models, err := adapter.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models failed: %v", err)
	}
	if len(models) != 2 || models[0].Name != "llama3:latest" || models[1].Name != "mistral:7b" {
		t.Fatalf("unexpected models: %#v", models)
	}
}

func TestOllamaListModelsDaemonDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	adapter := NewOllama(srv.URL, "llama3:latest", &http.Client{Timeout: time.Second}, testLogger(), otel.Tracer("test"), otel.Meter("test"))

	_, err := adapter.ListModels(context.Background())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestGenerateLogsProviderCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model": "llama3:latest", "message": {"role": "assistant", "content": "hi"}, "done": true}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewOllama(srv.URL, "llama3:latest", srv.Client(), logger, otel.Tracer("test"), otel.Meter("test"))

	if _, err := adapter.Generate(context.Background(), []session.Message{{Role: session.RoleUser, Content: "hello"}}); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(buf.String(), "calling provider api") {
		t.Fatalf("provider call not logged: %q", buf.String())
	}
}

func TestGeminiRoleMapping(t *testing.T) {
	var got GeminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": [{"text": "bonjour"}]}, "finishReason": "STOP"}]}`))
	}))
	defer srv.Close()

	adapter := NewGemini("test-key", "gemini-2.0-flash", srv.Client(), testLogger(), otel.Tracer("test"), otel.Meter("test"))
	adapter.baseURL = srv.URL

	reply, err := adapter.Generate(context.Background(), []session.Message{
		{Role: session.RoleSystem, Content: "be brief"},
		{Role: session.RoleUser, Content: "hello"},
		{Role: session.RoleAssistant, Content: "hi"},
		{Role: session.RoleUser, Content: "in french?"},
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if reply != "bonjour" {
		t.Fatalf("unexpected reply %q", reply)
	}

	if got.SystemInstruction == nil || len(got.SystemInstruction.Parts) != 1 || got.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system message not mapped to system_instruction: %#v", got.SystemInstruction)
	}
	if len(got.Contents) != 3 {
		t.Fatalf("expected 3 content blocks, got %d", len(got.Contents))
	}
	if got.Contents[1].Role != "model" {
		t.Fatalf("assistant turn not mapped to model role: %q", got.Contents[1].Role)
	}
}
