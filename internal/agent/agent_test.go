package agent

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"AgentChat/internal/mcp"
	"AgentChat/internal/session"
)

func TestSelectServers(t *testing.T) {
	cases := []struct {
		question string
		want     []string
	}{
		{"where can I get sushi tonight?", []string{"restaurant"}},
		{"is there parking near the office?", []string{"parking"}},
		{"what's the weather forecast?", []string{"weather"}},
		{"find a restaurant with parking", []string{"restaurant", "parking"}},
		{"tell me a joke", nil},
	}

	for _, tc := range cases {
		got := selectServers(tc.question, defaultMappings)
		if len(got) != len(tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.question, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%q: expected %v, got %v", tc.question, tc.want, got)
			}
		}
	}
}

// fakeClient is an in-memory MCP client for planner tests.
type fakeClient struct {
	name    string
	tools   []mcp.Tool
	results map[string]string
	err     error
	calls   []string
}

func (f *fakeClient) Initialize(ctx context.Context) error { return nil }

func (f *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return f.tools, nil
}

func (f *fakeClient) CallTool(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	f.calls = append(f.calls, toolName)
	if f.err != nil {
		return "", f.err
	}
	return f.results[toolName], nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) Name() string { return f.name }

// recordingAdapter captures the history it was asked to generate from.
type recordingAdapter struct {
	reply   string
	history []session.Message
}

func (a *recordingAdapter) Name() string { return "stub" }

func (a *recordingAdapter) Generate(ctx context.Context, history []session.Message) (string, error) {
	a.history = append([]session.Message(nil), history...)
	return a.reply, nil
}

func newTestPlanner(t *testing.T, clients ...*fakeClient) *Planner {
	t.Helper()
	registry := mcp.NewRegistry()
	for _, c := range clients {
		registry.Register(c.name, c)
	}
	p := NewPlanner(registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := p.RefreshTools(context.Background()); err != nil {
		t.Fatalf("refresh tools: %v", err)
	}
	return p
}

func TestWrapInjectsToolResults(t *testing.T) {
	weather := &fakeClient{
		name: "weather",
		tools: []mcp.Tool{
			{Name: "get_forecast", ServerName: "weather"},
		},
		results: map[string]string{"get_forecast": "sunny, 24C"},
	}
	p := newTestPlanner(t, weather)

	base := &recordingAdapter{reply: "it will be sunny"}
	wrapped := p.Wrap(base)

	history := []session.Message{
		{Role: session.RoleUser, Content: "what is the weather tomorrow?"},
	}
	reply, err := wrapped.Generate(context.Background(), history)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if reply != "it will be sunny" {
		t.Fatalf("unexpected reply %q", reply)
	}

	if len(base.history) != len(history)+1 {
		t.Fatalf("expected injected tool context, got %d messages", len(base.history))
	}
	first := base.history[0]
	if first.Role != session.RoleSystem || !strings.Contains(first.Content, "sunny, 24C") {
		t.Fatalf("tool context missing: %+v", first)
	}
	if len(weather.calls) != 1 || weather.calls[0] != "get_forecast" {
		t.Fatalf("unexpected tool calls: %v", weather.calls)
	}
}

func TestWrapSkipsIrrelevantQuestions(t *testing.T) {
	weather := &fakeClient{
		name:  "weather",
		tools: []mcp.Tool{{Name: "get_forecast", ServerName: "weather"}},
	}
	p := newTestPlanner(t, weather)

	base := &recordingAdapter{reply: "42"}
	wrapped := p.Wrap(base)

	history := []session.Message{
		{Role: session.RoleUser, Content: "what is the answer to everything?"},
	}
	if _, err := wrapped.Generate(context.Background(), history); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(weather.calls) != 0 {
		t.Fatalf("tools called for an irrelevant question: %v", weather.calls)
	}
	if len(base.history) != len(history) {
		t.Fatalf("history modified without tool results")
	}
}

func TestWrapDegradesOnToolFailure(t *testing.T) {
	weather := &fakeClient{
		name:  "weather",
		tools: []mcp.Tool{{Name: "get_forecast", ServerName: "weather"}},
		err:   context.DeadlineExceeded,
	}
	p := newTestPlanner(t, weather)

	base := &recordingAdapter{reply: "no idea"}
	wrapped := p.Wrap(base)

	history := []session.Message{
		{Role: session.RoleUser, Content: "will it rain?"},
	}
	reply, err := wrapped.Generate(context.Background(), history)
	if err != nil {
		t.Fatalf("tool failure must not fail the exchange: %v", err)
	}
	if reply != "no idea" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(base.history) != len(history) {
		t.Fatalf("expected plain generation after tool failure, got %d messages", len(base.history))
	}
}
