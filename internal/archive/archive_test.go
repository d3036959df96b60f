package archive

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"AgentChat/internal/session"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	a, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRecordExchange(t *testing.T) {
	a := openTestArchive(t)

	start := time.Now()
	err := a.RecordExchange("s1", start, "groq",
		session.Message{Role: session.RoleUser, Content: "hello", Timestamp: start},
		session.Message{Role: session.RoleAssistant, Content: "hi", Timestamp: start},
	)
	if err != nil {
		t.Fatalf("record exchange: %v", err)
	}

	var count int
	if err := a.db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", "s1").Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 messages, got %d", count)
	}

	var backend string
	if err := a.db.QueryRow("SELECT backend FROM sessions WHERE id = ?", "s1").Scan(&backend); err != nil {
		t.Fatalf("read session: %v", err)
	}
	if backend != "groq" {
		t.Fatalf("unexpected backend %q", backend)
	}
}

func TestRecordExchangeAppends(t *testing.T) {
	a := openTestArchive(t)

	start := time.Now()
	for i := 0; i < 3; i++ {
		err := a.RecordExchange("s1", start, "ollama",
			session.Message{Role: session.RoleUser, Content: "q", Timestamp: time.Now()},
			session.Message{Role: session.RoleAssistant, Content: "a", Timestamp: time.Now()},
		)
		if err != nil {
			t.Fatalf("record exchange %d: %v", i, err)
		}
	}

	var sessions, messages int
	if err := a.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&sessions); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if err := a.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&messages); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if sessions != 1 {
		t.Fatalf("session row not upserted: %d rows", sessions)
	}
	if messages != 6 {
		t.Fatalf("expected 6 messages, got %d", messages)
	}
}
