package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGetOrCreateIdempotent(t *testing.T) {
	store := NewStore()

	first := store.GetOrCreate("s1")
	if err := store.Append("s1", Message{Role: RoleUser, Content: "hello", Timestamp: time.Now()}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	second := store.GetOrCreate("s1")
	if first != second {
		t.Fatalf("expected the same logical session on repeated GetOrCreate")
	}
	if len(second.Messages) != 1 || second.Messages[0].Content != "hello" {
		t.Fatalf("history lost across GetOrCreate: %#v", second.Messages)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", store.Len())
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("s1")

	for i := 0; i < 10; i++ {
		msg := Message{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i), Timestamp: time.Now()}
		if err := store.Append("s1", msg); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	history, err := store.History("s1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(history))
	}
	for i, msg := range history {
		if msg.Content != fmt.Sprintf("msg-%d", i) {
			t.Fatalf("message %d out of order: %q", i, msg.Content)
		}
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("s1")
	store.Append("s1", Message{Role: RoleUser, Content: "original"})

	history, _ := store.History("s1")
	history[0].Content = "mutated"

	again, _ := store.History("s1")
	if again[0].Content != "original" {
		t.Fatalf("history view leaked internal state")
	}
}

func TestUnknownSessionErrors(t *testing.T) {
	store := NewStore()

	if err := store.Append("nope", Message{Role: RoleUser, Content: "x"}); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("append: expected ErrUnknownSession, got %v", err)
	}
	if _, err := store.History("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("history: expected ErrUnknownSession, got %v", err)
	}
	if err := store.Reset("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("reset: expected ErrUnknownSession, got %v", err)
	}
	if _, err := store.Acquire("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("acquire: expected ErrUnknownSession, got %v", err)
	}
}

func TestResetClearsHistory(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("s1")
	store.Append("s1", Message{Role: RoleUser, Content: "hello"})

	if err := store.Reset("s1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	history, err := store.History("s1")
	if err != nil {
		t.Fatalf("history after reset failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history after reset, got %d messages", len(history))
	}
}

func TestDeleteDiscardsLateAppends(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("s1")

	store.Delete("s1")
	if err := store.Append("s1", Message{Role: RoleAssistant, Content: "late reply"}); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected late append to fail with ErrUnknownSession, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no sessions after delete, got %d", store.Len())
	}
}

func TestConcurrentAppendsAcrossSessions(t *testing.T) {
	store := NewStore()
	const sessions = 8
	const perSession = 50

	var wg sync.WaitGroup
	for s := 0; s < sessions; s++ {
		id := fmt.Sprintf("s%d", s)
		store.GetOrCreate(id)
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < perSession; i++ {
				release, err := store.Acquire(id)
				if err != nil {
					t.Errorf("acquire %s: %v", id, err)
					return
				}
				store.Append(id, Message{Role: RoleUser, Content: fmt.Sprintf("%d", i)})
				release()
			}
		}(id)
	}
	wg.Wait()

	for s := 0; s < sessions; s++ {
		id := fmt.Sprintf("s%d", s)
		history, err := store.History(id)
		if err != nil {
			t.Fatalf("history %s: %v", id, err)
		}
		if len(history) != perSession {
			t.Fatalf("session %s: expected %d messages, got %d", id, perSession, len(history))
		}
		for i, msg := range history {
			if msg.Content != fmt.Sprintf("%d", i) {
				t.Fatalf("session %s message %d out of order: %q", id, i, msg.Content)
			}
		}
	}
}
