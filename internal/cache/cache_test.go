package cache

import (
	"testing"
	"time"

	"AgentChat/internal/session"
)

func TestKeyDependsOnBackendAndContent(t *testing.T) {
	msgs := []session.Message{
		{Role: session.RoleUser, Content: "hello"},
	}

	a := Key("groq", msgs)
	b := Key("openai", msgs)
	if a == b {
		t.Fatalf("same key for different backends")
	}

	c := Key("groq", []session.Message{{Role: session.RoleUser, Content: "goodbye"}})
	if a == c {
		t.Fatalf("same key for different content")
	}

	// Timestamps never participate in the key.
	later := []session.Message{
		{Role: session.RoleUser, Content: "hello", Timestamp: time.Now().Add(time.Hour)},
	}
	if got := Key("groq", later); got != a {
		t.Fatalf("timestamp changed the key: %s vs %s", got, a)
	}
}

func TestGetPutRoundTrip(t *testing.T) {
	c := New(time.Minute)
	key := Key("groq", []session.Message{{Role: session.RoleUser, Content: "hi"}})

	if _, ok := c.Get(key); ok {
		t.Fatalf("hit on empty cache")
	}

	c.Put(key, "hello there")
	reply, ok := c.Get(key)
	if !ok || reply != "hello there" {
		t.Fatalf("expected cached reply, got %q ok=%v", reply, ok)
	}
}

func TestExpiry(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Put("k", "v")

	time.Sleep(25 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry survived past its TTL")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New(0)
	c.Put("k", "v")

	time.Sleep(10 * time.Millisecond)
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("entry expired with zero TTL")
	}
}
