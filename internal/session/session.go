package session

import "time"

// Message roles. Order within a session is append-only.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a single chat message. Messages are immutable once
// appended to a session.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session represents a chat session
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Messages  []Message `json:"messages"`
}
