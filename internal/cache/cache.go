package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"AgentChat/internal/session"
)

// entry is a cached provider reply.
type entry struct {
	reply   string
	created time.Time
}

// Cache memoizes provider replies keyed by the exact conversation that
// produced them. Identical histories sent to the same backend return the
// cached reply instead of a second provider call.
type Cache struct {
	ttl     time.Duration
	entries sync.Map
}

// New creates a cache whose entries expire after ttl. A zero ttl keeps
// entries for the life of the process.
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// Key derives the cache key for a backend and an ordered message history.
func Key(backend string, messages []session.Message) string {
	h := sha256.New()
	h.Write([]byte(backend))
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte(msg.Content))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached reply for key, if present and not expired.
func (c *Cache) Get(key string) (string, bool) {
	val, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	e := val.(entry)
	if c.ttl > 0 && time.Since(e.created) > c.ttl {
		c.entries.Delete(key)
		return "", false
	}
	return e.reply, true
}

// Put stores a reply under key.
func (c *Cache) Put(key, reply string) {
	c.entries.Store(key, entry{reply: reply, created: time.Now()})
}
