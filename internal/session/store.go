package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnknownSession is returned when an operation references a session id
// that was never created or has been deleted.
var ErrUnknownSession = errors.New("unknown session")

type entry struct {
	dispatch sync.Mutex // serializes whole exchanges, held across provider calls
	mu       sync.Mutex // guards sess.Messages for individual operations
	sess     *Session
}

// Store holds per-session message history in memory. Each session carries
// its own mutexes so unrelated sessions never contend on a global lock; the
// outer RWMutex only guards the session map itself.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates an empty in-memory session store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	return e, ok
}

// GetOrCreate returns the session with the given id, creating it if absent.
// Repeated calls with the same id return the same logical session.
func (s *Store) GetOrCreate(id string) *Session {
	if e, ok := s.lookup(id); ok {
		return e.sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.sess
	}
	e := &entry{sess: &Session{
		ID:        id,
		StartTime: time.Now(),
		Messages:  []Message{},
	}}
	s.entries[id] = e
	return e.sess
}

// Acquire takes the session's dispatch lock and returns the release
// function. At most one exchange is in flight per session id, which keeps
// each user/assistant pair contiguous in history. Fails with
// ErrUnknownSession if the session does not exist.
func (s *Store) Acquire(id string) (func(), error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("acquire %q: %w", id, ErrUnknownSession)
	}
	e.dispatch.Lock()
	return e.dispatch.Unlock, nil
}

// Append adds a message to the session history. The message order observed
// by callers is exactly the append order; there is no reordering.
func (s *Store) Append(id string, msg Message) error {
	e, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("append to %q: %w", id, ErrUnknownSession)
	}
	e.mu.Lock()
	e.sess.Messages = append(e.sess.Messages, msg)
	e.mu.Unlock()
	return nil
}

// History returns a copy of the session's ordered message history.
func (s *Store) History(id string) ([]Message, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("history of %q: %w", id, ErrUnknownSession)
	}
	e.mu.Lock()
	msgs := make([]Message, len(e.sess.Messages))
	copy(msgs, e.sess.Messages)
	e.mu.Unlock()
	return msgs, nil
}

// Reset clears the session's history without destroying the session.
func (s *Store) Reset(id string) error {
	e, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("reset %q: %w", id, ErrUnknownSession)
	}
	e.mu.Lock()
	e.sess.Messages = e.sess.Messages[:0]
	e.mu.Unlock()
	return nil
}

// Delete removes the session entirely. In-flight appends against the id
// fail with ErrUnknownSession afterwards, which is how replies arriving
// after a client disconnect get discarded.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
