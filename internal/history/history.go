// Package history keeps the bounded, ordered conversation log and writes it
// through to a persistence sink after every mutation. Persistence is a
// convenience: a sink failure is logged and never surfaces to callers.
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatcrew/internal/logger"
)

// Session is the persisted form of a conversation: its identifier, the
// instant it started, and the ordered message list.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Messages  []Message `json:"messages"`
}

// Sink stores and retrieves sessions. Load reports absence via its boolean,
// not an error; errors mean the persisted data could not be read.
type Sink interface {
	Persist(s Session) error
	Load(sessionID string) (Session, bool, error)
}

// Store owns the in-memory history. All mutation funnels through its mutex,
// so Append is safe from concurrently completing dispatch units.
type Store struct {
	mu        sync.Mutex
	max       int
	sessionID string
	startedAt time.Time
	messages  []Message
	sink      Sink
	now       func() time.Time
}

// New creates a store bound to sessionID. An empty sessionID gets a
// generated name. maxMessages values below 1 fall back to 100.
func New(sessionID string, maxMessages int, sink Sink) *Store {
	if sessionID == "" {
		sessionID = "session-" + uuid.NewString()
	}
	if maxMessages < 1 {
		maxMessages = 100
	}
	return &Store{
		max:       maxMessages,
		sessionID: sessionID,
		startedAt: time.Now(),
		sink:      sink,
		now:       time.Now,
	}
}

// SessionID returns the current session name.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Len returns the number of messages currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Append records one message with the current timestamp, evicts the oldest
// entries beyond the capacity, and persists the session. It never fails the
// caller.
func (s *Store) Append(speaker, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{
		Speaker:   speaker,
		Content:   content,
		Timestamp: s.now(),
	})
	s.truncateLocked()
	s.persistLocked()
}

// Snapshot returns a copy of the history. A positive limit returns only the
// most recent limit messages. Callers own the returned slice.
func (s *Store) Snapshot(limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Clear empties the history and persists the empty state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.persistLocked()
}

// Load switches the store to the named session. If the sink holds a session
// under that name its messages are merged with the in-memory history:
// messages sharing an exact timestamp are deduplicated, the union is sorted
// by timestamp, and the result is truncated to capacity. If the sink holds
// nothing, the current history simply continues under the new name. Load
// reports false only when persisted data exists but cannot be read, in
// which case the in-memory history is untouched.
func (s *Store) Load(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		loaded Session
		ok     bool
		err    error
	)
	if s.sink != nil {
		loaded, ok, err = s.sink.Load(sessionID)
	}
	if err != nil {
		logger.L.Warn("failed to load session", "session", sessionID, "error", err)
		return false
	}

	s.sessionID = sessionID
	if ok {
		s.mergeLocked(loaded)
	}
	s.persistLocked()
	return true
}

func (s *Store) mergeLocked(loaded Session) {
	if !loaded.StartedAt.IsZero() && loaded.StartedAt.Before(s.startedAt) {
		s.startedAt = loaded.StartedAt
	}

	seen := make(map[int64]bool, len(s.messages))
	for _, m := range s.messages {
		seen[m.Timestamp.UnixNano()] = true
	}
	for _, m := range loaded.Messages {
		if seen[m.Timestamp.UnixNano()] {
			continue
		}
		seen[m.Timestamp.UnixNano()] = true
		s.messages = append(s.messages, m)
	}

	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].Timestamp.Before(s.messages[j].Timestamp)
	})
	s.truncateLocked()
}

func (s *Store) truncateLocked() {
	if len(s.messages) > s.max {
		s.messages = append(s.messages[:0:0], s.messages[len(s.messages)-s.max:]...)
	}
}

func (s *Store) persistLocked() {
	if s.sink == nil {
		return
	}
	sess := Session{
		ID:        s.sessionID,
		StartedAt: s.startedAt,
		Messages:  append([]Message(nil), s.messages...),
	}
	if err := s.sink.Persist(sess); err != nil {
		logger.L.Warn("failed to persist session", "session", s.sessionID, "error", err)
	}
}
