// Package session keeps per-conversation state: the rolling turn history fed
// to the AI client and time-boxed pause records that suppress automated
// replies. Everything lives in memory for the life of the process.
package session

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultHistoryLimit caps a conversation's history for instant and
	// simple exchanges.
	DefaultHistoryLimit = 20
	// ComplexHistoryLimit is the extended cap used while a complex-tier
	// exchange is in flight, preserving multi-step transactional context.
	ComplexHistoryLimit = 40
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role          Role
	Text          string
	HasAttachment bool
	AttachmentRef string
}

// Conversation owns the rolling history for one sender.
type Conversation struct {
	ID       string
	History  []Turn
	LastSeen time.Time
}

// PauseInfo is one entry of the operator-facing paused list.
type PauseInfo struct {
	ID        string
	Remaining time.Duration
}

type Store struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	paused        map[string]time.Time
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
		paused:        make(map[string]time.Time),
		now:           time.Now,
	}
}

// NewStoreWithClock is used by tests to control expiry.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.now = now
	return s
}

func (s *Store) getOrCreateLocked(id string) *Conversation {
	conv, ok := s.conversations[id]
	if !ok {
		conv = &Conversation{ID: id}
		s.conversations[id] = conv
	}
	conv.LastSeen = s.now()
	return conv
}

// AppendTurn pushes a turn onto the conversation's history, creating the
// conversation on first contact, then truncates from the front to limit.
func (s *Store) AppendTurn(id string, turn Turn, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreateLocked(id)
	conv.History = append(conv.History, turn)
	if len(conv.History) > limit {
		conv.History = conv.History[len(conv.History)-limit:]
	}
}

// History returns a copy of the conversation's turns, oldest first.
func (s *Store) History(id string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil
	}
	out := make([]Turn, len(conv.History))
	copy(out, conv.History)
	return out
}

// IsPaused reports whether id currently has an unexpired pause record. An
// expired record is removed as a side effect of the check.
func (s *Store) IsPaused(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.paused[id]
	if !ok {
		return false
	}
	if !until.After(s.now()) {
		delete(s.paused, id)
		return false
	}
	return true
}

// SetPaused suppresses automated replies for id for the given duration.
func (s *Store) SetPaused(id string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[id] = s.now().Add(d)
}

// ClearPaused removes any pause record for id.
func (s *Store) ClearPaused(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, id)
}

// Paused lists currently paused conversations with remaining time, sorted by
// id for stable operator output. Already-expired records are skipped.
func (s *Store) Paused() []PauseInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]PauseInfo, 0, len(s.paused))
	for id, until := range s.paused {
		if !until.After(now) {
			continue
		}
		out = append(out, PauseInfo{ID: id, Remaining: until.Sub(now)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SweepPaused drops all expired pause records. Run from the shared periodic
// tick so the operator-facing list never reports a stale pause.
func (s *Store) SweepPaused() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, until := range s.paused {
		if !until.After(now) {
			delete(s.paused, id)
			removed++
		}
	}
	return removed
}

// EvictIdle removes conversations with no activity for longer than idle,
// bounding memory for a long-running process.
func (s *Store) EvictIdle(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-idle)
	removed := 0
	for id, conv := range s.conversations {
		if conv.LastSeen.Before(cutoff) {
			delete(s.conversations, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}
