// Package memory provides an in-memory registry implementation for
// development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/feedforge/harvester/internal/harvest"
)

// Store implements harvest.SessionStore and harvest.HistoryStore with maps.
type Store struct {
	mu         sync.RWMutex
	clock      harvest.Clock
	sessions   map[int64]harvest.Session
	order      []int64
	posts      map[int64][]harvest.Post
	history    []harvest.HistoryEntry
	nextPostID int
}

// NewStore constructs a Store stamping sessions through clock.
func NewStore(clock harvest.Clock) *Store {
	return &Store{
		clock:    clock,
		sessions: make(map[int64]harvest.Session),
		posts:    make(map[int64][]harvest.Post),
	}
}

// CreateSession stores the posts and the summarizing session row. The
// timestamp key comes from the clock; a duplicate is an invariant breach.
func (s *Store) CreateSession(_ context.Context, label string, posts []harvest.Post) (harvest.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.clock.Now().Unix()
	if _, exists := s.sessions[ts]; exists {
		return harvest.Session{}, fmt.Errorf("session %d already exists: %w", ts, harvest.ErrConflict)
	}
	if label == "" {
		label = time.Unix(ts, 0).UTC().Format("2006-01-02 15:04")
	}

	stored := make([]harvest.Post, 0, len(posts))
	var likes int
	for _, p := range posts {
		s.nextPostID++
		p.ID = fmt.Sprintf("post-%d", s.nextPostID)
		p.SessionTimestamp = ts
		likes += p.Likes
		stored = append(stored, p)
	}
	session := harvest.Session{
		Timestamp: ts,
		Label:     label,
		PostCount: len(stored),
	}
	if len(stored) > 0 {
		session.AvgLikes = float64(likes) / float64(len(stored))
	}

	s.sessions[ts] = session
	s.order = append(s.order, ts)
	s.posts[ts] = stored
	return session, nil
}

// ListSessions returns sessions most recent first.
func (s *Store) ListSessions(context.Context) ([]harvest.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.Session, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.sessions[s.order[i]])
	}
	return out, nil
}

// GetSession returns one session or ErrNotFound.
func (s *Store) GetSession(_ context.Context, timestamp int64) (harvest.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[timestamp]
	if !ok {
		return harvest.Session{}, harvest.ErrNotFound
	}
	return session, nil
}

// ListPosts returns the filtered posts, highest likes first. An unknown
// non-zero session timestamp yields ErrNotFound; the unscoped filter always
// resolves, even to an empty set.
func (s *Store) ListPosts(ctx context.Context, filter harvest.SessionFilter) ([]harvest.Post, error) {
	return s.TopPosts(ctx, filter, 0)
}

// TopPosts returns at most limit filtered posts, highest likes first.
// limit <= 0 means no limit.
func (s *Store) TopPosts(_ context.Context, filter harvest.SessionFilter, limit int) ([]harvest.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []harvest.Post
	if filter.All() {
		for _, posts := range s.posts {
			out = append(out, posts...)
		}
	} else {
		posts, ok := s.posts[filter.Timestamp()]
		if !ok {
			return nil, harvest.ErrNotFound
		}
		out = append(out, posts...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Likes > out[j].Likes })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountPosts returns the number of posts across all sessions.
func (s *Store) CountPosts(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, posts := range s.posts {
		n += int64(len(posts))
	}
	return n, nil
}

// CreateEntry records a generated post.
func (s *Store) CreateEntry(_ context.Context, entry harvest.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	return nil
}

// ListEntries returns generation history, newest first. limit <= 0 means
// no limit.
func (s *Store) ListEntries(_ context.Context, limit int) ([]harvest.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.HistoryEntry, len(s.history))
	copy(out, s.history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteEntry removes one history entry or reports ErrNotFound.
func (s *Store) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.history {
		if entry.ID == id {
			s.history = append(s.history[:i], s.history[i+1:]...)
			return nil
		}
	}
	return harvest.ErrNotFound
}

// CountEntries returns the number of history entries.
func (s *Store) CountEntries(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.history)), nil
}
