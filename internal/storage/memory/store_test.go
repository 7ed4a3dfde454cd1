package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feedforge/harvester/internal/harvest"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newTestStore() *Store {
	return NewStore(&stepClock{now: time.Unix(1735000000, 0)})
}

func TestCreateSessionComputesStats(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	session, err := store.CreateSession(context.Background(), "morning run", []harvest.Post{
		{Content: "a", Likes: 10},
		{Content: "b", Likes: 30},
	})
	require.NoError(t, err)
	require.Equal(t, "morning run", session.Label)
	require.Equal(t, 2, session.PostCount)
	require.InDelta(t, 20.0, session.AvgLikes, 0.001)
	require.NotZero(t, session.Timestamp)
}

func TestCreateSessionDefaultLabel(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	session, err := store.CreateSession(context.Background(), "", nil)
	require.NoError(t, err)
	require.Equal(t, time.Unix(session.Timestamp, 0).UTC().Format("2006-01-02 15:04"), session.Label)
	require.Zero(t, session.PostCount)
	require.Zero(t, session.AvgLikes)
}

func TestCreateSessionDuplicateTimestampConflicts(t *testing.T) {
	t.Parallel()

	store := NewStore(fixedClock{t: time.Unix(1735000000, 0)})

	_, err := store.CreateSession(context.Background(), "one", nil)
	require.NoError(t, err)
	_, err = store.CreateSession(context.Background(), "two", nil)
	require.ErrorIs(t, err, harvest.ErrConflict)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestListSessionsNewestFirst(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	first, err := store.CreateSession(context.Background(), "first", nil)
	require.NoError(t, err)
	second, err := store.CreateSession(context.Background(), "second", nil)
	require.NoError(t, err)

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{second.Timestamp, first.Timestamp}, []int64{sessions[0].Timestamp, sessions[1].Timestamp})
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	_, err := store.GetSession(context.Background(), 12345)
	require.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestListPostsFilters(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	ctx := context.Background()
	s1, err := store.CreateSession(ctx, "one", []harvest.Post{
		{Content: "low", Likes: 5},
		{Content: "high", Likes: 500},
	})
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "two", []harvest.Post{{Content: "mid", Likes: 50}})
	require.NoError(t, err)

	// Scoped to one session, sorted by likes descending.
	posts, err := store.ListPosts(ctx, harvest.OneSession(s1.Timestamp))
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, "high", posts[0].Content)
	require.Equal(t, s1.Timestamp, posts[0].SessionTimestamp)

	// Unscoped spans all sessions.
	posts, err = store.ListPosts(ctx, harvest.AllSessions())
	require.NoError(t, err)
	require.Len(t, posts, 3)
	require.Equal(t, []int{500, 50, 5}, []int{posts[0].Likes, posts[1].Likes, posts[2].Likes})

	// Unknown non-zero session.
	_, err = store.ListPosts(ctx, harvest.OneSession(999))
	require.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestListPostsAllWithNoSessions(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	posts, err := store.ListPosts(context.Background(), harvest.AllSessions())
	require.NoError(t, err)
	require.Empty(t, posts)
}

func TestTopPostsLimit(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	ctx := context.Background()
	_, err := store.CreateSession(ctx, "one", []harvest.Post{
		{Content: "a", Likes: 1},
		{Content: "b", Likes: 2},
		{Content: "c", Likes: 3},
	})
	require.NoError(t, err)

	posts, err := store.TopPosts(ctx, harvest.AllSessions(), 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, "c", posts[0].Content)
}

func TestHistoryLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	ctx := context.Background()
	older := harvest.HistoryEntry{ID: "h1", Mode: "trend", Topic: "ai", CreatedAt: time.Unix(100, 0)}
	newer := harvest.HistoryEntry{ID: "h2", Mode: "remix", Topic: "go", CreatedAt: time.Unix(200, 0)}
	require.NoError(t, store.CreateEntry(ctx, older))
	require.NoError(t, store.CreateEntry(ctx, newer))

	entries, err := store.ListEntries(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"h2", "h1"}, []string{entries[0].ID, entries[1].ID})

	count, err := store.CountEntries(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	require.NoError(t, store.DeleteEntry(ctx, "h1"))
	require.ErrorIs(t, store.DeleteEntry(ctx, "h1"), harvest.ErrNotFound)

	entries, err = store.ListEntries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCountPosts(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	ctx := context.Background()
	_, err := store.CreateSession(ctx, "one", []harvest.Post{{Content: "a"}, {Content: "b"}})
	require.NoError(t, err)

	count, err := store.CountPosts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}
