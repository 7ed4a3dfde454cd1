package harvest

import (
	"context"
	"time"
)

// Engine drives the external feed-harvest process to completion. It reports
// progress and raises challenges through the Reporter and returns the
// collected batch, or an error when the run is unrecoverable. A context
// cancellation aborts the run.
type Engine interface {
	Run(ctx context.Context, reporter Reporter) (HarvestResult, error)
}

// Reporter receives callbacks from a running engine. Implementations are
// owned by the job controller; engines must treat them as opaque.
type Reporter interface {
	// Progress appends a line to the status feed and updates the message.
	Progress(message string)
	// Challenge suspends the run until a human supplies a one-time
	// passcode. It returns the code, or ctx's error if the run is aborted
	// first. Engines may call it again if the code is rejected upstream.
	Challenge(ctx context.Context) (string, error)
}

// SessionStore is the durable catalog of completed harvest batches.
type SessionStore interface {
	// CreateSession atomically persists the posts and the session row that
	// summarizes them. The session timestamp is assigned by the store;
	// a duplicate timestamp surfaces as ErrConflict.
	CreateSession(ctx context.Context, label string, posts []Post) (Session, error)
	// ListSessions returns all sessions, most recent first.
	ListSessions(ctx context.Context) ([]Session, error)
	// GetSession returns the session with the given timestamp or ErrNotFound.
	GetSession(ctx context.Context, timestamp int64) (Session, error)
	// ListPosts returns the posts matched by the filter, highest likes first.
	ListPosts(ctx context.Context, filter SessionFilter) ([]Post, error)
	// TopPosts returns at most limit posts matched by the filter, highest
	// likes first.
	TopPosts(ctx context.Context, filter SessionFilter, limit int) ([]Post, error)
	// CountPosts returns the number of stored posts across all sessions.
	CountPosts(ctx context.Context) (int64, error)
}

// HistoryStore records generated content.
type HistoryStore interface {
	CreateEntry(ctx context.Context, entry HistoryEntry) error
	ListEntries(ctx context.Context, limit int) ([]HistoryEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	CountEntries(ctx context.Context) (int64, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes session-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Generator produces post content from a rendered prompt and optional
// reference image.
type Generator interface {
	Generate(ctx context.Context, prompt string, image []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entry IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
