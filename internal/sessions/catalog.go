// Package sessions is the read-only consumer surface over the session
// registry, used by the generation-context selector and the database
// browser.
package sessions

import (
	"context"
	"fmt"

	"github.com/feedforge/harvester/internal/harvest"
)

// Catalog exposes completed sessions and their posts to features outside
// the orchestration core. It never mutates the registry.
type Catalog struct {
	registry harvest.SessionStore
}

// NewCatalog wraps the registry.
func NewCatalog(registry harvest.SessionStore) *Catalog {
	return &Catalog{registry: registry}
}

// ListForSelection returns the synthetic "General" entry followed by all
// recorded sessions, most recent first.
func (c *Catalog) ListForSelection(ctx context.Context) ([]harvest.Session, error) {
	recorded, err := c.registry.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]harvest.Session, 0, len(recorded)+1)
	out = append(out, harvest.GeneralSession())
	out = append(out, recorded...)
	return out, nil
}

// Posts returns the posts selected by the filter, highest likes first.
// The unscoped filter always resolves, even with zero sessions recorded;
// an unknown specific session yields ErrNotFound.
func (c *Catalog) Posts(ctx context.Context, filter harvest.SessionFilter) ([]harvest.Post, error) {
	if err := c.Validate(ctx, filter); err != nil {
		return nil, err
	}
	posts, err := c.registry.ListPosts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// TopPosts returns at most limit posts selected by the filter.
func (c *Catalog) TopPosts(ctx context.Context, filter harvest.SessionFilter, limit int) ([]harvest.Post, error) {
	if err := c.Validate(ctx, filter); err != nil {
		return nil, err
	}
	posts, err := c.registry.TopPosts(ctx, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("top posts: %w", err)
	}
	return posts, nil
}

// Validate confirms the filter resolves to a recorded session or to the
// unscoped pseudo-session. Generation requests must pass through here
// before their context is handed to the engine.
func (c *Catalog) Validate(ctx context.Context, filter harvest.SessionFilter) error {
	if filter.All() {
		return nil
	}
	if _, err := c.registry.GetSession(ctx, filter.Timestamp()); err != nil {
		return fmt.Errorf("session %d: %w", filter.Timestamp(), err)
	}
	return nil
}
