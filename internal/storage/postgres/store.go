// Package postgres provides the Postgres-backed session registry and
// generation history.
//
// Expected schema:
//
//	CREATE TABLE sessions (
//	    ts BIGINT PRIMARY KEY,
//	    label TEXT NOT NULL,
//	    post_count INT NOT NULL,
//	    avg_likes DOUBLE PRECISION NOT NULL
//	);
//	CREATE TABLE posts (
//	    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    author TEXT NOT NULL DEFAULT '',
//	    content TEXT NOT NULL,
//	    likes INT NOT NULL DEFAULT 0,
//	    session_ts BIGINT NOT NULL REFERENCES sessions (ts)
//	);
//	CREATE TABLE generation_history (
//	    id UUID PRIMARY KEY,
//	    mode TEXT NOT NULL,
//	    topic TEXT NOT NULL DEFAULT '',
//	    content TEXT NOT NULL,
//	    image_uri TEXT NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedforge/harvester/internal/harvest"
)

const uniqueViolationCode = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements harvest.SessionStore and harvest.HistoryStore over a
// pgx connection pool.
type Store struct {
	pool  pgxPool
	clock harvest.Clock
}

// NewStore connects a pool using cfg and wraps it in a Store.
func NewStore(ctx context.Context, cfg Config, clock harvest.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, clock: clock}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool pgxPool, clock harvest.Clock) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateSession inserts the session row and its posts in one transaction,
// so a session is never visible without its posts or vice versa.
func (s *Store) CreateSession(ctx context.Context, label string, posts []harvest.Post) (harvest.Session, error) {
	ts := s.clock.Now().Unix()
	if label == "" {
		label = time.Unix(ts, 0).UTC().Format("2006-01-02 15:04")
	}
	var likes int
	for _, p := range posts {
		likes += p.Likes
	}
	session := harvest.Session{
		Timestamp: ts,
		Label:     label,
		PostCount: len(posts),
	}
	if len(posts) > 0 {
		session.AvgLikes = float64(likes) / float64(len(posts))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return harvest.Session{}, fmt.Errorf("begin session commit: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx,
		`INSERT INTO sessions (ts, label, post_count, avg_likes) VALUES ($1, $2, $3, $4)`,
		session.Timestamp, session.Label, session.PostCount, session.AvgLikes,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return harvest.Session{}, fmt.Errorf("session %d already exists: %w", ts, harvest.ErrConflict)
		}
		return harvest.Session{}, fmt.Errorf("insert session: %w", err)
	}

	for _, p := range posts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO posts (author, content, likes, session_ts) VALUES ($1, $2, $3, $4)`,
			p.Author, p.Content, p.Likes, session.Timestamp,
		); err != nil {
			return harvest.Session{}, fmt.Errorf("insert post: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return harvest.Session{}, fmt.Errorf("commit session: %w", err)
	}
	return session, nil
}

// ListSessions returns all sessions, most recent first.
func (s *Store) ListSessions(ctx context.Context) ([]harvest.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, label, post_count, avg_likes FROM sessions ORDER BY ts DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []harvest.Session
	for rows.Next() {
		var session harvest.Session
		if err := rows.Scan(&session.Timestamp, &session.Label, &session.PostCount, &session.AvgLikes); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

// GetSession returns the session keyed by timestamp or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, timestamp int64) (harvest.Session, error) {
	var session harvest.Session
	err := s.pool.QueryRow(ctx,
		`SELECT ts, label, post_count, avg_likes FROM sessions WHERE ts = $1`,
		timestamp,
	).Scan(&session.Timestamp, &session.Label, &session.PostCount, &session.AvgLikes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return harvest.Session{}, harvest.ErrNotFound
		}
		return harvest.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// ListPosts returns the filtered posts, highest likes first.
func (s *Store) ListPosts(ctx context.Context, filter harvest.SessionFilter) ([]harvest.Post, error) {
	return s.TopPosts(ctx, filter, 0)
}

// TopPosts returns at most limit filtered posts, highest likes first.
// limit <= 0 means no limit. An unknown non-zero session timestamp yields
// ErrNotFound.
func (s *Store) TopPosts(ctx context.Context, filter harvest.SessionFilter, limit int) ([]harvest.Post, error) {
	if !filter.All() {
		if _, err := s.GetSession(ctx, filter.Timestamp()); err != nil {
			return nil, err
		}
	}

	query := `SELECT id, author, content, likes, session_ts FROM posts
WHERE ($1::bigint = 0 OR session_ts = $1)
ORDER BY likes DESC`
	args := []any{filter.Timestamp()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []harvest.Post
	for rows.Next() {
		var post harvest.Post
		if err := rows.Scan(&post.ID, &post.Author, &post.Content, &post.Likes, &post.SessionTimestamp); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post rows: %w", err)
	}
	return posts, nil
}

// CountPosts returns the total number of stored posts.
func (s *Store) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

// CreateEntry records one generated post.
func (s *Store) CreateEntry(ctx context.Context, entry harvest.HistoryEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("history entry id is required")
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO generation_history (id, mode, topic, content, image_uri, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Mode, entry.Topic, entry.Content, entry.ImageURI, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// ListEntries returns generation history, newest first. limit <= 0 means
// no limit.
func (s *Store) ListEntries(ctx context.Context, limit int) ([]harvest.HistoryEntry, error) {
	query := `SELECT id, mode, topic, content, image_uri, created_at
FROM generation_history ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []harvest.HistoryEntry
	for rows.Next() {
		var entry harvest.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.Mode, &entry.Topic, &entry.Content, &entry.ImageURI, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

// DeleteEntry removes one history entry or reports ErrNotFound.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM generation_history WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete history entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return harvest.ErrNotFound
	}
	return nil
}

// CountEntries returns the number of history entries.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM generation_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return count, nil
}
