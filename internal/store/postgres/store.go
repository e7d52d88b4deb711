// Package postgres provides Postgres-backed pipeline persistence.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cafemap/cafemap/internal/cafemap"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	post_id     TEXT PRIMARY KEY,
	permalink   TEXT NOT NULL DEFAULT '',
	posted_at   TIMESTAMPTZ NOT NULL,
	body        TEXT NOT NULL DEFAULT '',
	image_paths JSONB NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS candidates (
	post_id TEXT PRIMARY KEY,
	doc     JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS reviews (
	post_id TEXT PRIMARY KEY,
	status  TEXT NOT NULL,
	doc     JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS canonical (
	key TEXT PRIMARY KEY,
	doc JSONB NOT NULL
);
`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements cafemap.Store backed by Postgres.
type Store struct {
	pool querier
}

// New connects a pool and applies the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
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
	store := &Store{pool: pool}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// UpsertPosts inserts posts, skipping ids already present, and reports how
// many were new.
func (s *Store) UpsertPosts(ctx context.Context, posts []cafemap.Post) (int, error) {
	added := 0
	for _, p := range posts {
		images, err := json.Marshal(p.ImagePaths)
		if err != nil {
			return added, fmt.Errorf("marshal image paths: %w", err)
		}
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO posts (post_id, permalink, posted_at, body, image_paths)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (post_id) DO NOTHING`,
			p.ID, p.Permalink, p.PostedAt.UTC(), p.Text, images)
		if err != nil {
			return added, fmt.Errorf("upsert post %s: %w", p.ID, err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

// ListPosts returns all posts ordered by id.
func (s *Store) ListPosts(ctx context.Context) ([]cafemap.Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT post_id, permalink, posted_at, body, image_paths FROM posts ORDER BY post_id`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []cafemap.Post
	for rows.Next() {
		var (
			p      cafemap.Post
			images []byte
		)
		if err := rows.Scan(&p.ID, &p.Permalink, &p.PostedAt, &p.Text, &images); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if err := json.Unmarshal(images, &p.ImagePaths); err != nil {
			return nil, fmt.Errorf("unmarshal image paths for %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PutCandidate stores the candidate document for its post.
func (s *Store) PutCandidate(ctx context.Context, c cafemap.ExtractionCandidate) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO candidates (post_id, doc) VALUES ($1, $2)
		 ON CONFLICT (post_id) DO UPDATE SET doc = EXCLUDED.doc`,
		c.PostID, doc)
	if err != nil {
		return fmt.Errorf("upsert candidate %s: %w", c.PostID, err)
	}
	return nil
}

// PutReview stores the review record for its post.
func (s *Store) PutReview(ctx context.Context, r cafemap.ReviewRecord) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal review: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO reviews (post_id, status, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (post_id) DO UPDATE SET status = EXCLUDED.status, doc = EXCLUDED.doc`,
		r.PostID, string(r.Status), doc)
	if err != nil {
		return fmt.Errorf("upsert review %s: %w", r.PostID, err)
	}
	return nil
}

// GetReview fetches a review record by post id.
func (s *Store) GetReview(ctx context.Context, postID string) (cafemap.ReviewRecord, bool, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM reviews WHERE post_id = $1`, postID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return cafemap.ReviewRecord{}, false, nil
	}
	if err != nil {
		return cafemap.ReviewRecord{}, false, fmt.Errorf("get review %s: %w", postID, err)
	}
	var r cafemap.ReviewRecord
	if err := json.Unmarshal(doc, &r); err != nil {
		return cafemap.ReviewRecord{}, false, fmt.Errorf("unmarshal review %s: %w", postID, err)
	}
	return r, true, nil
}

// ListReviews returns review records ordered by post id.
func (s *Store) ListReviews(ctx context.Context, includeResolved bool) ([]cafemap.ReviewRecord, error) {
	query := `SELECT doc FROM reviews ORDER BY post_id`
	args := []any{}
	if !includeResolved {
		query = `SELECT doc FROM reviews WHERE status != $1 ORDER BY post_id`
		args = append(args, string(cafemap.ReviewResolved))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []cafemap.ReviewRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		var r cafemap.ReviewRecord
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("unmarshal review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PutCanonical stores a canonical location by key.
func (s *Store) PutCanonical(ctx context.Context, loc cafemap.CanonicalLocation) error {
	doc, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal canonical: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO canonical (key, doc) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc`,
		loc.Key, doc)
	if err != nil {
		return fmt.Errorf("upsert canonical %s: %w", loc.Key, err)
	}
	return nil
}

// GetCanonical fetches a canonical location by key.
func (s *Store) GetCanonical(ctx context.Context, key string) (cafemap.CanonicalLocation, bool, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM canonical WHERE key = $1`, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return cafemap.CanonicalLocation{}, false, nil
	}
	if err != nil {
		return cafemap.CanonicalLocation{}, false, fmt.Errorf("get canonical %s: %w", key, err)
	}
	var loc cafemap.CanonicalLocation
	if err := json.Unmarshal(doc, &loc); err != nil {
		return cafemap.CanonicalLocation{}, false, fmt.Errorf("unmarshal canonical %s: %w", key, err)
	}
	return loc, true, nil
}

// ListCanonical returns canonical locations ordered by post id.
func (s *Store) ListCanonical(ctx context.Context) ([]cafemap.CanonicalLocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM canonical ORDER BY doc->>'post_id'`)
	if err != nil {
		return nil, fmt.Errorf("list canonical: %w", err)
	}
	defer rows.Close()

	var out []cafemap.CanonicalLocation
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan canonical: %w", err)
		}
		var loc cafemap.CanonicalLocation
		if err := json.Unmarshal(doc, &loc); err != nil {
			return nil, fmt.Errorf("unmarshal canonical: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}
