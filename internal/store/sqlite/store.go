// Package sqlite persists pipeline state in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cafemap/cafemap/internal/cafemap"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	post_id     TEXT PRIMARY KEY,
	permalink   TEXT NOT NULL DEFAULT '',
	posted_at   TEXT NOT NULL,
	body        TEXT NOT NULL DEFAULT '',
	image_paths TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS candidates (
	post_id TEXT PRIMARY KEY,
	doc     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS reviews (
	post_id TEXT PRIMARY KEY,
	status  TEXT NOT NULL,
	doc     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS canonical (
	key TEXT PRIMARY KEY,
	doc TEXT NOT NULL
);
`

// Store implements cafemap.Store backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertPosts inserts posts, ignoring ones already stored, and reports how
// many were new.
func (s *Store) UpsertPosts(ctx context.Context, posts []cafemap.Post) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	added := 0
	for _, p := range posts {
		images, err := json.Marshal(p.ImagePaths)
		if err != nil {
			return 0, fmt.Errorf("marshal image paths: %w", err)
		}
		// Posts are immutable once fetched; reruns leave stored rows alone.
		res, err := tx.ExecContext(ctx,
			`INSERT INTO posts (post_id, permalink, posted_at, body, image_paths)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(post_id) DO NOTHING`,
			p.ID, p.Permalink, p.PostedAt.UTC().Format(time.RFC3339), p.Text, string(images))
		if err != nil {
			return 0, fmt.Errorf("upsert post %s: %w", p.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit posts: %w", err)
	}
	return added, nil
}

// ListPosts returns all posts ordered by id.
func (s *Store) ListPosts(ctx context.Context) ([]cafemap.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id, permalink, posted_at, body, image_paths FROM posts ORDER BY post_id`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []cafemap.Post
	for rows.Next() {
		var (
			p        cafemap.Post
			postedAt string
			images   string
		)
		if err := rows.Scan(&p.ID, &p.Permalink, &postedAt, &p.Text, &images); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if p.PostedAt, err = time.Parse(time.RFC3339, postedAt); err != nil {
			return nil, fmt.Errorf("parse posted_at for %s: %w", p.ID, err)
		}
		if err := json.Unmarshal([]byte(images), &p.ImagePaths); err != nil {
			return nil, fmt.Errorf("unmarshal image paths for %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PutCandidate stores the candidate document for its post.
func (s *Store) PutCandidate(ctx context.Context, c cafemap.ExtractionCandidate) error {
	return s.putDoc(ctx,
		`INSERT INTO candidates (post_id, doc) VALUES (?, ?)
		 ON CONFLICT(post_id) DO UPDATE SET doc = excluded.doc`,
		c.PostID, c)
}

// PutReview stores the review record for its post.
func (s *Store) PutReview(ctx context.Context, r cafemap.ReviewRecord) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal review: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reviews (post_id, status, doc) VALUES (?, ?, ?)
		 ON CONFLICT(post_id) DO UPDATE SET status = excluded.status, doc = excluded.doc`,
		r.PostID, string(r.Status), string(doc))
	if err != nil {
		return fmt.Errorf("upsert review %s: %w", r.PostID, err)
	}
	return nil
}

// GetReview fetches a review record by post id.
func (s *Store) GetReview(ctx context.Context, postID string) (cafemap.ReviewRecord, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM reviews WHERE post_id = ?`, postID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return cafemap.ReviewRecord{}, false, nil
	}
	if err != nil {
		return cafemap.ReviewRecord{}, false, fmt.Errorf("get review %s: %w", postID, err)
	}
	var r cafemap.ReviewRecord
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return cafemap.ReviewRecord{}, false, fmt.Errorf("unmarshal review %s: %w", postID, err)
	}
	return r, true, nil
}

// ListReviews returns review records ordered by post id.
func (s *Store) ListReviews(ctx context.Context, includeResolved bool) ([]cafemap.ReviewRecord, error) {
	query := `SELECT doc FROM reviews ORDER BY post_id`
	args := []any{}
	if !includeResolved {
		query = `SELECT doc FROM reviews WHERE status != ? ORDER BY post_id`
		args = append(args, string(cafemap.ReviewResolved))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []cafemap.ReviewRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		var r cafemap.ReviewRecord
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("unmarshal review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PutCanonical stores a canonical location by key.
func (s *Store) PutCanonical(ctx context.Context, loc cafemap.CanonicalLocation) error {
	return s.putDoc(ctx,
		`INSERT INTO canonical (key, doc) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET doc = excluded.doc`,
		loc.Key, loc)
}

// GetCanonical fetches a canonical location by key.
func (s *Store) GetCanonical(ctx context.Context, key string) (cafemap.CanonicalLocation, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM canonical WHERE key = ?`, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return cafemap.CanonicalLocation{}, false, nil
	}
	if err != nil {
		return cafemap.CanonicalLocation{}, false, fmt.Errorf("get canonical %s: %w", key, err)
	}
	var loc cafemap.CanonicalLocation
	if err := json.Unmarshal([]byte(doc), &loc); err != nil {
		return cafemap.CanonicalLocation{}, false, fmt.Errorf("unmarshal canonical %s: %w", key, err)
	}
	return loc, true, nil
}

// ListCanonical returns canonical locations ordered by post id.
func (s *Store) ListCanonical(ctx context.Context) ([]cafemap.CanonicalLocation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM canonical`)
	if err != nil {
		return nil, fmt.Errorf("list canonical: %w", err)
	}
	defer rows.Close()

	var out []cafemap.CanonicalLocation
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan canonical: %w", err)
		}
		var loc cafemap.CanonicalLocation
		if err := json.Unmarshal([]byte(doc), &loc); err != nil {
			return nil, fmt.Errorf("unmarshal canonical: %w", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out, nil
}

func (s *Store) putDoc(ctx context.Context, query, key string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, key, string(doc)); err != nil {
		return fmt.Errorf("upsert doc %s: %w", key, err)
	}
	return nil
}
