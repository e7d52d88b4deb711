// Package memory keeps pipeline state in-memory for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cafemap/cafemap/internal/cafemap"
)

// Store implements cafemap.Store with maps. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	posts      map[string]cafemap.Post
	candidates map[string]cafemap.ExtractionCandidate
	reviews    map[string]cafemap.ReviewRecord
	canonical  map[string]cafemap.CanonicalLocation
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		posts:      map[string]cafemap.Post{},
		candidates: map[string]cafemap.ExtractionCandidate{},
		reviews:    map[string]cafemap.ReviewRecord{},
		canonical:  map[string]cafemap.CanonicalLocation{},
	}
}

// UpsertPosts stores posts keyed by id and reports how many were new.
func (s *Store) UpsertPosts(_ context.Context, posts []cafemap.Post) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, p := range posts {
		// Posts are immutable once fetched; reruns leave stored ones alone.
		if _, ok := s.posts[p.ID]; ok {
			continue
		}
		s.posts[p.ID] = p
		added++
	}
	return added, nil
}

// ListPosts returns all posts ordered by id.
func (s *Store) ListPosts(_ context.Context) ([]cafemap.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cafemap.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutCandidate stores (or overwrites) the candidate for its post.
func (s *Store) PutCandidate(_ context.Context, c cafemap.ExtractionCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.PostID] = c
	return nil
}

// PutReview stores (or overwrites) the review record for its post.
func (s *Store) PutReview(_ context.Context, r cafemap.ReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[r.PostID] = r
	return nil
}

// GetReview fetches a review record by post id.
func (s *Store) GetReview(_ context.Context, postID string) (cafemap.ReviewRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[postID]
	return r, ok, nil
}

// ListReviews returns review records ordered by post id.
func (s *Store) ListReviews(_ context.Context, includeResolved bool) ([]cafemap.ReviewRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cafemap.ReviewRecord, 0, len(s.reviews))
	for _, r := range s.reviews {
		if !includeResolved && r.Status == cafemap.ReviewResolved {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out, nil
}

// PutCanonical stores (or overwrites) a canonical location by key.
func (s *Store) PutCanonical(_ context.Context, loc cafemap.CanonicalLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canonical[loc.Key] = loc
	return nil
}

// GetCanonical fetches a canonical location by key.
func (s *Store) GetCanonical(_ context.Context, key string) (cafemap.CanonicalLocation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.canonical[key]
	return loc, ok, nil
}

// ListCanonical returns canonical locations ordered by post id.
func (s *Store) ListCanonical(_ context.Context) ([]cafemap.CanonicalLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cafemap.CanonicalLocation, 0, len(s.canonical))
	for _, loc := range s.canonical {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
