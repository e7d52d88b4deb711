// Package fetcher collects feed posts until the age cutoff fires.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/cutoff"
	"github.com/cafemap/cafemap/internal/metrics"
)

// Source streams rendered feed snapshots. The callback returns true to stop
// scrolling.
type Source interface {
	Snapshots(ctx context.Context, url string, fn func(html string) (bool, error)) error
	Close()
}

// ImageFetcher downloads post images and returns local paths.
type ImageFetcher interface {
	Download(ctx context.Context, postID string, urls []string) []string
}

// Crawler drives one crawl: scroll, parse, dedupe, observe the cutoff, and
// persist new posts.
type Crawler struct {
	source Source
	images ImageFetcher
	store  cafemap.Store
	logger *zap.Logger
}

// NewCrawler wires a Crawler. The image fetcher may be nil to skip downloads.
func NewCrawler(source Source, images ImageFetcher, store cafemap.Store, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		source: source,
		images: images,
		store:  store,
		logger: logger,
	}
}

// Result summarizes one crawl.
type Result struct {
	PostsSeen     int
	PostsStored   int
	DegradedTimes int
	CutoffFired   bool
}

// Crawl fetches the feed at url until the cutoff controller signals stop or
// the source runs out of new content, then stores the collected posts.
// Already stored posts are left untouched.
func (c *Crawler) Crawl(ctx context.Context, url string, ctrl *cutoff.Controller) (Result, error) {
	seen := map[string]FeedPost{}

	err := c.source.Snapshots(ctx, url, func(html string) (bool, error) {
		parsed, err := ParseFeed(html)
		if err != nil {
			return false, err
		}
		for _, post := range parsed {
			key := post.DedupeKey()
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = post
			if ctrl.Observe(post.PostedAt, post.TimeOK) {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("feed snapshots: %w", err)
	}

	posts := c.materialize(ctx, seen, ctrl)
	stored, err := c.store.UpsertPosts(ctx, posts)
	if err != nil {
		return Result{}, fmt.Errorf("store posts: %w", err)
	}
	metrics.AddPostsFetched(stored)

	result := Result{
		PostsSeen:     len(seen),
		PostsStored:   stored,
		DegradedTimes: ctrl.DegradedCount(),
		CutoffFired:   ctrl.ShouldStop(),
	}
	c.logger.Info("crawl finished",
		zap.Int("posts_seen", result.PostsSeen),
		zap.Int("posts_stored", result.PostsStored),
		zap.Int("degraded_timestamps", result.DegradedTimes),
		zap.Bool("cutoff_fired", result.CutoffFired),
	)
	return result, nil
}

// materialize turns the deduped feed posts into stored posts, downloading
// images for posts inside the cutoff window.
func (c *Crawler) materialize(ctx context.Context, seen map[string]FeedPost, ctrl *cutoff.Controller) []cafemap.Post {
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	posts := make([]cafemap.Post, 0, len(seen))
	for _, key := range keys {
		fp := seen[key]
		if fp.TimeOK && ctrl.Rejects(fp.PostedAt) {
			continue
		}
		post := cafemap.Post{
			ID:        fp.ID,
			Permalink: fp.Permalink,
			PostedAt:  fp.PostedAt,
			Text:      fp.Text,
		}
		if post.ID == "" {
			// The dedupe key carries raw feed text and the permalink, which
			// must never reach a filename or URL path. Hash it instead.
			post.ID = syntheticID(key)
		}
		if c.images != nil && len(fp.ImageURLs) > 0 {
			post.ImagePaths = c.images.Download(ctx, post.ID, fp.ImageURLs)
		}
		posts = append(posts, post)
	}
	return posts
}

// syntheticID derives a stable id for posts the feed exposes no platform id
// for.
func syntheticID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}
