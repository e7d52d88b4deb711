package fetcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cafemap/cafemap/internal/cutoff"
	"github.com/cafemap/cafemap/internal/store/memory"
)

type scriptedSource struct {
	snapshots []string
	served    int
}

func (s *scriptedSource) Snapshots(_ context.Context, _ string, fn func(string) (bool, error)) error {
	for _, html := range s.snapshots {
		s.served++
		stop, err := fn(html)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (s *scriptedSource) Close() {}

type noopImages struct{}

func (noopImages) Download(_ context.Context, postID string, urls []string) []string {
	paths := make([]string, len(urls))
	for i := range urls {
		paths[i] = fmt.Sprintf("images/%s-%d.jpg", postID, i)
	}
	return paths
}

func article(id string, utime int64, text string) string {
	return fmt.Sprintf(`<div role="article">
  <div data-ad-preview="message">%s</div>
  <a href="https://example.com/groups/g/posts/%s/">link</a>
  <abbr data-utime="%d">t</abbr>
</div>`, text, id, utime)
}

func TestCrawlStopsAtCutoffAndStoresFreshPosts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := now.Add(-24 * time.Hour).Unix()
	stale := now.Add(-4 * 365 * 24 * time.Hour).Unix()

	src := &scriptedSource{snapshots: []string{
		"<html><body>" + article("1", fresh, "post one") + article("2", fresh, "post two") + "</body></html>",
		"<html><body>" +
			article("1", fresh, "post one") +
			article("90", stale, "old a") + article("91", stale, "old b") +
			article("92", stale, "old c") + article("93", stale, "old d") +
			"</body></html>",
		"<html><body>" + article("3", fresh, "never reached") + "</body></html>",
	}}

	store := memory.New()
	ctrl := cutoff.New(now, cutoff.Config{Tolerance: 3}, zap.NewNop())

	result, err := NewCrawler(src, nil, store, zap.NewNop()).Crawl(context.Background(), "https://example.com/feed", ctrl)
	require.NoError(t, err)

	require.True(t, result.CutoffFired)
	require.Equal(t, 2, src.served, "third snapshot must not be requested after cutoff")
	require.Equal(t, 2, result.PostsStored, "stale posts are not stored")

	posts, err := store.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, "1", posts[0].ID)
	require.Equal(t, "2", posts[1].ID)
}

func TestCrawlDedupesAcrossSnapshots(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Hour).Unix()

	page := "<html><body>" + article("7", fresh, "same post") + "</body></html>"
	src := &scriptedSource{snapshots: []string{page, page, page}}

	store := memory.New()
	ctrl := cutoff.New(now, cutoff.Config{}, zap.NewNop())

	result, err := NewCrawler(src, nil, store, zap.NewNop()).Crawl(context.Background(), "https://example.com/feed", ctrl)
	require.NoError(t, err)
	require.Equal(t, 1, result.PostsSeen)
	require.Equal(t, 1, result.PostsStored)
}

func TestCrawlHashesFallbackIDForIDLessPosts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Hour).Unix()

	// No post id anywhere; the dedupe key is raw text plus permalink and
	// the permalink carries path segments.
	page := `<html><body><div role="article">
  <div data-ad-preview="message">../..;no id here</div>
  <a href="https://example.com/groups/g/permalink/">link</a>
  <abbr data-utime="` + fmt.Sprint(fresh) + `">t</abbr>
  <img src="https://scontent.example.com/a.jpg"/>
</div></body></html>`

	store := memory.New()
	ctrl := cutoff.New(now, cutoff.Config{}, zap.NewNop())

	_, err := NewCrawler(&scriptedSource{snapshots: []string{page}}, noopImages{}, store, zap.NewNop()).
		Crawl(context.Background(), "https://example.com/feed", ctrl)
	require.NoError(t, err)

	posts, err := store.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Len(t, posts[0].ID, 12)
	require.Regexp(t, "^[0-9a-f]{12}$", posts[0].ID)
	require.Equal(t, []string{"images/" + posts[0].ID + "-0.jpg"}, posts[0].ImagePaths)
}

func TestCrawlAttachesDownloadedImages(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Hour).Unix()

	page := `<html><body><div role="article">
  <div data-ad-preview="message">with photo</div>
  <a href="https://example.com/groups/g/posts/55/">link</a>
  <abbr data-utime="` + fmt.Sprint(fresh) + `">t</abbr>
  <img src="https://scontent.example.com/a.jpg"/>
</div></body></html>`

	store := memory.New()
	ctrl := cutoff.New(now, cutoff.Config{}, zap.NewNop())

	_, err := NewCrawler(&scriptedSource{snapshots: []string{page}}, noopImages{}, store, zap.NewNop()).
		Crawl(context.Background(), "https://example.com/feed", ctrl)
	require.NoError(t, err)

	posts, err := store.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, []string{"images/55-0.jpg"}, posts[0].ImagePaths)
}
