package fetcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const feedFixture = `<html><body>
<div role="article">
  <div data-ad-preview="message">新開的咖啡店「月光咖啡」
台北市大安區和平東路二段96號</div>
  <a href="https://example.com/groups/g/posts/1234567890/">permalink</a>
  <abbr data-utime="1750000000">June</abbr>
  <img src="https://scontent.example.com/v/photo1.jpg"/>
  <img src="data:image/gif;base64,R0lGOD"/>
</div>
<div role="article">
  <div data-ad-preview="message">這間不錯</div>
  <a href="https://example.com/groups/g/permalink/99/">permalink</a>
  <time datetime="2020-02-01T10:00:00Z">Feb 2020</time>
  <span>"top_level_post_id":"424242"</span>
</div>
<div role="article">
  <div data-ad-preview="message">no timestamp here</div>
  <a href="https://example.com/groups/g/posts/777/">permalink</a>
</div>
<div role="article"><div></div></div>
</body></html>`

func TestParseFeed(t *testing.T) {
	t.Parallel()

	posts, err := ParseFeed(feedFixture)
	require.NoError(t, err)
	require.Len(t, posts, 3)

	first := posts[0]
	require.Equal(t, "1234567890", first.ID)
	require.Equal(t, "https://example.com/groups/g/posts/1234567890/", first.Permalink)
	require.True(t, first.TimeOK)
	require.Equal(t, time.Unix(1750000000, 0).UTC(), first.PostedAt)
	require.Contains(t, first.Text, "月光咖啡")
	require.Contains(t, first.Text, "和平東路二段96號")
	require.Equal(t, []string{"https://scontent.example.com/v/photo1.jpg"}, first.ImageURLs)

	second := posts[1]
	require.Equal(t, "424242", second.ID, "id should come from the embedded top_level_post_id")
	require.True(t, second.TimeOK)
	require.Equal(t, time.Date(2020, 2, 1, 10, 0, 0, 0, time.UTC), second.PostedAt)

	third := posts[2]
	require.Equal(t, "777", third.ID)
	require.False(t, third.TimeOK)
}

func TestDedupeKeyFallsBackToTextPrefix(t *testing.T) {
	t.Parallel()

	with := FeedPost{ID: "42", Text: "hello", Permalink: "/p"}
	require.Equal(t, "42", with.DedupeKey())

	without := FeedPost{Text: "hello", Permalink: "/p"}
	require.Equal(t, "hello/p", without.DedupeKey())
}
