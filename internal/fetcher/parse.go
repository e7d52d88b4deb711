package fetcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FeedPost is one post lifted out of a feed snapshot. ImageURLs are remote;
// the crawler downloads them before building the stored post.
type FeedPost struct {
	ID        string
	Permalink string
	PostedAt  time.Time
	TimeOK    bool
	Text      string
	ImageURLs []string
}

// DedupeKey identifies a post across overlapping snapshots. Posts without a
// platform id fall back to a text prefix plus permalink.
func (p FeedPost) DedupeKey() string {
	if p.ID != "" {
		return p.ID
	}
	text := p.Text
	if len(text) > 120 {
		text = text[:120]
	}
	return text + p.Permalink
}

var (
	postIDPathRe = regexp.MustCompile(`/posts/(\d+)`)
	topLevelIDRe = regexp.MustCompile(`"top_level_post_id":"(\d+)"`)
	permalinkRe  = regexp.MustCompile(`/(?:posts|permalink)/`)
	scontentRe   = regexp.MustCompile(`scontent`)
)

// ParseFeed extracts posts from one rendered feed snapshot. Articles that
// cannot be parsed at all are skipped; a missing or unreadable timestamp is
// reported through TimeOK so the cutoff controller can treat it as degraded
// input instead of halting the crawl.
func ParseFeed(html string) ([]FeedPost, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse feed snapshot: %w", err)
	}

	var posts []FeedPost
	doc.Find(`article, div[role="article"]`).Each(func(_ int, art *goquery.Selection) {
		post := parseArticle(art)
		if post.Text == "" && len(post.ImageURLs) == 0 {
			return
		}
		posts = append(posts, post)
	})
	return posts, nil
}

func parseArticle(art *goquery.Selection) FeedPost {
	post := FeedPost{
		Text: articleText(art),
	}

	art.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !permalinkRe.MatchString(href) {
			return true
		}
		post.Permalink = href
		if m := postIDPathRe.FindStringSubmatch(href); m != nil {
			post.ID = m[1]
		}
		return false
	})
	if post.ID == "" {
		raw, err := goquery.OuterHtml(art)
		if err == nil {
			if m := topLevelIDRe.FindStringSubmatch(raw); m != nil {
				post.ID = m[1]
			}
		}
	}

	post.PostedAt, post.TimeOK = articleTime(art)

	art.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" {
			return
		}
		if scontentRe.MatchString(src) || strings.HasPrefix(src, "http") {
			post.ImageURLs = append(post.ImageURLs, src)
		}
	})

	return post
}

func articleText(art *goquery.Selection) string {
	msg := art.Find(`div[data-ad-preview="message"], span[data-ad-preview="message"]`).First()
	if msg.Length() > 0 {
		return strings.TrimSpace(msg.Text())
	}
	// Fallback for layouts without the message marker.
	if div := art.Find("div").First(); div.Length() > 0 {
		return strings.TrimSpace(div.Text())
	}
	return strings.TrimSpace(art.Text())
}

func articleTime(art *goquery.Selection) (time.Time, bool) {
	if abbr := art.Find("abbr[data-utime]").First(); abbr.Length() > 0 {
		raw, _ := abbr.Attr("data-utime")
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.Unix(ts, 0).UTC(), true
		}
		return time.Time{}, false
	}
	if el := art.Find("time[datetime]").First(); el.Length() > 0 {
		raw, _ := el.Attr("datetime")
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}
