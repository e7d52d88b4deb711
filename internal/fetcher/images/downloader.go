// Package images downloads post images to local storage.
package images

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config controls the downloader.
type Config struct {
	Dir       string
	UserAgent string
	Timeout   time.Duration
}

// Downloader fetches image URLs with a Colly collector and writes them under
// the configured directory as <postID>-<idx>.jpg.
type Downloader struct {
	cfg       Config
	collector *colly.Collector
	logger    *zap.Logger
}

// New builds a Downloader and ensures the target directory exists.
func New(cfg Config, logger *zap.Logger) (*Downloader, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("image directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	return &Downloader{
		cfg:       cfg,
		collector: c,
		logger:    logger,
	}, nil
}

// Download fetches each URL and returns the paths that were saved. Failures
// are logged and skipped so one broken image never loses a post.
func (d *Downloader) Download(ctx context.Context, postID string, urls []string) []string {
	// Post ids become filenames; one carrying a path separator or dot
	// segment could write outside the image directory.
	if postID == "" || postID != filepath.Base(postID) {
		d.logger.Warn("refusing unsafe post id for image download",
			zap.String("post_id", postID))
		return nil
	}

	var saved []string

	for idx, url := range urls {
		if ctx.Err() != nil {
			break
		}
		path := filepath.Join(d.cfg.Dir, fmt.Sprintf("%s-%d.jpg", postID, idx))
		if _, err := os.Stat(path); err == nil {
			saved = append(saved, path)
			continue
		}

		collector := d.collector.Clone()
		collector.OnResponse(func(r *colly.Response) {
			if r.StatusCode != http.StatusOK {
				return
			}
			if err := os.WriteFile(path, r.Body, 0o644); err != nil {
				d.logger.Warn("write image failed",
					zap.String("post_id", postID),
					zap.String("path", path),
					zap.Error(err),
				)
				return
			}
			saved = append(saved, path)
		})
		collector.OnError(func(r *colly.Response, err error) {
			d.logger.Warn("image download failed",
				zap.String("post_id", postID),
				zap.String("url", url),
				zap.Error(err),
			)
		})

		if err := collector.Visit(url); err != nil {
			d.logger.Warn("image visit failed",
				zap.String("post_id", postID),
				zap.String("url", url),
				zap.Error(err),
			)
			continue
		}
		collector.Wait()
	}
	return saved
}
