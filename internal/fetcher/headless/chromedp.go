// Package headless renders the feed with a browser and streams DOM
// snapshots as it scrolls.
package headless

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the scroll loop.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	MaxScrolls        int
	ScrollPause       time.Duration
	ScrollJitter      time.Duration
}

// Source implements fetcher.Source using chromedp and headless Chrome.
type Source struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New creates a headless feed source.
func New(cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.MaxScrolls < 0 {
		return nil, fmt.Errorf("max scrolls must be >= 0")
	}
	if cfg.MaxScrolls == 0 {
		cfg.MaxScrolls = 40
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = 2500 * time.Millisecond
	}
	if cfg.ScrollJitter < 0 {
		cfg.ScrollJitter = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(1200, 2000),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Source{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (s *Source) Close() {
	s.allocCancel()
}

// Snapshots navigates to url and scrolls, handing each rendered snapshot to
// fn. Scrolling stops when fn returns true, the page height stops growing,
// or the scroll budget runs out.
func (s *Source) Snapshots(ctx context.Context, url string, fn func(html string) (bool, error)) error {
	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()

	navCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(navCtx,
		s.networkSetup(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate feed: %w", err)
	}

	lastHeight := int64(-1)
	for i := 0; i < s.cfg.MaxScrolls; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := chromedp.Run(taskCtx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(s.pause()),
		); err != nil {
			return fmt.Errorf("scroll feed: %w", err)
		}

		var html string
		var height int64
		if err := chromedp.Run(taskCtx,
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
			chromedp.Evaluate(`document.body.scrollHeight`, &height),
		); err != nil {
			return fmt.Errorf("snapshot feed: %w", err)
		}

		stop, err := fn(html)
		if err != nil {
			return err
		}
		if stop {
			s.logger.Debug("snapshot consumer requested stop", zap.Int("scrolls", i+1))
			return nil
		}
		if height == lastHeight {
			s.logger.Debug("feed height stopped growing", zap.Int("scrolls", i+1))
			return nil
		}
		lastHeight = height
	}
	s.logger.Debug("scroll budget exhausted", zap.Int("max_scrolls", s.cfg.MaxScrolls))
	return nil
}

func (s *Source) networkSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (s *Source) pause() time.Duration {
	if s.cfg.ScrollJitter == 0 {
		return s.cfg.ScrollPause
	}
	return s.cfg.ScrollPause + time.Duration(rand.Int63n(int64(s.cfg.ScrollJitter)))
}
