// Package cutoff decides when the feed fetcher should stop paging into
// history.
package cutoff

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config controls the stop decision.
type Config struct {
	// MaxAge is the maximum post age; posts older than now-MaxAge count
	// toward the stop signal.
	MaxAge time.Duration
	// Tolerance is the number of consecutive older-than-cutoff posts the
	// controller absorbs before signaling stop. Platform-side reordering
	// jitter means a single out-of-order old post must not halt the crawl.
	Tolerance int
}

// Controller observes posts newest-first and signals when paging should
// stop. Safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	cutoff    time.Time
	tolerance int
	run       int
	stopped   bool
	degraded  int
	logger    *zap.Logger
}

// New builds a Controller anchored at now.
func New(now time.Time, cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3 * 365 * 24 * time.Hour
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = 3
	}
	return &Controller{
		cutoff:    now.Add(-maxAge),
		tolerance: tolerance,
		logger:    logger,
	}
}

// Observe feeds one post timestamp in feed order. timeOK is false when the
// fetcher could not parse the timestamp; such posts are treated as not older
// than the cutoff and logged as degraded rather than halting the crawl.
// Returns true once the stop signal has fired.
func (c *Controller) Observe(postedAt time.Time, timeOK bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return true
	}
	if !timeOK {
		c.degraded++
		c.run = 0
		c.logger.Warn("unparseable post timestamp, keeping crawl alive",
			zap.Int("degraded_total", c.degraded))
		return false
	}
	if postedAt.Before(c.cutoff) {
		c.run++
		if c.run > c.tolerance {
			c.stopped = true
			c.logger.Info("cutoff reached, signaling fetch stop",
				zap.Time("cutoff", c.cutoff),
				zap.Int("contiguous_old", c.run))
			return true
		}
		return false
	}
	c.run = 0
	return false
}

// Rejects reports whether a timestamp falls outside the crawl window.
func (c *Controller) Rejects(postedAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return postedAt.Before(c.cutoff)
}

// ShouldStop reports whether the stop signal has fired.
func (c *Controller) ShouldStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// DegradedCount returns how many unparseable timestamps were observed.
func (c *Controller) DegradedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}
