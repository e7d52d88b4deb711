package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd fetches the configured feed into the store.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Fetch feed posts up to the age cutoff",
		Long: `Opens the configured feed in a headless browser, scrolls until the
age cutoff fires, and stores new posts with their images. Posts already in
the store are left untouched.`,

		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	result, err := appInstance.Crawl(cmd.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}

	appInstance.Logger.Info("crawl command finished",
		zap.Int("posts_seen", result.PostsSeen),
		zap.Int("posts_stored", result.PostsStored),
		zap.Bool("cutoff_fired", result.CutoffFired),
	)
	return nil
}
