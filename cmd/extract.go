package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newExtractCmd runs the extraction pipeline over stored posts.
func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Extract locations from stored posts and emit the dataset",
		Long: `Runs every stored post through the extraction stages (text
heuristics, then OCR), geocodes the results, classifies them into the
canonical dataset or the review queue, and writes the GeoJSON and review
CSV artifacts.`,

		RunE: runExtractCommand,
	}
}

func runExtractCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	report, err := appInstance.RunExtraction(cmd.Context())
	if err != nil {
		return fmt.Errorf("run extraction: %w", err)
	}

	appInstance.Logger.Info("extract command finished",
		zap.String("run_id", report.RunID),
		zap.Int("posts_processed", report.PostsProcessed),
		zap.Int("confirmed_auto", report.ConfirmedAuto),
		zap.Int("needs_review", report.NeedsReview),
		zap.Int("unresolved", report.Unresolved),
		zap.Int("failed", report.Failed),
	)
	return nil
}
