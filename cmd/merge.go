package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newMergeCmd applies human corrections from a confirmed CSV.
func newMergeCmd() *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge human corrections back into the dataset",
		Long: `Reads a confirmed CSV produced by reviewers, applies each row to
its review record, promotes confirmed locations into the dataset, and
re-emits the artifacts. Rows referencing unknown posts are reported and
skipped.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			summary, err := appInstance.Merge(cmd.Context(), csvPath)
			if err != nil {
				return fmt.Errorf("run merge: %w", err)
			}

			for _, postID := range summary.Orphans {
				appInstance.Logger.Warn("correction for unknown post", zap.String("post_id", postID))
			}
			for _, rowErr := range summary.RowErrors {
				appInstance.Logger.Warn("unusable correction row", zap.Error(rowErr))
			}
			appInstance.Logger.Info("merge command finished",
				zap.Int("rows_applied", summary.RowsApplied),
				zap.Int("rows_skipped", summary.RowsSkipped),
				zap.Int("orphans", len(summary.Orphans)),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "path to the confirmed CSV")
	_ = cmd.MarkFlagRequired("csv")

	return cmd
}
