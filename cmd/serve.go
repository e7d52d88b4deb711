package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd runs the status API server.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API",
		Long: `Starts the HTTP status API exposing health, metrics, the last run
report, the open review queue, and the canonical dataset.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Serve(cmd.Context()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
}
