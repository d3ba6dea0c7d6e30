package admin

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ReindexCmd returns the reindex command
func ReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Queue embedding jobs for every published article of an organization",
		Long: `Queue a fresh embedding job for every published article of an organization.

Use after changing the embedding model or chunking settings. The jobs are run by
any serve or worker process.`,
		RunE: runReindex,
	}

	cmd.Flags().String("org", "", "Organization ID (required)")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func runReindex(cmd *cobra.Command, args []string) error {
	orgID, _ := cmd.Flags().GetString("org")

	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	queued, err := a.ingestion.Reindex(cmd.Context(), orgID)
	if err != nil {
		return fmt.Errorf("failed to reindex organization: %w", err)
	}

	a.logger.Info("reindex queued", zap.String("org_id", orgID), zap.Int("jobs", len(queued)))
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %d embedding jobs for organization %s\n", len(queued), orgID)
	return nil
}
