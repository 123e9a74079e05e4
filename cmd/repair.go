package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRepairCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Re-derive creator stage flags from the stored media",
		Long: `Clears the media_listed and details_enriched flags of every creator of the
source, then sets them again from what is actually stored: listed when the
creator has media, enriched when none of it is incomplete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			orch := appInstance.Orchestrator()
			if !hasSource(orch.Sources(), source) {
				return fmt.Errorf("unknown source %q", source)
			}
			repair, err := orch.Tracker().RepairFlags(cmd.Context(), source)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: reset=%d media_listed=%d details_enriched=%d\n",
				source, repair.Reset, repair.MediaListed, repair.DetailsEnriched)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "configured source id")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func hasSource(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}
