package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/creator-ingest/internal/storage/postgres"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the Postgres DDL the store expects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), postgres.Schema)
			return err
		},
	}
	// Printing the schema needs neither config nor services.
	cmd.PersistentPreRunE = func(*cobra.Command, []string) error { return nil }
	cmd.PersistentPostRun = func(*cobra.Command, []string) {}
	return cmd
}
