package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the origin tables",
	Long: `Create origins and origin_arrivals with their constraints. With --inputs
the stations and phase_picks tables are created too, for local setups where
no upstream picker owns them.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("inputs", false, "also create stations and phase_picks")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	inputs, _ := cmd.Flags().GetBool("inputs")

	cfg, b, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if inputs {
		if err := b.MigrateInputs(ctx); err != nil {
			return err
		}
	}
	if err := b.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date\n", cfg.StoreDriver)
	return nil
}
