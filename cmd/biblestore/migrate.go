package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/biblestore/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Migrate opens the database, applying every registered migration that has
not been recorded yet. With --status it lists each migration and whether it
has been applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetBool("status")

		return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
			applied, pending, err := a.MigrationStatus(ctx)
			if err != nil {
				return err
			}

			if !status {
				fmt.Printf("Applied %d migrations, %d pending\n", len(applied), len(pending))
				return nil
			}

			for _, id := range applied {
				fmt.Printf("[x] %s\n", id)
			}
			for _, id := range pending {
				fmt.Printf("[ ] %s\n", id)
			}
			return nil
		})
	},
}

func init() {
	migrateCmd.Flags().Bool("status", false, "list applied and pending migrations")
	rootCmd.AddCommand(migrateCmd)
}
