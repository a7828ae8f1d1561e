package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/biblestore/internal/app"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or upgrade the database",
	Long: `Init runs the startup sequence: it installs the bundled dataset when the
working database is missing or older than the bundle, then applies pending
schema migrations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
			if err := a.DB().Ping(ctx); err != nil {
				return fmt.Errorf("database not ready: %w", err)
			}

			count, err := a.Repos.Verses.Count(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Database: %s\n", a.DB().Path())
			fmt.Printf("Verses: %d\n", count)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
