package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/biblestore/internal/app"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check database integrity",
	Long: `Verify runs SQLite's integrity check, confirms the verses table is
populated and checks every full-text index against its content table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
			report := a.Verify(ctx)
			if report.OK() {
				fmt.Printf("OK: %d verses\n", report.VerseCount)
				return nil
			}

			for _, p := range report.Problems {
				fmt.Printf("problem: %s\n", p)
			}
			return fmt.Errorf("integrity check failed with %d problems", len(report.Problems))
		})
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
