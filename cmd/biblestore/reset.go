package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/biblestore/internal/app"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the database to the bundled dataset",
	Long: `Reset deletes the working database, reinstalls the bundled dataset and
replays later migrations. All user content is lost.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("reset discards all user content, pass --yes to confirm")
		}

		return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
			if err := a.Reset(ctx); err != nil {
				return err
			}

			fmt.Printf("Database reset: %s\n", a.DB().Path())
			return nil
		})
	},
}

func init() {
	resetCmd.Flags().Bool("yes", false, "confirm the reset")
	rootCmd.AddCommand(resetCmd)
}
