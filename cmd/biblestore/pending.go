package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/biblestore/internal/app"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Export rows awaiting sync",
	Long: `Pending writes every syncable row flagged needs_sync, soft-deleted rows
included, to a JSON file. The flags are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
			n, err := a.ExportPending(ctx, out)
			if err != nil {
				return err
			}

			fmt.Printf("Exported %d rows to %s\n", n, out)
			return nil
		})
	},
}

func init() {
	pendingCmd.Flags().String("out", "pending.json", "output file")
	rootCmd.AddCommand(pendingCmd)
}
