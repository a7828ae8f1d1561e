package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/varoOP/biblestore/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the database open and run scheduled maintenance",
	Long: `Serve starts the database and runs integrity checks, AI cache expiry and
query planner optimization on the configured cron schedules until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}

		return application.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
