package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/varoOP/biblestore/internal/app"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over verses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		translation, _ := cmd.Flags().GetString("translation")
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
			hits, err := a.Repos.Verses.Search(ctx, translation, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}

			for _, h := range hits {
				fmt.Printf("%s %d %d:%d  %s\n", h.TranslationID, h.BookID, h.Chapter, h.Verse.Verse, h.Snippet)
			}
			if len(hits) == 0 {
				fmt.Println("No matches")
			}
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().String("translation", "", "limit results to one translation")
	searchCmd.Flags().Int("limit", 20, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}
