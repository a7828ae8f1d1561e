package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/biblestore/internal/app"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Build and check the bundled dataset",
}

var bundleBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a bundled dataset from a manifest",
	Long: `Build creates a fresh database with the bundled schema steps, imports
the translations and verse sources listed in the manifest, rebuilds the verse
search index and compacts the file for shipping.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, _ := cmd.Flags().GetString("manifest")
		out, _ := cmd.Flags().GetString("out")

		return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
			if err := a.BuildBundle(ctx, manifest, out); err != nil {
				return err
			}

			fmt.Printf("Bundle written: %s\n", out)
			return nil
		})
	},
}

var bundleVerifyCmd = &cobra.Command{
	Use:   "verify <bundle>",
	Short: "Check a bundle against the bundled migration list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
			if err := a.VerifyBundle(ctx, args[0]); err != nil {
				return err
			}

			fmt.Println("Bundle matches the bundled migration list")
			return nil
		})
	},
}

func init() {
	bundleBuildCmd.Flags().String("manifest", "manifest.yaml", "bundle manifest")
	bundleBuildCmd.Flags().String("out", "BibleData.sqlite", "output file")

	bundleCmd.AddCommand(bundleBuildCmd, bundleVerifyCmd)
	rootCmd.AddCommand(bundleCmd)
}
