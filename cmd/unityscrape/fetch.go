package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/unityscrape/internal/app"
	"github.com/varoOP/unityscrape/internal/mapper"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <episode-url>",
	Short: "Render an episode page and extract its record",
	Long: `Fetch starts (or reuses) a Chrome driver, renders the episode page at
episode-url and extracts the anime record from it. The record is printed as
JSON keyed by the anime name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			anime, err := a.Fetch(cmd.Context(), args[0], targetFromFlags(cmd))
			if err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}

			out, err := mapper.ToPersistableJSON(*anime)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		})
	},
}

func init() {
	addTargetFlags(fetchCmd)
	rootCmd.AddCommand(fetchCmd)
}
