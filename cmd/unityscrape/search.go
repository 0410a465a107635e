package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/varoOP/unityscrape/internal/app"
)

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the catalog over HTTP",
	Long: `Search replays the site's session (cookies and CSRF token) and queries
its search API for term. No browser is started.

With --out the results are projected into anime records and merged into a
catalog file; with --db they are stored in a sqlite database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		term := strings.Join(args, " ")

		return withApp(func(a *app.App) error {
			entries, err := a.Search(cmd.Context(), term, targetFromFlags(cmd))
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			w := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d eps\t%d\t%s\n", e.ID, e.Title, e.Type, e.EpisodesCount, e.Date, e.Slug)
			}
			return nil
		})
	},
}

func init() {
	addTargetFlags(searchCmd)
	rootCmd.AddCommand(searchCmd)
}
