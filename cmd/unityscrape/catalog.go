package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/unityscrape/internal/app"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Work with catalog files",
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "List the anime in a catalog file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			anime, err := a.Catalog(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, an := range anime {
				fmt.Fprintf(w, "%s\t%s\t%s\n", an, an.LinkType, an.Link)
			}
			return nil
		})
	},
}

func init() {
	catalogCmd.AddCommand(catalogShowCmd)
	rootCmd.AddCommand(catalogCmd)
}
