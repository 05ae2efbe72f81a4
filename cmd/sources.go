package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"bigscreen/internal/clix"
)

var (
	sourcesOutput  string
	sourcesRefresh bool
)

// sourcesCmd lists the data sources the backend can analyse
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List analysable data sources and their categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := clix.ParseOutput(cmd.Flags())
		if err != nil {
			return err
		}

		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if sourcesRefresh {
			appInstance.CatalogService.Invalidate()
		}

		cat, err := appInstance.CatalogService.Catalog(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sources: %w", err)
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cat)
		}
		if len(cat.Sources) == 0 {
			fmt.Fprintln(out, "No sources found.")
			return nil
		}
		clix.RenderCatalog(out, cat)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)

	sourcesCmd.Flags().StringVarP(&sourcesOutput, "output", "o", "table", "Output format (table, json)")
	sourcesCmd.Flags().BoolVar(&sourcesRefresh, "refresh", false, "Bypass the catalog cache")
}
