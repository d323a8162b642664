package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"rwa-price-aggregator/internal/app"
)

var (
	showToken        string
	showIncludeStale bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the aggregated per-venue view for a token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showToken == "" {
			return errors.New("--token must be provided")
		}

		opts := app.ShowOptions{
			Symbol:       showToken,
			IncludeStale: showIncludeStale,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showToken, "token", "", "Token symbol, e.g. USDY")
	showCmd.Flags().BoolVar(&showIncludeStale, "include-stale", true, "Include venues older than the staleness window")
}
