package cli

import (
	"github.com/spf13/cobra"
)

var serveWithPoller bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context(), serveWithPoller)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithPoller, "with-poller", false, "Also run the polling and alert loops in this process")
}
