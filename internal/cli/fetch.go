package cli

import (
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run a single fetch-and-evaluate pass and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Fetch(cmd.Context())
	},
}
