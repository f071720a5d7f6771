package cmd

import (
	"Resona/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the control-plane HTTP server",
	Long:  `Start the HTTP server exposing the guild-scoped music control API and the live status push endpoints.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
