package cmd

import (
	"fmt"
	"os"

	"Resona/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "resona",
	Short: "Resona is the HTTP control-plane for Discord music playback.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
