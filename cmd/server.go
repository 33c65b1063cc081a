package cmd

import (
	"github.com/spf13/cobra"

	"WaveFM/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the WaveFM HTTP server",
	Long:  `Runs the WaveFM HTTP server: owner API, listener projection, and the live audio relay.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
