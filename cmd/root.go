package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"WaveFM/server"
)

var rootCmd = &cobra.Command{
	Use:   "wavefm",
	Short: "WaveFM is a community radio station service.",
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
