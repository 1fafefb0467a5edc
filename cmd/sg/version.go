package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sg version",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			printJSON(map[string]string{"version": Version})
			return
		}
		fmt.Printf("sg version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
