// Command sg plans and applies set-based temporal merges over relations
// carrying [valid_from, valid_until) validity intervals.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/saga/internal/config"
)

var (
	rootCmd = &cobra.Command{
		Use:   "sg",
		Short: "Temporal merge planner",
		Long: `sg computes and applies temporal merge plans.

Given a target history relation and a source batch, sg derives the minimal
ordered set of INSERT/UPDATE/DELETE operations that folds the batch into the
target history while keeping every entity's timeline free of overlaps.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cfg        config.Config
	cfgPath    string
	jsonOutput bool
	debugMode  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default .saga.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "diagnostic output on stderr")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if !cmd.Flags().Changed("json") {
			jsonOutput = cfg.JSON
		}
		if !cmd.Flags().Changed("debug") {
			debugMode = cfg.Debug
		}
		return nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
