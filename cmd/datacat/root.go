package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// execute runs the CLI and returns the process exit code.
func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "datacat",
		Short:         "Versioned asset and provenance catalog",
		Long:          "datacat ingests SQL sources and survey exports into a versioned DuckDB lake with full provenance.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if envFile != "" {
				return loadEnvFile(envFile)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from file before running")

	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newPivotCmd())
	rootCmd.AddCommand(newAssetCmd())
	rootCmd.AddCommand(newVocabCmd())
	return rootCmd
}
