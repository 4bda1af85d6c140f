// Package main is the entry point for the sessionlog CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sessionlog",
		Short:         "Durable conversation history with context recovery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("root", "", "Session store root (overrides config)")
	root.AddCommand(
		versionCmd(),
		serveCmd(),
		listCmd(),
		showCmd(),
		resumeCmd(),
		deleteCmd(),
		indexCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("sessionlog %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
