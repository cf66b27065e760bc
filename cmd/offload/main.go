package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfourny/offload/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "offload",
		Short: "Verified media offload utility",
		Long: `offload copies media from camera cards and field drives to one or
more destinations with checksum verification. It scans the source for
eligible media, copies under a bounded concurrency level, and can fan
out to backup destinations from the verified primary copy.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	cli.AddGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(cli.NewOffloadCommand())
	rootCmd.AddCommand(cli.NewScanCommand())
	rootCmd.AddCommand(cli.NewGrantsCommand())
	rootCmd.AddCommand(cli.NewConfigCommand())
	rootCmd.AddCommand(cli.NewVersionCommand())

	return rootCmd.Execute()
}
