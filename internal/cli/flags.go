package cli

import (
	"github.com/spf13/cobra"
)

// GlobalFlags holds flag values shared by every subcommand
type GlobalFlags struct {
	ConfigFile string
	Verbose    bool
	Quiet      bool
}

var globalFlags GlobalFlags

// AddGlobalFlags registers the persistent flags on the root command
func AddGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&globalFlags.ConfigFile, "config", "",
		"config file (default is $HOME/.config/offload/config.yaml)")
	flags.BoolVarP(&globalFlags.Verbose, "verbose", "v", false,
		"verbose output")
	flags.BoolVarP(&globalFlags.Quiet, "quiet", "q", false,
		"suppress non-error output")
}
