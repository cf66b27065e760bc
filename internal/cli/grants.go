package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewGrantsCommand creates the grants command
func NewGrantsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "Manage persisted volume access grants",
		Long: `Inspect or remove the access grants persisted for source and
destination volumes. Grants are re-validated against the volume on use,
so clearing them is always safe.`,
	}

	cmd.AddCommand(newGrantsListCommand())
	cmd.AddCommand(newGrantsForgetCommand())
	cmd.AddCommand(newGrantsClearCommand())

	return cmd
}

func newGrantsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := createLogger(offloadFlags.LogFile, offloadFlags.LogFormat, offloadFlags.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Close()

			_, store, err := openGrants(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			grants, err := store.List()
			if err != nil {
				return err
			}

			if len(grants) == 0 {
				fmt.Println("No grants persisted")
				return nil
			}

			for _, g := range grants {
				fmt.Printf("%s  (granted %s)\n", g.Path, g.IssuedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newGrantsForgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <path>",
		Short: "Remove the grant for one path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := createLogger(offloadFlags.LogFile, offloadFlags.LogFormat, offloadFlags.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Close()

			mgr, store, err := openGrants(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := mgr.Forget(args[0]); err != nil {
				return err
			}
			fmt.Printf("Grant removed: %s\n", args[0])
			return nil
		},
	}
}

func newGrantsClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all persisted grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := createLogger(offloadFlags.LogFile, offloadFlags.LogFormat, offloadFlags.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Close()

			_, store, err := openGrants(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Println("All grants removed")
			return nil
		},
	}
}
