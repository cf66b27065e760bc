package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mfourny/offload/internal/platform"
	"github.com/mfourny/offload/pkg/access"
	"github.com/mfourny/offload/pkg/config"
	"github.com/mfourny/offload/pkg/logging"
)

// validateOffloadFlags validates the offload command flags
func validateOffloadFlags() error {
	if err := platform.ValidatePath(offloadFlags.Source); err != nil {
		return err
	}

	sourceInfo, err := os.Stat(offloadFlags.Source)
	if os.IsNotExist(err) {
		return fmt.Errorf("source path does not exist: %s", offloadFlags.Source)
	} else if err != nil {
		return fmt.Errorf("failed to access source path: %w", err)
	} else if !sourceInfo.IsDir() {
		return fmt.Errorf("source path is not a directory: %s", offloadFlags.Source)
	}

	sourceAbs, err := filepath.Abs(offloadFlags.Source)
	if err != nil {
		return fmt.Errorf("failed to resolve source path: %w", err)
	}

	seen := make(map[string]bool, len(offloadFlags.Dests))
	for _, dest := range offloadFlags.Dests {
		if err := platform.ValidatePath(dest); err != nil {
			return err
		}

		destAbs, err := filepath.Abs(dest)
		if err != nil {
			return fmt.Errorf("failed to resolve destination path: %w", err)
		}

		if destAbs == sourceAbs {
			return fmt.Errorf("source and destination cannot be the same: %s", sourceAbs)
		}
		if strings.HasPrefix(destAbs, sourceAbs+string(filepath.Separator)) {
			return fmt.Errorf("destination cannot be inside source directory: %s", dest)
		}
		if strings.HasPrefix(sourceAbs, destAbs+string(filepath.Separator)) {
			return fmt.Errorf("source cannot be inside destination directory: %s", dest)
		}

		if seen[destAbs] {
			return fmt.Errorf("duplicate destination: %s", dest)
		}
		seen[destAbs] = true
	}

	return nil
}

// loadConfig loads configuration from file or returns default
func loadConfig() (*config.Config, error) {
	if globalFlags.ConfigFile != "" {
		return config.LoadFromFile(globalFlags.ConfigFile)
	}
	return config.LoadDefault()
}

// applyFlagsToConfig overrides config values with command-line flags
func applyFlagsToConfig(cfg *config.Config, cmd *cobra.Command) {
	if offloadFlags.Checksum != "" {
		cfg.Transfer.Checksum = offloadFlags.Checksum
	}

	if cmd.Flags().Changed("cascade") {
		cfg.Transfer.Cascade = offloadFlags.Cascade
	}

	if offloadFlags.Parallel > 0 {
		cfg.Transfer.MaxConcurrent = offloadFlags.Parallel
	}

	if offloadFlags.ForceStreaming {
		cfg.Transfer.ForceStreaming = true
	}

	if len(offloadFlags.Extensions) > 0 {
		cfg.Scan.Extensions = offloadFlags.Extensions
	}

	if offloadFlags.Output != "" {
		cfg.Output.Format = offloadFlags.Output
	}

	// Disable progress in quiet mode
	if globalFlags.Quiet {
		cfg.Output.Progress = false
		cfg.Output.Quiet = true
	}
}

// openGrants opens the persistent capability store and wraps it in a
// manager
func openGrants(logger logging.Logger) (*access.Manager, *access.Store, error) {
	dbPath, err := platform.GrantsDBPath()
	if err != nil {
		return nil, nil, err
	}

	store, err := access.NewStore(dbPath, logger)
	if err != nil {
		return nil, nil, err
	}

	return access.NewManager(store, logger), store, nil
}
