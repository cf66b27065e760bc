package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfourny/offload/pkg/copier"
	"github.com/mfourny/offload/pkg/logging"
	"github.com/mfourny/offload/pkg/output"
	"github.com/mfourny/offload/pkg/scan"
	"github.com/mfourny/offload/pkg/transfer"
)

// OffloadFlags holds offload command flags
type OffloadFlags struct {
	Source         string
	Dests          []string
	Cascade        bool
	Checksum       string
	Parallel       int
	Extensions     []string
	ForceStreaming bool
	Output         string
	NoProgress     bool
	// Logging flags
	LogFile   string
	LogFormat string
	LogLevel  string
}

var offloadFlags OffloadFlags

// NewOffloadCommand creates the offload command
func NewOffloadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offload",
		Short: "Copy media from a source volume to one or more destinations",
		Long: `Scan a source volume for media files and copy them to one or more
destination directories with checksum verification. With --cascade the
secondary destinations are populated from the verified primary copy
instead of re-reading the source.`,
		RunE: runOffload,
	}

	// Required flags
	cmd.Flags().StringVarP(&offloadFlags.Source, "source", "s", "", "source directory path (required)")
	cmd.Flags().StringSliceVarP(&offloadFlags.Dests, "dest", "d", nil, "destination directory, repeatable (required)")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("dest")

	// Optional flags
	cmd.Flags().BoolVar(&offloadFlags.Cascade, "cascade", false, "fan out to secondary destinations from the verified primary copy")
	cmd.Flags().StringVar(&offloadFlags.Checksum, "checksum", "", "checksum algorithm: xxh64, md5, sha1, size")
	cmd.Flags().IntVarP(&offloadFlags.Parallel, "parallel", "p", 0, "number of concurrent copies (default: 3)")
	cmd.Flags().StringSliceVar(&offloadFlags.Extensions, "ext", nil, "extension allow-list override (e.g. .mov,.braw)")
	cmd.Flags().BoolVar(&offloadFlags.ForceStreaming, "force-streaming", false, "always use the streaming copy path")
	cmd.Flags().StringVarP(&offloadFlags.Output, "output", "o", "", "output format: human, json")
	cmd.Flags().BoolVar(&offloadFlags.NoProgress, "no-progress", false, "disable the live progress bar")

	// Logging flags
	cmd.Flags().StringVar(&offloadFlags.LogFile, "log-file", "", "write logs to file (enables logging)")
	cmd.Flags().StringVar(&offloadFlags.LogFormat, "log-format", "text", "log format: text, json")
	cmd.Flags().StringVar(&offloadFlags.LogLevel, "log-level", "info", "log level: debug, info, warn, error")

	return cmd
}

func runOffload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := validateOffloadFlags(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagsToConfig(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := createLogger(offloadFlags.LogFile, offloadFlags.LogFormat, offloadFlags.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	mgr, store, err := openGrants(logger)
	if err != nil {
		return fmt.Errorf("failed to open capability store: %w", err)
	}
	defer store.Close()

	scanner := scan.NewScanner(mgr, scan.Options{
		AllowExtensions: cfg.Scan.Extensions,
		DenyFilenames:   cfg.Scan.DenyFilenames,
	}, logger)

	outcome, err := scanner.Scan(ctx, offloadFlags.Source)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	var w io.Writer = os.Stdout
	if globalFlags.Quiet || cfg.Output.Quiet {
		w = io.Discard
	}

	if len(outcome.Files) == 0 {
		fmt.Fprintln(w, "No eligible files found")
		return nil
	}

	formatter := output.New(cfg.Output.Format, cfg.Output.Progress && !offloadFlags.NoProgress)
	destCount := int64(len(offloadFlags.Dests))
	formatter.Start(w, len(outcome.Files)*len(offloadFlags.Dests), outcome.TotalBytes()*destCount)

	engine := copier.New(mgr, copier.Options{
		Algorithm:      cfg.Algorithm(),
		BlockSize:      cfg.Transfer.BlockSize,
		ForceStreaming: cfg.Transfer.ForceStreaming,
	}, logger)

	cascade := transfer.CascadeDisabled
	if cfg.Transfer.Cascade {
		cascade = transfer.CascadePrimaryThenFanout
	}

	orch := transfer.New(engine, mgr, transfer.Options{
		MaxConcurrent: cfg.Transfer.MaxConcurrent,
		Cascade:       cascade,
		OnProgress: func(bytesTransferred, totalBytes int64, currentFile string) {
			formatter.Progress(bytesTransferred, totalBytes, currentFile)
		},
	}, logger)

	res, err := orch.Run(ctx, outcome.Files, offloadFlags.Dests)
	if err != nil {
		if res != nil {
			formatter.Complete(res)
		} else {
			formatter.Error(err)
		}
		os.Exit(1)
	}

	formatter.Complete(res)
	if res.Partial() {
		os.Exit(2)
	}
	return nil
}

// createLogger creates a logger based on configuration
func createLogger(logFile, logFormat, logLevel string) (logging.Logger, error) {
	// If no log file specified, return null logger
	if logFile == "" {
		return logging.NewNullLogger(), nil
	}

	var format logging.Format
	switch logFormat {
	case "json":
		format = logging.FormatJSON
	default:
		format = logging.FormatText
	}

	config := logging.FileLoggerConfig{
		Path:       logFile,
		Format:     format,
		Level:      logging.ParseLevel(logLevel),
		MaxSize:    10 * 1024 * 1024, // 10 MB
		MaxBackups: 5,
	}

	return logging.NewFileLogger(config)
}
