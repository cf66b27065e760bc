package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfourny/offload/pkg/scan"
)

// ScanFlags holds scan command flags
type ScanFlags struct {
	Source     string
	Extensions []string
	Output     string
}

var scanFlags ScanFlags

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the files a transfer would include",
		Long: `Scan a source volume and list the media files an offload would
copy, without transferring anything.`,
		RunE: runScan,
	}

	cmd.Flags().StringVarP(&scanFlags.Source, "source", "s", "", "source directory path (required)")
	cmd.MarkFlagRequired("source")
	cmd.Flags().StringSliceVar(&scanFlags.Extensions, "ext", nil, "extension allow-list override (e.g. .mov,.braw)")
	cmd.Flags().StringVarP(&scanFlags.Output, "output", "o", "human", "output format: human, json")

	return cmd
}

// scanReport is the JSON shape of a scan listing
type scanReport struct {
	Files      []scanReportFile `json:"files"`
	TotalBytes int64            `json:"total_bytes"`
	Skipped    []string         `json:"skipped,omitempty"`
	Errors     []scanReportErr  `json:"errors,omitempty"`
}

type scanReportFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type scanReportErr struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	info, err := os.Stat(scanFlags.Source)
	if err != nil {
		return fmt.Errorf("source path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path is not a directory: %s", scanFlags.Source)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(scanFlags.Extensions) > 0 {
		cfg.Scan.Extensions = scanFlags.Extensions
	}

	logger, err := createLogger(offloadFlags.LogFile, offloadFlags.LogFormat, offloadFlags.LogLevel)
	if err != nil {
		return err
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

	outcome, err := scanner.Scan(ctx, scanFlags.Source)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanFlags.Output == "json" {
		report := scanReport{TotalBytes: outcome.TotalBytes(), Skipped: outcome.Skipped}
		for _, f := range outcome.Files {
			report.Files = append(report.Files, scanReportFile{Path: f.RelativePath, Size: f.Size})
		}
		for _, e := range outcome.Errors {
			report.Errors = append(report.Errors, scanReportErr{Path: e.Path, Error: e.Err.Error()})
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	for _, f := range outcome.Files {
		fmt.Printf("%12d  %s\n", f.Size, f.RelativePath)
	}
	fmt.Printf("\n%d files, %d bytes", len(outcome.Files), outcome.TotalBytes())
	if len(outcome.Skipped) > 0 {
		fmt.Printf(", %d skipped", len(outcome.Skipped))
	}
	fmt.Println()

	if len(outcome.Errors) > 0 {
		fmt.Println("\nUnreadable:")
		for _, e := range outcome.Errors {
			fmt.Printf("  %s: %v\n", e.Path, e.Err)
		}
	}

	return nil
}
