package output

import (
	"fmt"
	"io"
	"time"

	"github.com/mfourny/offload/pkg/transfer"
)

// HumanFormatter formats output in human-readable format
type HumanFormatter struct {
	writer     io.Writer
	totalFiles int
	totalBytes int64
	startTime  time.Time
}

// NewHumanFormatter creates a new human-readable formatter
func NewHumanFormatter() *HumanFormatter {
	return &HumanFormatter{}
}

// Start initializes the formatter
func (f *HumanFormatter) Start(writer io.Writer, totalFiles int, totalBytes int64) error {
	f.writer = writer
	f.totalFiles = totalFiles
	f.totalBytes = totalBytes
	f.startTime = time.Now()

	if writer != nil {
		fmt.Fprintf(writer, "Offloading %d files, %s total\n",
			totalFiles, formatBytes(totalBytes))
	}

	return nil
}

// Progress is a no-op; the human formatter reports per-run, not live
func (f *HumanFormatter) Progress(bytesTransferred, totalBytes int64, currentFile string) error {
	return nil
}

// Complete finalizes output and displays summary
func (f *HumanFormatter) Complete(res *transfer.Result) error {
	if f.writer == nil {
		f.writer = io.Discard
	}
	writeSummary(f.writer, res)
	return nil
}

// Error reports an error
func (f *HumanFormatter) Error(err error) error {
	if f.writer != nil {
		fmt.Fprintf(f.writer, "Error: %v\n", err)
	}
	return nil
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}

// writeSummary renders the run summary shared by the human and progress
// formatters
func writeSummary(w io.Writer, res *transfer.Result) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Transfer finished in %s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Files transferred:  %d\n", res.FilesTransferred)
	fmt.Fprintf(w, "  Copies completed:   %d\n", len(res.Completed))
	fmt.Fprintf(w, "  Copies failed:      %d\n", len(res.Failed))
	fmt.Fprintf(w, "  Copies skipped:     %d\n", len(res.Skipped))
	fmt.Fprintf(w, "  Data:               %s\n", formatBytes(res.BytesTransferred))

	if res.Duration.Seconds() > 0 {
		avgSpeed := float64(res.BytesTransferred) / res.Duration.Seconds()
		fmt.Fprintf(w, "  Average speed:      %s/s\n", formatBytes(int64(avgSpeed)))
	}

	fmt.Fprintf(w, "\n")
	status := string(res.Job.Status)
	if res.Partial() {
		status += " (partial)"
	}
	fmt.Fprintf(w, "Status: %s\n", status)
	if res.Job.FailureReason != "" {
		fmt.Fprintf(w, "Reason: %s\n", res.Job.FailureReason)
	}

	if len(res.Failed) > 0 {
		fmt.Fprintf(w, "\nFailures:\n")
		for _, fr := range res.Failed {
			fmt.Fprintf(w, "  %s -> %s: %v\n", fr.Item.RelativePath, fr.Destination, fr.Err)
		}
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "\nSkipped:\n")
		for _, path := range res.Skipped {
			fmt.Fprintf(w, "  %s\n", path)
		}
	}
}

// formatBytes formats bytes in human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
