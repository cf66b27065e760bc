package output

import (
	"io"

	"github.com/mfourny/offload/pkg/transfer"
)

// Formatter defines the interface for output formatting
// Implementations include human-readable, JSON and progress-bar formatters
type Formatter interface {
	// Start initializes the formatter for a new transfer
	Start(writer io.Writer, totalFiles int, totalBytes int64) error

	// Progress reports aggregate transfer progress
	Progress(bytesTransferred, totalBytes int64, currentFile string) error

	// Complete finalizes output and displays the run summary
	Complete(res *transfer.Result) error

	// Error reports a job-level error
	Error(err error) error

	// Name returns the formatter name
	Name() string
}

// New selects a formatter by configured format. A human format with
// progress enabled gets the live progress bar variant.
func New(format string, progress bool) Formatter {
	switch {
	case format == "json":
		return NewJSONFormatter()
	case progress:
		return NewProgressFormatter()
	default:
		return NewHumanFormatter()
	}
}
