package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/mfourny/offload/pkg/transfer"
)

// JSONFormatter formats output as JSON for automation and scripting
type JSONFormatter struct {
	writer     io.Writer
	totalFiles int
	totalBytes int64
	startTime  time.Time
}

// JSONReportData represents the final report data
type JSONReportData struct {
	JobID      string          `json:"job_id"`
	Status     string          `json:"status"`
	Partial    bool            `json:"partial"`
	Duration   string          `json:"duration"`
	DurationMs int64           `json:"duration_ms"`
	Files      JSONFilesData   `json:"files"`
	Transfer   JSONTransferData `json:"transfer"`
	Failures   []JSONErrorData `json:"failures,omitempty"`
	Skipped    []string        `json:"skipped,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// JSONFilesData represents file counts
type JSONFilesData struct {
	Transferred      int `json:"transferred"`
	CopiesCompleted  int `json:"copies_completed"`
	CopiesFailed     int `json:"copies_failed"`
	CopiesSkipped    int `json:"copies_skipped"`
}

// JSONTransferData represents transfer statistics
type JSONTransferData struct {
	BytesTransferred int64  `json:"bytes_transferred"`
	AverageSpeed     int64  `json:"average_speed_bytes_per_sec,omitempty"`
	AverageSpeedStr  string `json:"average_speed,omitempty"`
}

// JSONErrorData represents one failed copy
type JSONErrorData struct {
	Path        string `json:"path"`
	Destination string `json:"destination"`
	Error       string `json:"error"`
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Start initializes the formatter
func (f *JSONFormatter) Start(writer io.Writer, totalFiles int, totalBytes int64) error {
	if writer == nil {
		writer = os.Stdout
	}
	f.writer = writer
	f.totalFiles = totalFiles
	f.totalBytes = totalBytes
	f.startTime = time.Now()
	return nil
}

// Progress is a no-op; JSON output stays a single parseable document
func (f *JSONFormatter) Progress(bytesTransferred, totalBytes int64, currentFile string) error {
	return nil
}

// Complete finalizes output and displays the summary as JSON
func (f *JSONFormatter) Complete(res *transfer.Result) error {
	if f.writer == nil {
		f.writer = io.Discard
	}

	var avgSpeed int64
	var avgSpeedStr string
	if res.Duration.Seconds() > 0 {
		avgSpeed = int64(float64(res.BytesTransferred) / res.Duration.Seconds())
		avgSpeedStr = formatBytes(avgSpeed) + "/s"
	}

	var failures []JSONErrorData
	for _, fr := range res.Failed {
		failures = append(failures, JSONErrorData{
			Path:        fr.Item.RelativePath,
			Destination: fr.Destination,
			Error:       fr.Err.Error(),
		})
	}

	reportData := JSONReportData{
		JobID:      res.Job.ID,
		Status:     string(res.Job.Status),
		Partial:    res.Partial(),
		Duration:   res.Duration.Round(time.Millisecond).String(),
		DurationMs: res.Duration.Milliseconds(),
		Files: JSONFilesData{
			Transferred:     res.FilesTransferred,
			CopiesCompleted: len(res.Completed),
			CopiesFailed:    len(res.Failed),
			CopiesSkipped:   len(res.Skipped),
		},
		Transfer: JSONTransferData{
			BytesTransferred: res.BytesTransferred,
			AverageSpeed:     avgSpeed,
			AverageSpeedStr:  avgSpeedStr,
		},
		Failures: failures,
		Skipped:  res.Skipped,
		Reason:   res.Job.FailureReason,
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(reportData)
}

// Error reports an error as a JSON document
func (f *JSONFormatter) Error(err error) error {
	if f.writer == nil {
		f.writer = os.Stderr
	}
	return json.NewEncoder(f.writer).Encode(map[string]string{
		"error": err.Error(),
	})
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}
