package output

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/mfourny/offload/pkg/transfer"
)

// barTemplate shows the file currently moving alongside the byte bar
const barTemplate = `{{string . "file" | printf "%-24s"}} {{bar . "[" "=" ">" " " "]"}} {{percent . }} {{counters . }} {{speed . }} {{rtime . "ETA %s"}}`

// ProgressFormatter renders a live progress bar during the transfer
type ProgressFormatter struct {
	mu     sync.Mutex
	writer io.Writer
	bar    *pb.ProgressBar
}

// NewProgressFormatter creates a new progress bar formatter
func NewProgressFormatter() *ProgressFormatter {
	return &ProgressFormatter{}
}

// Start initializes the bar over the job's total byte count
func (f *ProgressFormatter) Start(writer io.Writer, totalFiles int, totalBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if writer == nil {
		writer = os.Stdout
	}
	f.writer = writer

	f.bar = pb.New64(totalBytes).SetTemplateString(barTemplate)
	f.bar.Set(pb.Bytes, true)
	f.bar.Set("file", "")
	f.bar.SetWriter(writer)
	f.bar.Start()
	return nil
}

// Progress advances the bar to the aggregate transferred byte count
func (f *ProgressFormatter) Progress(bytesTransferred, totalBytes int64, currentFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.bar == nil {
		return nil
	}
	f.bar.SetCurrent(bytesTransferred)
	if currentFile != "" {
		f.bar.Set("file", filepath.Base(currentFile))
	}
	return nil
}

// Complete stops the bar and prints the run summary
func (f *ProgressFormatter) Complete(res *transfer.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.bar != nil {
		f.bar.SetCurrent(res.Job.BytesTransferred)
		f.bar.Finish()
		f.bar = nil
	}
	if f.writer == nil {
		f.writer = io.Discard
	}
	writeSummary(f.writer, res)
	return nil
}

// Error stops the bar before reporting so the message lands on its own line
func (f *ProgressFormatter) Error(err error) error {
	f.mu.Lock()
	if f.bar != nil {
		f.bar.Finish()
		f.bar = nil
	}
	w := f.writer
	f.mu.Unlock()

	if w != nil {
		io.WriteString(w, "Error: "+err.Error()+"\n")
	}
	return nil
}

// Name returns the formatter name
func (f *ProgressFormatter) Name() string {
	return "progress"
}
