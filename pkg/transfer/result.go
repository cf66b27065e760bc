package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/mfourny/offload/pkg/job"
	"github.com/mfourny/offload/pkg/scan"
)

// maxAggregatedErrors bounds the failure detail carried by a job-level
// error so a large batch cannot produce an unbounded payload
const maxAggregatedErrors = 10

// FileResult records the outcome of one file→destination copy
type FileResult struct {
	Item        scan.FileItem
	Destination string
	Err         error
	Duration    time.Duration
}

// Result aggregates one job run. Per-file failures live here; they never
// propagate as job-level errors unless zero files transferred.
type Result struct {
	Job job.Snapshot

	// Completed and Failed hold per-(file, destination) outcomes
	Completed []FileResult
	Failed    []FileResult

	// Skipped holds destination paths never attempted: cascade
	// secondaries suppressed by a failed primary, and files left
	// undispatched after cancellation
	Skipped []string

	// FilesTransferred counts distinct files with at least one
	// successful destination copy
	FilesTransferred int

	BytesTransferred int64
	Duration         time.Duration
}

// Partial reports whether the run completed with some failures
func (r *Result) Partial() bool {
	return r.FilesTransferred > 0 && len(r.Failed) > 0
}

// aggregateFailures renders a bounded, human-readable cause list
func aggregateFailures(failed []FileResult) string {
	var b strings.Builder
	b.WriteString("no files transferred")
	for i, f := range failed {
		if i >= maxAggregatedErrors {
			fmt.Fprintf(&b, "; and %d more", len(failed)-maxAggregatedErrors)
			break
		}
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.Item.RelativePath)
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}
