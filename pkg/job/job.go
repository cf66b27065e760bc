package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the externally observable state of a transfer job
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusPreparing  Status = "preparing"
	StatusCopying    Status = "copying"
	StatusVerifying  Status = "verifying"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are permitted
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitions is the allowed state graph. Failed is additionally
// reachable from every non-terminal state via Fail.
var transitions = map[Status][]Status{
	StatusNotStarted: {StatusPreparing},
	StatusPreparing:  {StatusCopying, StatusPaused},
	StatusCopying:    {StatusVerifying, StatusPaused},
	StatusVerifying:  {StatusCompleted, StatusPaused},
	StatusPaused:     {StatusCopying},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// Job is the status/progress record for one source→destination pairing.
// It is mutated exclusively by the orchestrator's owner goroutine;
// observers read through Snapshot.
type Job struct {
	mu sync.Mutex

	id          string
	source      string
	destination string

	status        Status
	failureReason string
	partial       bool

	bytesTransferred int64
	totalBytes       int64
	filesCompleted   int
	totalFiles       int

	rate rateWindow
}

// New creates a job in the NotStarted state
func New(source, destination string) *Job {
	return &Job{
		id:          uuid.New().String(),
		source:      source,
		destination: destination,
		status:      StatusNotStarted,
	}
}

// ID returns the job's opaque identity
func (j *Job) ID() string {
	return j.id
}

// Transition moves the job to a new status. Terminal states are frozen;
// resuming from Paused resets the rate-sampling window so the rate is
// never computed across the paused interval.
func (j *Job) Transition(to Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.Terminal() {
		return fmt.Errorf("job %s is %s; no further transitions permitted", j.id, j.status)
	}

	for _, allowed := range transitions[j.status] {
		if allowed == to {
			if j.status == StatusPaused && to == StatusCopying {
				j.rate.reset()
			}
			j.status = to
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s for job %s", j.status, to, j.id)
}

// Fail moves the job to Failed from any non-terminal state
func (j *Job) Fail(reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.Terminal() {
		return fmt.Errorf("job %s is %s; no further transitions permitted", j.id, j.status)
	}
	j.status = StatusFailed
	j.failureReason = reason
	return nil
}

// SetTotals records the scanned file count and byte total
func (j *Job) SetTotals(files int, bytes int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.totalFiles = files
	j.totalBytes = bytes
}

// AddBytes advances the transferred byte counter. Counters only ever
// advance; rate sampling is suspended while paused.
func (j *Job) AddBytes(n int64) {
	if n <= 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	j.bytesTransferred += n
	if j.status != StatusPaused {
		j.rate.observe(j.bytesTransferred, time.Now())
	}
}

// FileCompleted advances the completed-file counter
func (j *Job) FileCompleted() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.filesCompleted++
}

// MarkPartial annotates a completed job that carried per-file failures
func (j *Job) MarkPartial() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.partial = true
}

// Snapshot is an immutable view of a job for observers
type Snapshot struct {
	ID            string
	Source        string
	Destination   string
	Status        Status
	FailureReason string
	Partial       bool

	BytesTransferred int64
	TotalBytes       int64
	FilesCompleted   int
	TotalFiles       int

	// Rate is bytes per second over the trailing sample window
	Rate int64
	// ETA is the estimated time remaining at the current rate,
	// 0 when no rate is available
	ETA time.Duration
}

// Snapshot returns a read-only copy of the job's current state
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := Snapshot{
		ID:               j.id,
		Source:           j.source,
		Destination:      j.destination,
		Status:           j.status,
		FailureReason:    j.failureReason,
		Partial:          j.partial,
		BytesTransferred: j.bytesTransferred,
		TotalBytes:       j.totalBytes,
		FilesCompleted:   j.filesCompleted,
		TotalFiles:       j.totalFiles,
	}

	if j.status != StatusPaused {
		snap.Rate = j.rate.rate()
	}
	if snap.Rate > 0 && snap.TotalBytes > snap.BytesTransferred {
		remaining := snap.TotalBytes - snap.BytesTransferred
		snap.ETA = time.Duration(remaining/snap.Rate) * time.Second
	}
	return snap
}
