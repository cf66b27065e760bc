package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mfourny/offload/pkg/access"
	"github.com/mfourny/offload/pkg/copier"
	"github.com/mfourny/offload/pkg/job"
	"github.com/mfourny/offload/pkg/logging"
	"github.com/mfourny/offload/pkg/scan"
)

// CascadeMode selects the multi-destination fan-out policy
type CascadeMode string

const (
	// CascadeDisabled copies every file to every destination
	// independently from the source
	CascadeDisabled CascadeMode = "disabled"

	// CascadePrimaryThenFanout copies each file once to the primary
	// destination and populates the remaining destinations from that
	// verified copy, sparing the slower removable source repeated reads
	CascadePrimaryThenFanout CascadeMode = "primary"
)

// DefaultMaxConcurrent bounds in-flight copies so the source device's
// I/O queue is not saturated
const DefaultMaxConcurrent = 3

// FileCopier is the orchestrator's view of the copy engine
type FileCopier interface {
	Copy(ctx context.Context, item scan.FileItem, destPath string, onProgress copier.ProgressFunc) error
	Verify(sourcePath, destPath string) error
}

// ProgressFunc pushes aggregate job progress to the caller
type ProgressFunc func(bytesTransferred, totalBytes int64, currentFile string)

// Options configures an Orchestrator
type Options struct {
	// MaxConcurrent is the in-flight copy bound; zero means the default
	MaxConcurrent int

	// Cascade selects the fan-out policy; with fewer than two
	// destinations PrimaryThenFanout silently degrades to Disabled
	Cascade CascadeMode

	// OnProgress, if set, receives aggregate progress updates
	OnProgress ProgressFunc

	// OnComplete, if set, receives the final result
	OnComplete func(*Result)
}

// Orchestrator dispatches scanned files to the copy engine in bounded
// batches and aggregates per-file outcomes. Job state is mutated by a
// single collector goroutine; workers emit events and never touch the
// job directly.
type Orchestrator struct {
	copier FileCopier
	access *access.Manager
	logger logging.Logger
	opts   Options

	mu       sync.Mutex
	current  *job.Job
	resumeCh chan struct{}
}

// New creates an Orchestrator
func New(fc FileCopier, mgr *access.Manager, opts Options, logger logging.Logger) *Orchestrator {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Cascade == "" {
		opts.Cascade = CascadeDisabled
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Orchestrator{copier: fc, access: mgr, opts: opts, logger: logger}
}

// event is the worker→collector message; the collector is the only
// goroutine that mutates the job and the result
type event struct {
	deltaBytes int64
	name       string
	result     *FileResult
	skipped    []string
}

// Run executes one job: all files to all destinations under the
// concurrency bound. Per-file failures are recorded, never thrown; the
// returned error is non-nil only for job-wide failure (no destination
// usable, cancellation, or zero files transferred).
func (o *Orchestrator) Run(ctx context.Context, files []scan.FileItem, destinations []string) (*Result, error) {
	if len(destinations) == 0 {
		return nil, fmt.Errorf("at least one destination is required")
	}

	start := time.Now()
	j := job.New(sourceRootOf(files), destinations[0])
	o.setCurrent(j)
	defer o.setCurrent(nil)

	res := &Result{}
	fail := func(reason string, err error) (*Result, error) {
		o.detach()
		j.Fail(reason)
		res.Job = j.Snapshot()
		res.Duration = time.Since(start)
		if o.opts.OnComplete != nil {
			o.opts.OnComplete(res)
		}
		return res, err
	}

	if err := j.Transition(job.StatusPreparing); err != nil {
		return nil, err
	}

	for _, dest := range destinations {
		if err := os.MkdirAll(dest, 0755); err != nil {
			return fail(fmt.Sprintf("destination unusable: %s", dest),
				fmt.Errorf("destination %s: %w", dest, err))
		}
		if o.access != nil {
			if _, err := o.access.Acquire(dest); err != nil {
				return fail(fmt.Sprintf("destination access denied: %s", dest), err)
			}
		}
	}

	destCount := int64(len(destinations))
	var totalBytes int64
	for _, f := range files {
		totalBytes += f.Size
	}
	j.SetTotals(len(files)*len(destinations), totalBytes*destCount)

	if err := j.Transition(job.StatusCopying); err != nil {
		return nil, err
	}

	o.logger.Info(ctx, "job started", logging.Fields{
		"job_id":         j.ID(),
		"files":          len(files),
		"destinations":   len(destinations),
		"cascade":        string(o.effectiveMode(len(destinations))),
		"max_concurrent": o.opts.MaxConcurrent,
	})

	events := make(chan event, 64)
	collectorDone := make(chan struct{})
	go o.collect(j, res, events, collectorDone)

	sem := make(chan struct{}, o.opts.MaxConcurrent)
	var wg sync.WaitGroup

	if o.effectiveMode(len(destinations)) == CascadePrimaryThenFanout {
		o.runCascade(ctx, files, destinations, sem, &wg, events)
	} else {
		o.runIndependent(ctx, files, destinations, sem, &wg, events)
	}

	wg.Wait()
	close(events)
	<-collectorDone

	transferred := make(map[string]bool)
	for _, fr := range res.Completed {
		transferred[fr.Item.SourcePath] = true
	}
	res.FilesTransferred = len(transferred)
	res.Duration = time.Since(start)

	if ctx.Err() != nil {
		return fail("cancelled", ctx.Err())
	}
	if len(files) > 0 && res.FilesTransferred == 0 {
		reason := aggregateFailures(res.Failed)
		return fail(reason, errors.New(reason))
	}

	// Dispatch has drained; detach the job so a late Pause cannot land
	// between here and the closing transitions. A job left paused with
	// no work remaining resumes implicitly.
	o.detach()

	if j.Snapshot().Status == job.StatusPaused {
		if err := j.Transition(job.StatusCopying); err != nil {
			return fail(err.Error(), err)
		}
	}
	if err := j.Transition(job.StatusVerifying); err != nil {
		return fail(err.Error(), err)
	}
	if res.Partial() {
		j.MarkPartial()
	}
	if err := j.Transition(job.StatusCompleted); err != nil {
		return fail(err.Error(), err)
	}
	res.Job = j.Snapshot()

	o.logger.Info(ctx, "job finished", logging.Fields{
		"job_id":      j.ID(),
		"transferred": res.FilesTransferred,
		"failed":      len(res.Failed),
		"skipped":     len(res.Skipped),
		"bytes":       res.BytesTransferred,
		"partial":     res.Partial(),
	})

	if o.opts.OnComplete != nil {
		o.opts.OnComplete(res)
	}
	return res, nil
}

// collect is the single owner of job and result mutation
func (o *Orchestrator) collect(j *job.Job, res *Result, events <-chan event, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		if ev.deltaBytes > 0 {
			j.AddBytes(ev.deltaBytes)
		}
		if ev.result != nil {
			if ev.result.Err == nil {
				j.FileCompleted()
				res.Completed = append(res.Completed, *ev.result)
				res.BytesTransferred += ev.result.Item.Size
			} else {
				res.Failed = append(res.Failed, *ev.result)
			}
		}
		res.Skipped = append(res.Skipped, ev.skipped...)

		if o.opts.OnProgress != nil && ev.name != "" {
			snap := j.Snapshot()
			o.opts.OnProgress(snap.BytesTransferred, snap.TotalBytes, ev.name)
		}
	}
}

// runIndependent copies every file to every destination from the source
func (o *Orchestrator) runIndependent(ctx context.Context, files []scan.FileItem, destinations []string, sem chan struct{}, wg *sync.WaitGroup, events chan<- event) {
	for _, f := range files {
		for _, dest := range destinations {
			if err := o.admit(ctx, sem); err != nil {
				events <- event{skipped: []string{filepath.Join(dest, f.RelativePath)}}
				continue
			}
			wg.Add(1)
			go func(f scan.FileItem, dest string) {
				defer wg.Done()
				defer o.releaseSlot(sem)
				o.copyOne(ctx, f, f, dest, events, false)
			}(f, dest)
		}
	}
}

// runCascade copies each file to the primary destination first and fans
// out to the remaining destinations from that verified copy. A failed
// primary suppresses the secondaries for that file.
func (o *Orchestrator) runCascade(ctx context.Context, files []scan.FileItem, destinations []string, sem chan struct{}, wg *sync.WaitGroup, events chan<- event) {
	primary := destinations[0]
	secondaries := destinations[1:]

	for _, f := range files {
		if err := o.admit(ctx, sem); err != nil {
			skipped := make([]string, 0, len(destinations))
			for _, d := range destinations {
				skipped = append(skipped, filepath.Join(d, f.RelativePath))
			}
			events <- event{skipped: skipped}
			continue
		}

		wg.Add(1)
		go func(f scan.FileItem) {
			defer wg.Done()

			primaryPath := filepath.Join(primary, f.RelativePath)
			err := o.copyOne(ctx, f, f, primary, events, true)
			o.releaseSlot(sem)
			if err != nil {
				skipped := make([]string, 0, len(secondaries))
				for _, s := range secondaries {
					skipped = append(skipped, filepath.Join(s, f.RelativePath))
				}
				events <- event{skipped: skipped}
				return
			}

			// Secondaries read from the already-verified primary copy,
			// not from the original source.
			readItem := scan.FileItem{
				SourcePath:   primaryPath,
				RelativePath: f.RelativePath,
				Size:         f.Size,
			}

			var fanWg sync.WaitGroup
			for _, s := range secondaries {
				if err := o.admit(ctx, sem); err != nil {
					events <- event{skipped: []string{filepath.Join(s, f.RelativePath)}}
					continue
				}
				fanWg.Add(1)
				go func(s string) {
					defer fanWg.Done()
					defer o.releaseSlot(sem)
					o.copyOne(ctx, readItem, f, s, events, false)
				}(s)
			}
			fanWg.Wait()
		}(f)
	}
}

// copyOne performs one file→destination copy and reports the outcome.
// readItem is the path actually read (the primary copy during fan-out);
// recordItem identifies the original file in the result.
func (o *Orchestrator) copyOne(ctx context.Context, readItem, recordItem scan.FileItem, destRoot string, events chan<- event, verifyAfter bool) error {
	start := time.Now()
	destPath := filepath.Join(destRoot, recordItem.RelativePath)

	var last int64
	err := o.copier.Copy(ctx, readItem, destPath, func(done, total int64, name string) {
		events <- event{deltaBytes: done - last, name: name}
		last = done
	})
	if err == nil && verifyAfter {
		if err = o.copier.Verify(readItem.SourcePath, destPath); err != nil {
			os.Remove(destPath)
		}
	}

	events <- event{result: &FileResult{
		Item:        recordItem,
		Destination: destRoot,
		Err:         err,
		Duration:    time.Since(start),
	}}
	return err
}

// admit waits for a free concurrency slot. The wait re-checks both the
// pause gate and cancellation; it never blocks through a cancelled
// context.
func (o *Orchestrator) admit(ctx context.Context, sem chan struct{}) error {
	for {
		if err := o.waitIfPaused(ctx); err != nil {
			return err
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		// A pause may have landed while this dispatch was queued on
		// the slot; give it back and wait.
		if o.paused() {
			<-sem
			continue
		}
		return nil
	}
}

func (o *Orchestrator) paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resumeCh != nil
}

func (o *Orchestrator) releaseSlot(sem chan struct{}) {
	<-sem
}

// Pause halts further dispatch and moves the running job to Paused.
// In-flight copies complete their current file.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return fmt.Errorf("no job is running")
	}
	if err := o.current.Transition(job.StatusPaused); err != nil {
		return err
	}
	o.resumeCh = make(chan struct{})
	return nil
}

// Resume reopens dispatch and moves the job back to Copying
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return fmt.Errorf("no job is running")
	}
	if err := o.current.Transition(job.StatusCopying); err != nil {
		return err
	}
	if o.resumeCh != nil {
		close(o.resumeCh)
		o.resumeCh = nil
	}
	return nil
}

func (o *Orchestrator) waitIfPaused(ctx context.Context) error {
	o.mu.Lock()
	ch := o.resumeCh
	o.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns a snapshot of the running job, if any
func (o *Orchestrator) Current() (job.Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return job.Snapshot{}, false
	}
	return o.current.Snapshot(), true
}

// detach closes out the pause gate and disowns the running job so
// Pause and Resume refuse once the run is wrapping up
func (o *Orchestrator) detach() {
	o.mu.Lock()
	if o.resumeCh != nil {
		close(o.resumeCh)
		o.resumeCh = nil
	}
	o.current = nil
	o.mu.Unlock()
}

func (o *Orchestrator) setCurrent(j *job.Job) {
	o.mu.Lock()
	o.current = j
	o.mu.Unlock()
}

func (o *Orchestrator) effectiveMode(destCount int) CascadeMode {
	if o.opts.Cascade == CascadePrimaryThenFanout && destCount >= 2 {
		return CascadePrimaryThenFanout
	}
	return CascadeDisabled
}

// sourceRootOf derives the job's source label from the first work item
func sourceRootOf(files []scan.FileItem) string {
	if len(files) == 0 {
		return ""
	}
	f := files[0]
	root := strings.TrimSuffix(f.SourcePath, f.RelativePath)
	if root == "" {
		return f.SourcePath
	}
	return filepath.Clean(root)
}
