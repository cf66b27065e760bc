package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfourny/offload/pkg/checksum"
	"github.com/mfourny/offload/pkg/copier"
	"github.com/mfourny/offload/pkg/job"
	"github.com/mfourny/offload/pkg/scan"
)

// stubCopier records every copy and verify in order and can be told to
// fail specific relative paths or block until cancellation
type stubCopier struct {
	mu  sync.Mutex
	ops []string

	inFlight    int32
	maxInFlight int32

	failRel   map[string]error
	verifyErr error
	delay     time.Duration
	block     chan struct{}

	// write materializes each successful copy at destPath so cleanup
	// behavior is observable on disk
	write bool
}

func (s *stubCopier) Copy(ctx context.Context, item scan.FileItem, destPath string, onProgress copier.ProgressFunc) error {
	cur := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		max := atomic.LoadInt32(&s.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&s.maxInFlight, max, cur) {
			break
		}
	}

	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.ops = append(s.ops, "copy "+item.SourcePath+" -> "+destPath)
	s.mu.Unlock()

	if err, ok := s.failRel[item.RelativePath]; ok {
		return err
	}
	if s.write {
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(destPath, []byte("payload"), 0644); err != nil {
			return err
		}
	}
	if onProgress != nil {
		onProgress(item.Size, item.Size, item.RelativePath)
	}
	return nil
}

func (s *stubCopier) Verify(sourcePath, destPath string) error {
	s.mu.Lock()
	s.ops = append(s.ops, "verify "+destPath)
	s.mu.Unlock()
	return s.verifyErr
}

func (s *stubCopier) opIndex(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.ops {
		if o == op {
			return i
		}
	}
	return -1
}

func makeItems(n int, sourceRoot string, size int64) []scan.FileItem {
	items := make([]scan.FileItem, 0, n)
	for i := 0; i < n; i++ {
		rel := fmt.Sprintf("clip%03d.mov", i)
		items = append(items, scan.FileItem{
			SourcePath:   filepath.Join(sourceRoot, rel),
			RelativePath: rel,
			Size:         size,
		})
	}
	return items
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	stub := &stubCopier{delay: 5 * time.Millisecond}
	o := New(stub, nil, Options{MaxConcurrent: 3}, nil)

	files := makeItems(12, "/src", 100)
	res, err := o.Run(context.Background(), files, []string{t.TempDir()})
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt32(&stub.maxInFlight), int32(3))
	assert.Equal(t, 12, res.FilesTransferred)
	assert.Equal(t, job.StatusCompleted, res.Job.Status)
	assert.False(t, res.Partial())
}

func TestRunCopiesToAllDestinations(t *testing.T) {
	stub := &stubCopier{}
	o := New(stub, nil, Options{}, nil)

	destA := t.TempDir()
	destB := t.TempDir()
	files := makeItems(4, "/src", 50)

	res, err := o.Run(context.Background(), files, []string{destA, destB})
	require.NoError(t, err)

	assert.Len(t, res.Completed, 8)
	assert.Equal(t, 4, res.FilesTransferred)
	assert.Equal(t, int64(8*50), res.Job.TotalBytes)
}

func TestCascadeFansOutFromVerifiedPrimary(t *testing.T) {
	stub := &stubCopier{}
	o := New(stub, nil, Options{Cascade: CascadePrimaryThenFanout}, nil)

	primary := t.TempDir()
	secondary := t.TempDir()
	files := makeItems(3, "/src", 50)

	res, err := o.Run(context.Background(), files, []string{primary, secondary})
	require.NoError(t, err)
	require.Equal(t, 3, res.FilesTransferred)
	require.Len(t, res.Completed, 6)

	for _, f := range files {
		primaryPath := filepath.Join(primary, f.RelativePath)
		secondaryPath := filepath.Join(secondary, f.RelativePath)

		verifyIdx := stub.opIndex("verify " + primaryPath)
		fanoutIdx := stub.opIndex("copy " + primaryPath + " -> " + secondaryPath)
		require.GreaterOrEqual(t, verifyIdx, 0, "primary copy of %s was not verified", f.RelativePath)
		require.GreaterOrEqual(t, fanoutIdx, 0, "secondary copy of %s did not read from the primary", f.RelativePath)
		assert.Less(t, verifyIdx, fanoutIdx, "fan-out of %s started before the primary was verified", f.RelativePath)
	}
}

func TestCascadeVerifyFailureRemovesPrimary(t *testing.T) {
	stub := &stubCopier{write: true, verifyErr: errors.New("digest mismatch")}
	o := New(stub, nil, Options{Cascade: CascadePrimaryThenFanout}, nil)

	primary := t.TempDir()
	secondary := t.TempDir()
	files := makeItems(2, "/src", 50)

	res, err := o.Run(context.Background(), files, []string{primary, secondary})
	require.Error(t, err)

	assert.Equal(t, 0, res.FilesTransferred)
	assert.Equal(t, job.StatusFailed, res.Job.Status)
	require.Len(t, res.Failed, 2)
	assert.ErrorContains(t, res.Failed[0].Err, "digest mismatch")

	for _, f := range files {
		assert.NoFileExists(t, filepath.Join(primary, f.RelativePath),
			"primary copy of %s survived a failed verification", f.RelativePath)
		assert.NoFileExists(t, filepath.Join(secondary, f.RelativePath))
		assert.Contains(t, res.Skipped, filepath.Join(secondary, f.RelativePath))
	}
}

func TestCascadePrimaryFailureSuppressesSecondaries(t *testing.T) {
	stub := &stubCopier{failRel: map[string]error{
		"clip001.mov": errors.New("read error"),
	}}
	o := New(stub, nil, Options{Cascade: CascadePrimaryThenFanout}, nil)

	primary := t.TempDir()
	secondary := t.TempDir()
	files := makeItems(3, "/src", 50)

	res, err := o.Run(context.Background(), files, []string{primary, secondary})
	require.NoError(t, err)

	assert.Equal(t, 2, res.FilesTransferred)
	assert.Len(t, res.Failed, 1)
	assert.Equal(t, "clip001.mov", res.Failed[0].Item.RelativePath)

	suppressed := filepath.Join(secondary, "clip001.mov")
	assert.Contains(t, res.Skipped, suppressed)
	assert.Equal(t, -1, stub.opIndex("copy "+filepath.Join(primary, "clip001.mov")+" -> "+suppressed),
		"secondary copy ran despite a failed primary")

	assert.True(t, res.Partial())
	assert.Equal(t, job.StatusCompleted, res.Job.Status)
}

func TestRunPartialFailureCompletes(t *testing.T) {
	stub := &stubCopier{failRel: map[string]error{
		"clip005.mov": errors.New("device removed"),
	}}
	o := New(stub, nil, Options{}, nil)

	files := makeItems(10, "/src", 100)
	res, err := o.Run(context.Background(), files, []string{t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, 9, res.FilesTransferred)
	assert.Len(t, res.Failed, 1)
	assert.True(t, res.Partial())
	assert.Equal(t, job.StatusCompleted, res.Job.Status)
}

func TestRunAllFailuresFailsJob(t *testing.T) {
	fails := make(map[string]error)
	for i := 0; i < 15; i++ {
		fails[fmt.Sprintf("clip%03d.mov", i)] = errors.New("io failure")
	}
	stub := &stubCopier{failRel: fails}
	o := New(stub, nil, Options{}, nil)

	files := makeItems(15, "/src", 100)
	res, err := o.Run(context.Background(), files, []string{t.TempDir()})
	require.Error(t, err)

	assert.Equal(t, 0, res.FilesTransferred)
	assert.Equal(t, job.StatusFailed, res.Job.Status)
	assert.Contains(t, err.Error(), "and 5 more")
}

func TestRunNoDestinations(t *testing.T) {
	o := New(&stubCopier{}, nil, Options{}, nil)
	_, err := o.Run(context.Background(), makeItems(1, "/src", 10), nil)
	require.Error(t, err)
}

func TestRunEmptyFileSet(t *testing.T) {
	o := New(&stubCopier{}, nil, Options{}, nil)
	res, err := o.Run(context.Background(), nil, []string{t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 0, res.FilesTransferred)
	assert.Equal(t, job.StatusCompleted, res.Job.Status)
}

func TestRunCancellation(t *testing.T) {
	stub := &stubCopier{block: make(chan struct{})}
	o := New(stub, nil, Options{MaxConcurrent: 2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	files := makeItems(8, "/src", 100)
	res, err := o.Run(ctx, files, []string{t.TempDir()})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, job.StatusFailed, res.Job.Status)
	assert.Equal(t, 0, res.FilesTransferred)
	assert.NotEmpty(t, res.Skipped, "work pending at cancellation should be recorded as skipped")
}

func TestPauseAndResume(t *testing.T) {
	release := make(chan struct{})
	stub := &stubCopier{block: release}
	o := New(stub, nil, Options{MaxConcurrent: 1}, nil)

	files := makeItems(3, "/src", 100)
	done := make(chan struct{})
	var res *Result
	var runErr error
	go func() {
		defer close(done)
		res, runErr = o.Run(context.Background(), files, []string{t.TempDir()})
	}()

	// Wait for the first copy to be in flight, then pause.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&stub.inFlight) > 0
	}, time.Second, time.Millisecond)
	require.NoError(t, o.Pause())

	snap, ok := o.Current()
	require.True(t, ok)
	assert.Equal(t, job.StatusPaused, snap.Status)

	// Unblock the copier; no new file should start while paused.
	close(release)
	time.Sleep(20 * time.Millisecond)
	stub.mu.Lock()
	started := len(stub.ops)
	stub.mu.Unlock()
	assert.LessOrEqual(t, started, 1)

	require.NoError(t, o.Resume())
	<-done
	require.NoError(t, runErr)
	assert.Equal(t, 3, res.FilesTransferred)
	assert.Equal(t, job.StatusCompleted, res.Job.Status)
}

func TestRunCompletesWhenPausedAfterLastDispatch(t *testing.T) {
	release := make(chan struct{})
	stub := &stubCopier{block: release}
	o := New(stub, nil, Options{}, nil)

	files := makeItems(1, "/src", 100)
	done := make(chan struct{})
	var res *Result
	var runErr error
	go func() {
		defer close(done)
		res, runErr = o.Run(context.Background(), files, []string{t.TempDir()})
	}()

	// Pause once the only file is in flight; everything is already
	// dispatched, so nothing waits on the resume gate.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&stub.inFlight) > 0
	}, time.Second, time.Millisecond)
	require.NoError(t, o.Pause())
	close(release)

	// The run must finish without an explicit Resume and leave the job
	// in a terminal state, not stuck in Paused.
	<-done
	require.NoError(t, runErr)
	assert.Equal(t, job.StatusCompleted, res.Job.Status)
	assert.Equal(t, 1, res.FilesTransferred)

	// The finished run is detached; pause no longer applies.
	assert.Error(t, o.Pause())
}

func TestPauseWithoutJob(t *testing.T) {
	o := New(&stubCopier{}, nil, Options{}, nil)
	assert.Error(t, o.Pause())
	assert.Error(t, o.Resume())
}

func TestRunWithRealCopier(t *testing.T) {
	sourceRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(sourceRoot, "DCIM"), 0755))

	content := map[string]string{
		"DCIM/clip001.mov": strings.Repeat("frame-data-", 500),
		"DCIM/clip002.mov": strings.Repeat("other-data-", 300),
	}
	var files []scan.FileItem
	for rel, data := range content {
		path := filepath.Join(sourceRoot, rel)
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))
		files = append(files, scan.FileItem{
			SourcePath:   path,
			RelativePath: rel,
			Size:         int64(len(data)),
		})
	}

	c := copier.New(nil, copier.Options{Algorithm: checksum.XXH64}, nil)
	o := New(c, nil, Options{Cascade: CascadePrimaryThenFanout}, nil)

	destA := t.TempDir()
	destB := t.TempDir()
	res, err := o.Run(context.Background(), files, []string{destA, destB})
	require.NoError(t, err)
	require.Equal(t, 2, res.FilesTransferred)

	for rel, data := range content {
		for _, dest := range []string{destA, destB} {
			got, err := os.ReadFile(filepath.Join(dest, rel))
			require.NoError(t, err)
			assert.Equal(t, data, string(got))
		}
	}
}

func TestRunProgressCallback(t *testing.T) {
	stub := &stubCopier{}
	var mu sync.Mutex
	var lastBytes int64
	var names []string

	o := New(stub, nil, Options{
		MaxConcurrent: 1,
		OnProgress: func(done, total int64, name string) {
			mu.Lock()
			lastBytes = done
			names = append(names, name)
			mu.Unlock()
		},
	}, nil)

	files := makeItems(4, "/src", 250)
	_, err := o.Run(context.Background(), files, []string{t.TempDir()})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(4*250), lastBytes)
	assert.Len(t, names, 4)
}
