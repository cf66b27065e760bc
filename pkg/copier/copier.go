package copier

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mfourny/offload/pkg/access"
	"github.com/mfourny/offload/pkg/checksum"
	"github.com/mfourny/offload/pkg/logging"
	"github.com/mfourny/offload/pkg/scan"
)

// DefaultBlockSize is the streaming tier's copy block
const DefaultBlockSize = 1024 * 1024 // 1 MiB

// partialSuffix marks in-flight destination files; they are renamed into
// place only after the tier succeeds, so a crash or failure never leaves
// a truncated file masquerading as output
const partialSuffix = ".partial"

// ProgressFunc receives byte-level progress from the streaming tier
// (and a single completion call from the fast tiers)
type ProgressFunc func(bytesCopied, totalBytes int64, name string)

// Options configures a Copier
type Options struct {
	// Algorithm is the verification digest; zero value means the default
	Algorithm checksum.Algorithm

	// BlockSize is the streaming tier's block; zero means DefaultBlockSize
	BlockSize int

	// ForceStreaming pins the chunked verifying tier, for filesystems
	// too weak to trust the fast paths
	ForceStreaming bool
}

// Copier transfers single files with escalating strategies:
//
//  1. bulk fast path (ReadFrom, which uses the kernel's copy offload
//     where available), confirmed by byte count only;
//  2. buffered whole-file read and atomic write, byte-count confirmed;
//  3. chunked streaming with a full source/destination checksum compare.
//
// Each tier runs only after the previous one errored. Only tier 3 is
// strong enough to catch silent corruption on unreliable removable media.
type Copier struct {
	algorithm      checksum.Algorithm
	blockSize      int
	forceStreaming bool
	access         *access.Manager
	logger         logging.Logger
}

// New creates a Copier
func New(mgr *access.Manager, opts Options, logger logging.Logger) *Copier {
	if opts.Algorithm == "" {
		opts.Algorithm = checksum.Default()
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Copier{
		algorithm:      opts.Algorithm,
		blockSize:      opts.BlockSize,
		forceStreaming: opts.ForceStreaming,
		access:         mgr,
		logger:         logger,
	}
}

// Algorithm returns the verification algorithm in use
func (c *Copier) Algorithm() checksum.Algorithm {
	return c.algorithm
}

// Copy transfers one file to destPath. Cancellation is cooperative: it is
// checked at block boundaries in the streaming tier, never mid-block, so
// an aborted copy always has a consistent byte count. A failed copy never
// leaves a partial destination file behind.
func (c *Copier) Copy(ctx context.Context, item scan.FileItem, destPath string, onProgress ProgressFunc) error {
	info, err := os.Stat(item.SourcePath)
	if err != nil {
		return classify(err, item.SourcePath, KindSourceInvalid)
	}
	if info.IsDir() {
		return newError(KindSourceInvalid, item.SourcePath, fmt.Errorf("source is a directory"))
	}
	totalBytes := info.Size()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		if os.IsPermission(err) {
			return newError(KindDestinationNotWritable, destPath, err)
		}
		return newError(KindDestinationInvalid, destPath, err)
	}

	name := filepath.Base(item.SourcePath)

	if !c.forceStreaming {
		if err := c.copyBulk(item.SourcePath, destPath, totalBytes); err == nil {
			if onProgress != nil {
				onProgress(totalBytes, totalBytes, name)
			}
			return nil
		} else {
			c.logger.Debug(ctx, "bulk copy tier failed, escalating", logging.Fields{
				"source": item.SourcePath,
				"error":  err.Error(),
			})
		}

		if err := c.copyBuffered(item.SourcePath, destPath, totalBytes); err == nil {
			if onProgress != nil {
				onProgress(totalBytes, totalBytes, name)
			}
			return nil
		} else {
			c.logger.Debug(ctx, "buffered copy tier failed, escalating", logging.Fields{
				"source": item.SourcePath,
				"error":  err.Error(),
			})
		}
	}

	return c.copyStreaming(ctx, item.SourcePath, destPath, totalBytes, name, onProgress)
}

// copyBulk is tier 1: hand the whole transfer to the OS and confirm by
// byte count. No checksum at this tier.
func (c *Copier) copyBulk(source, dest string, totalBytes int64) error {
	src, err := os.Open(source)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := dest + partialSuffix
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}

	n, err := dst.ReadFrom(src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if n != totalBytes {
		os.Remove(tmp)
		return fmt.Errorf("bulk copy size mismatch: wrote %d of %d bytes", n, totalBytes)
	}

	return os.Rename(tmp, dest)
}

// copyBuffered is tier 2: whole file through memory, written atomically,
// byte-count confirmed. Used when the bulk path fails on cross-volume or
// permission edge cases.
func (c *Copier) copyBuffered(source, dest string, totalBytes int64) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	if int64(len(data)) != totalBytes {
		return fmt.Errorf("buffered copy size mismatch: read %d of %d bytes", len(data), totalBytes)
	}

	tmp := dest + partialSuffix
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, dest)
}

// copyStreaming is tier 3: fixed-size blocks with per-block progress,
// block-boundary cancellation, and a full source/destination checksum
// compare. A mismatch deletes the destination before the error surfaces.
func (c *Copier) copyStreaming(ctx context.Context, source, dest string, totalBytes int64, name string, onProgress ProgressFunc) error {
	src, err := os.Open(source)
	if err != nil {
		return classify(err, source, KindSourceInvalid)
	}
	defer src.Close()

	tmp := dest + partialSuffix
	dst, err := os.Create(tmp)
	if err != nil {
		if os.IsPermission(err) {
			return newError(KindDestinationNotWritable, dest, err)
		}
		return newError(KindDestinationInvalid, dest, err)
	}

	hasher, err := checksum.New(c.algorithm)
	if err != nil {
		dst.Close()
		os.Remove(tmp)
		return newError(KindCopyFailed, source, err)
	}

	buf := make([]byte, c.blockSize)
	var copied int64
	for {
		select {
		case <-ctx.Done():
			dst.Close()
			os.Remove(tmp)
			return newError(KindCancelled, source, ctx.Err())
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				dst.Close()
				os.Remove(tmp)
				return classify(writeErr, dest, KindCopyFailed)
			}
			copied += int64(n)
			if onProgress != nil {
				onProgress(copied, totalBytes, name)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			dst.Close()
			os.Remove(tmp)
			return classify(readErr, source, KindCopyFailed)
		}
	}

	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tmp)
		return newError(KindCopyFailed, dest, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return newError(KindCopyFailed, dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return newError(KindDestinationInvalid, dest, err)
	}

	sourceSum := checksum.Sum(hasher, c.algorithm)
	destSum, err := checksum.File(dest, c.algorithm)
	if err != nil {
		os.Remove(dest)
		return newError(KindCopyFailed, dest, err)
	}
	if !sourceSum.Equal(destSum) {
		os.Remove(dest)
		return newError(KindChecksumMismatch, dest,
			fmt.Errorf("source %s != destination %s (%s)", sourceSum.Digest, destSum.Digest, c.algorithm))
	}

	return nil
}

// Verify recomputes both digests for an already-copied pair. Used by the
// cascade fan-out to confirm a primary copy before secondaries read it.
func (c *Copier) Verify(sourcePath, destPath string) error {
	sourceSum, err := checksum.File(sourcePath, c.algorithm)
	if err != nil {
		return classify(err, sourcePath, KindCopyFailed)
	}
	destSum, err := checksum.File(destPath, c.algorithm)
	if err != nil {
		return classify(err, destPath, KindCopyFailed)
	}
	if !sourceSum.Equal(destSum) {
		return newError(KindChecksumMismatch, destPath,
			fmt.Errorf("source %s != destination %s (%s)", sourceSum.Digest, destSum.Digest, c.algorithm))
	}
	return nil
}
