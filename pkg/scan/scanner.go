package scan

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mfourny/offload/pkg/access"
	"github.com/mfourny/offload/pkg/logging"
)

// FileItem is one file to copy within a job. Produced by the scanner,
// consumed (never mutated) by the copy engine.
type FileItem struct {
	// SourcePath is the absolute path of the file
	SourcePath string

	// RelativePath is the path under the scan root, used to reproduce
	// the directory structure at the destination
	RelativePath string

	// Size is the file size in bytes
	Size int64
}

// ScanError records a subtree or file that could not be read
type ScanError struct {
	Path string
	Err  error
}

// Outcome is the result of one scan. Skipped and Errors are informational;
// neither fails the scan on its own.
type Outcome struct {
	Files   []FileItem
	Skipped []string
	Errors  []ScanError
}

// TotalBytes sums the sizes of all included files
func (o *Outcome) TotalBytes() int64 {
	var total int64
	for _, f := range o.Files {
		total += f.Size
	}
	return total
}

// Scanner enumerates a source tree into a flat list of eligible files
type Scanner struct {
	access *access.Manager
	opts   Options
	logger logging.Logger
}

// NewScanner creates a scanner with the given inclusion rules
func NewScanner(mgr *access.Manager, opts Options, logger logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Scanner{access: mgr, opts: opts, logger: logger}
}

// Scan walks the tree under root depth-first. A subtree that cannot be
// listed is recorded in the outcome's Errors and its siblings continue;
// only an unlistable root fails the whole scan.
func (s *Scanner) Scan(ctx context.Context, root string) (*Outcome, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve scan root: %w", err)
	}

	if s.access != nil {
		if _, err := s.access.Acquire(absRoot); err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(absRoot)
	if err != nil {
		return nil, fmt.Errorf("cannot list scan root %s: %w", absRoot, err)
	}

	outcome := &Outcome{}
	f := newFilter(s.opts)
	if err := s.walk(ctx, absRoot, absRoot, entries, f, outcome); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "scan completed", logging.Fields{
		"root":    absRoot,
		"files":   len(outcome.Files),
		"skipped": len(outcome.Skipped),
		"errors":  len(outcome.Errors),
		"bytes":   outcome.TotalBytes(),
	})
	return outcome, nil
}

// walk recurses one directory level. The only error it returns is
// context cancellation; everything else lands in the outcome.
func (s *Scanner) walk(ctx context.Context, root, dir string, entries []fs.DirEntry, f *filter, out *Outcome) error {
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if f.skipDir(entry.Name()) {
				out.Skipped = append(out.Skipped, path)
				continue
			}
			sub, err := os.ReadDir(path)
			if err != nil {
				out.Errors = append(out.Errors, ScanError{Path: path, Err: err})
				s.logger.Warn(ctx, "subtree unreadable, continuing", logging.Fields{
					"path": path,
				})
				continue
			}
			if err := s.walk(ctx, root, path, sub, f, out); err != nil {
				return err
			}
			continue
		}

		if isHidden(entry.Name()) || f.denied(entry.Name()) || !f.allowed(entry.Name()) {
			out.Skipped = append(out.Skipped, path)
			continue
		}

		size, err := fileSize(path, entry)
		if err != nil {
			out.Errors = append(out.Errors, ScanError{Path: path, Err: err})
			continue
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			out.Errors = append(out.Errors, ScanError{Path: path, Err: err})
			continue
		}

		out.Files = append(out.Files, FileItem{
			SourcePath:   path,
			RelativePath: rel,
			Size:         size,
		})
	}
	return nil
}

// fileSize reads a file's size from directory metadata, falling back to a
// stat and finally an open+seek probe. A single failed attribute read must
// not drop the file from total-size accounting silently.
func fileSize(path string, entry fs.DirEntry) (int64, error) {
	if info, err := entry.Info(); err == nil {
		return info.Size(), nil
	}
	if info, err := os.Stat(path); err == nil {
		return info.Size(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("cannot determine size of %s: %w", path, err)
	}
	defer file.Close()

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("cannot determine size of %s: %w", path, err)
	}
	return size, nil
}
