package copier

import (
	"fmt"
	"os"
)

// Kind discriminates copy failures. Matching and equality use the kind
// only; the wrapped cause is diagnostic data, not part of the comparison.
type Kind int

const (
	KindUnknown Kind = iota
	KindFileNotFound
	KindSourceInvalid
	KindDestinationInvalid
	KindDestinationNotWritable
	KindCopyFailed
	KindChecksumMismatch
	KindCancelled
	KindPermissionDenied
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindFileNotFound:
		return "file not found"
	case KindSourceInvalid:
		return "source invalid"
	case KindDestinationInvalid:
		return "destination invalid"
	case KindDestinationNotWritable:
		return "destination not writable"
	case KindCopyFailed:
		return "copy failed"
	case KindChecksumMismatch:
		return "checksum mismatch"
	case KindCancelled:
		return "cancelled"
	case KindPermissionDenied:
		return "permission denied"
	default:
		return "unknown error"
	}
}

// Error makes Kind usable as an errors.Is target:
// errors.Is(err, KindChecksumMismatch)
func (k Kind) Error() string {
	return k.String()
}

// Error is a copy failure bound to the offending path, so callers can
// prompt for re-authorization instead of showing a generic failure.
type Error struct {
	Kind  Kind
	Path  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}

// Unwrap exposes the cause for diagnostics
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by kind, ignoring path and cause
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	if other, ok := target.(*Error); ok {
		return e.Kind == other.Kind
	}
	return false
}

func newError(kind Kind, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Cause: cause}
}

// classify maps an OS error to a kind, preferring the permission and
// not-found cases over the fallback
func classify(err error, path string, fallback Kind) *Error {
	switch {
	case os.IsNotExist(err):
		return newError(KindFileNotFound, path, err)
	case os.IsPermission(err):
		return newError(KindPermissionDenied, path, err)
	default:
		return newError(fallback, path, err)
	}
}
