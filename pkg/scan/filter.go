package scan

import (
	"path/filepath"
	"strings"
)

// Options configures which files a scan includes. The allow-list and
// denylist come from the caller's presets, not from the engine.
type Options struct {
	// AllowExtensions is the media-extension allow-list (without dots,
	// case-insensitive). Empty means every extension is eligible.
	AllowExtensions []string

	// DenyFilenames lists housekeeping filenames to skip outright,
	// matched case-insensitively against the base name. Camera vendors
	// scatter index and database files across cards; presets carry the
	// known set.
	DenyFilenames []string
}

// trashDirs are OS housekeeping directories that never hold user media
var trashDirs = map[string]bool{
	"$RECYCLE.BIN":              true,
	"System Volume Information": true,
	".Trashes":                  true,
	".Trash":                    true,
	".Spotlight-V100":           true,
	".fseventsd":                true,
	"lost+found":                true,
}

// filter is the compiled form of Options
type filter struct {
	allowExt map[string]bool
	denyName map[string]bool
}

func newFilter(opts Options) *filter {
	f := &filter{
		allowExt: make(map[string]bool, len(opts.AllowExtensions)),
		denyName: make(map[string]bool, len(opts.DenyFilenames)),
	}
	for _, ext := range opts.AllowExtensions {
		f.allowExt[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	for _, name := range opts.DenyFilenames {
		f.denyName[strings.ToLower(name)] = true
	}
	return f
}

// skipDir reports whether a directory is excluded from traversal
func (f *filter) skipDir(name string) bool {
	return isHidden(name) || trashDirs[name]
}

// denied reports whether a filename is on the housekeeping denylist
func (f *filter) denied(name string) bool {
	return f.denyName[strings.ToLower(name)]
}

// allowed reports whether a file's extension is on the allow-list
func (f *filter) allowed(name string) bool {
	if len(f.allowExt) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return f.allowExt[ext]
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
