// Package fsutil contains small file system helpers.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// CreateDirAllFor creates all parent directories of path. The path itself is not created.
func CreateDirAllFor(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// Glob returns the sorted paths matching pattern. Besides the syntax of [filepath.Match] it
// supports {a,b} alternatives and ** matching any number of directories, none included.
// Unreadable directories are skipped. An error is only returned for a malformed pattern.
func Glob(pattern string) ([]string, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	slices.Sort(paths)
	return paths, nil
}
