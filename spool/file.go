package spool

import (
	"strings"
)

// FileConfig is the location of the spool database on disk.
//
// An instance can be created only by the [File] function. Without one the spool is kept in
// memory and lost on close.
type FileConfig struct {
	path    string
	durable bool
}

// File returns a [FileConfig] for the given path. Missing parent directories are created when the
// spool is opened.
func File(path string) *FileConfig {
	path = strings.TrimSpace(path)
	if path == "" {
		panic("file can't be blank")
	}
	if strings.Contains(path, "?") {
		panic("file can't contain ?")
	}
	return &FileConfig{path: path}
}

// Durable makes every flush wait until the data is synced to disk. Without it a flushed batch
// survives a crash of the process but may be lost on a power failure.
func (c *FileConfig) Durable(durable bool) *FileConfig {
	c.durable = durable
	return c
}
