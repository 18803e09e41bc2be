// Package scratch provides per-request temporary directories that are always removed.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir is a private temporary directory. Close removes it and everything in it.
type Dir struct {
	path string
}

// New creates a directory under the system temp dir.
func New(prefix string) (*Dir, error) {
	p, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Dir{path: p}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// Write stores b under name with owner-only permissions and returns the file path.
func (d *Dir) Write(name string, b []byte) (string, error) {
	p := filepath.Join(d.path, filepath.Base(name))
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return p, nil
}

// Close removes the directory. Safe to call more than once.
func (d *Dir) Close() error {
	if d == nil || d.path == "" {
		return nil
	}
	err := os.RemoveAll(d.path)
	d.path = ""
	return err
}
