// Package files stores generated documents.
package files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage puts a named document somewhere and returns where it went.
type Storage interface {
	Put(ctx context.Context, name string, r io.Reader) (string, error)
}

// Local writes documents under Dir, optionally inside Prefix.
type Local struct {
	Dir    string
	Prefix string
}

// NewLocal returns a Local storage rooted at dir.
func NewLocal(dir string) *Local { return &Local{Dir: dir} }

// WithPrefix returns a copy writing under dir/prefix.
func (l *Local) WithPrefix(prefix string) *Local {
	return &Local{Dir: l.Dir, Prefix: prefix}
}

// Put writes r to a temp file and renames it into place, so readers never
// see a partial document. It returns the final path.
func (l *Local) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("files: invalid name %q", name)
	}
	dir := l.Dir
	if l.Prefix != "" {
		dir = filepath.Join(dir, filepath.Clean("/" + l.Prefix)[1:])
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("files: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("files: create: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("files: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("files: close %s: %w", name, err)
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("files: rename %s: %w", name, err)
	}
	return dst, nil
}
