// Package storage keeps run artifacts on the local filesystem. Artifacts
// live flat in one directory and are addressed by bare file name.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Common errors returned by storage operations.
var (
	ErrNotFound      = errors.New("storage: artifact not found")
	ErrInvalidName   = errors.New("storage: invalid artifact name")
	ErrInvalidConfig = errors.New("storage: invalid configuration")
)

// LocalConfig configures the artifact directory.
type LocalConfig struct {
	// BasePath is the directory holding artifacts.
	BasePath string

	// Permissions for new files. Default: 0644
	Permissions os.FileMode

	// DirPermissions for the base directory. Default: 0755
	DirPermissions os.FileMode
}

// Local stores artifacts in a single directory.
type Local struct {
	basePath    string
	permissions os.FileMode
}

// NewLocal creates the artifact directory if needed.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("%w: BasePath is required", ErrInvalidConfig)
	}

	basePath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to resolve path: %w", err)
	}

	permissions := cfg.Permissions
	if permissions == 0 {
		permissions = 0644
	}
	dirPermissions := cfg.DirPermissions
	if dirPermissions == 0 {
		dirPermissions = 0755
	}

	if err := os.MkdirAll(basePath, dirPermissions); err != nil {
		return nil, fmt.Errorf("storage: failed to create base directory: %w", err)
	}

	return &Local{basePath: basePath, permissions: permissions}, nil
}

// BasePath returns the absolute artifact directory.
func (l *Local) BasePath() string {
	return l.basePath
}

// Write replaces the artifact called name with whatever fn writes. The data
// goes to a temporary file that is renamed over the target only after fn
// and the flush succeed, so a failed write leaves any previous artifact
// untouched.
func (l *Local) Write(name string, fn func(w io.Writer) error) (err error) {
	target, err := l.path(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.basePath, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = fn(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("storage: failed to sync %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("storage: failed to close %s: %w", name, err)
	}
	if err = os.Chmod(tmp.Name(), l.permissions); err != nil {
		return fmt.Errorf("storage: failed to set permissions on %s: %w", name, err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("storage: failed to commit %s: %w", name, err)
	}
	return nil
}

// Open returns the artifact and its file info. The caller closes the file.
func (l *Local) Open(name string) (*os.File, os.FileInfo, error) {
	p, err := l.path(name)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("storage: failed to open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("storage: failed to stat %s: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Exists reports whether a valid artifact called name exists.
func (l *Local) Exists(name string) bool {
	p, err := l.path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Delete removes an artifact.
func (l *Local) Delete(name string) error {
	p, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: failed to delete %s: %w", name, err)
	}
	return nil
}

// ValidName reports whether name is a plain file name inside the store.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.HasPrefix(name, ".") {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}

func (l *Local) path(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(l.basePath, name), nil
}
