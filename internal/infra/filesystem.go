package infra

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// FileSystemManagerImpl implements domain.FileSystemManager. The watcher
// uses it to discard screenshot bursts.
type FileSystemManagerImpl struct {
	homeDir string
}

// NewFileSystemManager creates a new filesystem manager.
func NewFileSystemManager() domain.FileSystemManager {
	return &FileSystemManagerImpl{homeDir: GetRealUserHome()}
}

// NewFileSystemManagerWithHome creates a filesystem manager with custom home (for testing).
func NewFileSystemManagerWithHome(home string) domain.FileSystemManager {
	return &FileSystemManagerImpl{homeDir: home}
}

// Exists checks if a path exists.
func (fm *FileSystemManagerImpl) Exists(path string) bool {
	_, err := os.Stat(fm.ExpandHome(path))
	return err == nil
}

// Delete removes a screenshot or a glob of them. A missing path is not an
// error; failures on individual matches are combined.
func (fm *FileSystemManagerImpl) Delete(path string) error {
	expanded := fm.ExpandHome(path)
	if !strings.ContainsAny(expanded, "*?[") {
		return os.RemoveAll(expanded)
	}

	matches, err := filepath.Glob(expanded)
	if err != nil {
		return err
	}
	var errs error
	for _, match := range matches {
		errs = multierr.Append(errs, os.RemoveAll(match))
	}
	return errs
}

// Prune removes files left behind by a monitor that died mid-burst.
func (fm *FileSystemManagerImpl) Prune(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(fm.ExpandHome(dir))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(fm.ExpandHome(dir), e.Name())); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}
	return removed, errs
}

// ExpandHome expands a leading ~ to the user's home directory.
func (fm *FileSystemManagerImpl) ExpandHome(path string) string {
	switch {
	case path == "~":
		return fm.homeDir
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(fm.homeDir, path[2:])
	default:
		return path
	}
}

var _ domain.FileSystemManager = (*FileSystemManagerImpl)(nil)
