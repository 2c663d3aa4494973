package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// FileRegistry implements domain.DaemonRegistry using a JSON file in the
// data directory.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileRegistry creates a registry at path.
func NewFileRegistry(path string, pm domain.ProcessManager) *FileRegistry {
	return &FileRegistry{
		path:           path,
		processManager: pm,
	}
}

// Path returns the registry file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Register saves the daemon record. Concurrent starts are serialized with
// an exclusive lock on a sibling lock file.
func (r *FileRegistry) Register(record domain.DaemonRecord) error {
	lockPath := r.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return atomicWriteFile(r.path, data, 0600)
}

// Get returns the stored record; nil without error when none exists.
func (r *FileRegistry) Get() (*domain.DaemonRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var record domain.DaemonRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("corrupt registry %s: %w", r.path, err)
	}
	return &record, nil
}

// IsAlive checks the recorded PID. A missing record is not alive.
func (r *FileRegistry) IsAlive() (bool, error) {
	record, err := r.Get()
	if err != nil {
		return false, err
	}
	if record == nil || record.PID <= 0 {
		return false, nil
	}
	return r.processManager.IsRunning(record.PID), nil
}

// Clear removes the registry file. Clearing an empty registry is not an error.
func (r *FileRegistry) Clear() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var _ domain.DaemonRegistry = (*FileRegistry)(nil)
