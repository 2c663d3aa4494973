package domain

import (
	"context"
	"time"
)

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// NameOf returns the lowercase executable name of a PID.
	NameOf(pid int) (string, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// Terminate asks a process to exit (SIGTERM).
	Terminate(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// FileSystemManager handles filesystem operations.
type FileSystemManager interface {
	// Exists checks if a path exists.
	Exists(path string) bool

	// Delete removes a file or directory recursively. Globs are expanded.
	Delete(path string) error

	// ExpandHome expands ~ to the user's home directory.
	ExpandHome(path string) string

	// Prune removes regular files in dir last modified before cutoff and
	// returns how many were removed. A missing dir is not an error.
	Prune(dir string, cutoff time.Time) (int, error)
}

// ForegroundProbe reports the window that currently has focus.
type ForegroundProbe interface {
	Foreground(ctx context.Context) (ForegroundWindow, error)
}

// ScreenCapturer takes screenshots.
type ScreenCapturer interface {
	// CaptureBurst takes count screenshots spread over duration and
	// returns their paths in capture order.
	CaptureBurst(ctx context.Context, count int, duration time.Duration) ([]string, error)
}

// VLMClient talks to a local vision-language model server.
type VLMClient interface {
	// ListModels returns the models installed on the server.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// CheckModelAvailable reports whether name (or a prefix match) is installed.
	CheckModelAvailable(ctx context.Context, name string) bool

	// ResolveModelName maps a requested name to an installed one.
	ResolveModelName(ctx context.Context, name string) string

	// PullModel downloads a model, returning true on success.
	PullModel(ctx context.Context, name string) bool

	// GenerateText runs a text-only prompt.
	GenerateText(ctx context.Context, prompt, model string, opts GenerateOptions) (*GenerateResult, error)

	// GenerateVision runs a prompt against a single image.
	GenerateVision(ctx context.Context, imagePath, prompt, model string, opts GenerateOptions) (*GenerateResult, error)

	// GenerateVisionMulti runs a prompt against several images, skipping corrupt ones.
	GenerateVisionMulti(ctx context.Context, imagePaths []string, prompt, model string, opts GenerateOptions) (*GenerateResult, error)
}

// Analyzer decides whether captured screen activity is distracting.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) *AnalysisResult
}

// DistractionCache is the per-profile set of known distracting windows.
// Implementation: JSON file rewritten whole on every mutation.
type DistractionCache interface {
	// IsDistracting tests membership after normalization.
	IsDistracting(process, title string) bool

	// Add records a pair and persists the cache.
	Add(process, title string) error

	// Remove deletes a pair and persists the cache.
	Remove(process, title string) error

	// Clear empties the cache and persists it.
	Clear() error

	// Count returns the number of cached pairs.
	Count() int

	// Entries returns all cached pairs sorted by process then title.
	Entries() []DistractionKey
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	Load(name string) (*Profile, error)
	Save(profile *Profile) error
	List() ([]string, error)
}

// SessionStore persists finished focus sessions.
// Implementation: SQLCipher encrypted SQLite database.
type SessionStore interface {
	// Save inserts or replaces a session.
	Save(session Session) error

	// Get returns one session by ID.
	Get(id string) (*Session, error)

	// List returns the most recent sessions first. limit <= 0 means all.
	List(limit int) ([]Session, error)

	// Close releases the database connection.
	Close() error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// AlertSink consumes distraction alerts.
type AlertSink interface {
	Notify(ctx context.Context, alert Alert) error
}

// DaemonRegistry tracks the running background monitor.
// Implementation: JSON file with flock-guarded writes.
type DaemonRegistry interface {
	// Register records the running daemon, replacing any previous record.
	Register(record DaemonRecord) error

	// Get returns the current record, or nil when none exists.
	Get() (*DaemonRecord, error)

	// IsAlive reports whether the recorded PID is still running.
	IsAlive() (bool, error)

	// Clear removes the record.
	Clear() error

	// Path returns the registry file location.
	Path() string
}

// LoginItemManager installs the monitor as a per-user login service.
// Implementation: LaunchAgent plist on macOS, systemd user unit on Linux.
type LoginItemManager interface {
	// Install writes the service definition and loads it.
	Install(execPath string, args []string) error

	// Uninstall unloads and removes the service definition.
	Uninstall() error

	// IsInstalled checks if the service definition exists.
	IsInstalled() bool

	// NeedsUpdate reports an installed definition that differs from the
	// one Install would write.
	NeedsUpdate(execPath string, args []string) bool

	// Path returns the service definition file.
	Path() string
}
