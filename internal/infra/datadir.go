package infra

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// DataDirName is the directory under the user's home holding all state.
const DataDirName = ".lockin"

// Paths lists every file and directory lockin reads or writes.
type Paths struct {
	DataDir       string
	ConfigPath    string
	LogPath       string
	CacheDir      string // per-profile distraction caches
	ProfileDir    string
	ScreenshotDir string
	SessionDB     string
	RegistryPath  string
}

// DefaultPaths resolves paths under the invoking user's home directory.
func DefaultPaths() Paths {
	return PathsFor(filepath.Join(GetRealUserHome(), DataDirName))
}

// PathsFor lays out paths under an explicit data directory.
func PathsFor(dataDir string) Paths {
	return Paths{
		DataDir:       dataDir,
		ConfigPath:    filepath.Join(dataDir, "config.yaml"),
		LogPath:       filepath.Join(dataDir, "lockin.log"),
		CacheDir:      filepath.Join(dataDir, "distraction_cache"),
		ProfileDir:    filepath.Join(dataDir, "profiles"),
		ScreenshotDir: filepath.Join(dataDir, "screenshots"),
		SessionDB:     filepath.Join(dataDir, "sessions.db"),
		RegistryPath:  filepath.Join(dataDir, "daemon.json"),
	}
}

// Ensure creates the directories with owner-only permissions.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.DataDir, p.CacheDir, p.ProfileDir, p.ScreenshotDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so SUDO_USER is consulted first.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
