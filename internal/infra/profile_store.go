package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// FileProfileStore implements domain.ProfileStore with one JSON file per
// profile in a directory.
type FileProfileStore struct {
	dir string
}

// NewProfileStore creates a store rooted at dir.
func NewProfileStore(dir string) *FileProfileStore {
	return &FileProfileStore{dir: dir}
}

func (s *FileProfileStore) path(name string) string {
	// same sanitizing as cache files so the two line up
	return CacheFileName(s.dir, name)
}

// Load reads a profile. A missing profile fails with domain.ErrNotFound.
func (s *FileProfileStore) Load(name string) (*domain.Profile, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("profile %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read profile %q: %w", name, err)
	}

	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return &p, nil
}

// Save writes a profile atomically.
func (s *FileProfileStore) Save(profile *domain.Profile) error {
	if profile == nil || strings.TrimSpace(profile.Name) == "" {
		return errors.New("profile name is required")
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return atomicWriteFile(s.path(profile.Name), data, 0600)
}

// List returns the stored profile names, sorted.
func (s *FileProfileStore) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

var _ domain.ProfileStore = (*FileProfileStore)(nil)
