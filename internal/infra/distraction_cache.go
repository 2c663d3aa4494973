package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// DefaultProfileName is used when no profile is selected.
const DefaultProfileName = "default"

type cacheFile struct {
	Distractions [][2]string `json:"distractions"`
}

// FileDistractionCache implements domain.DistractionCache as one JSON file
// per profile, rewritten whole on every mutation.
type FileDistractionCache struct {
	mu      sync.RWMutex
	path    string
	entries map[domain.DistractionKey]struct{}
	logger  *zap.Logger
}

// NewDistractionCache opens the cache of a profile inside dir.
func NewDistractionCache(dir, profile string, logger *zap.Logger) *FileDistractionCache {
	return NewDistractionCacheWithPath(CacheFileName(dir, profile), logger)
}

// NewDistractionCacheWithPath opens a cache file at an explicit path.
// An unreadable file starts an empty cache.
func NewDistractionCacheWithPath(path string, logger *zap.Logger) *FileDistractionCache {
	c := &FileDistractionCache{
		path:    path,
		entries: make(map[domain.DistractionKey]struct{}),
		logger:  logger.With(zap.String("cache", path)),
	}
	c.load()
	return c
}

// CacheFileName maps a profile to its cache file. Characters other than
// letters, digits, space, '-' and '_' are dropped and spaces become '_'.
func CacheFileName(dir, profile string) string {
	var b strings.Builder
	for _, r := range profile {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	name := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	if name == "" {
		name = DefaultProfileName
	}
	return filepath.Join(dir, name+".json")
}

// Path returns the backing file.
func (c *FileDistractionCache) Path() string {
	return c.path
}

func (c *FileDistractionCache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to read distraction cache", zap.Error(err))
		}
		return
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("failed to parse distraction cache, starting empty", zap.Error(err))
		return
	}
	for _, pair := range f.Distractions {
		c.entries[domain.NewDistractionKey(pair[0], pair[1])] = struct{}{}
	}
	c.logger.Info("loaded distraction cache", zap.Int("entries", len(c.entries)))
}

// save writes the cache; callers hold the write lock.
func (c *FileDistractionCache) save() error {
	f := cacheFile{Distractions: make([][2]string, 0, len(c.entries))}
	for _, k := range c.sortedLocked() {
		f.Distractions = append(f.Distractions, [2]string{k.Process, k.Title})
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicWriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to save distraction cache: %w", err)
	}
	return nil
}

// IsDistracting tests membership after normalization.
func (c *FileDistractionCache) IsDistracting(process, title string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[domain.NewDistractionKey(process, title)]
	return ok
}

// Add records a pair and persists the cache.
func (c *FileDistractionCache) Add(process, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[domain.NewDistractionKey(process, title)] = struct{}{}
	c.logger.Info("added to distraction cache", zap.String("process", process), zap.String("title", title))
	return c.save()
}

// Remove deletes a pair and persists the cache.
func (c *FileDistractionCache) Remove(process, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, domain.NewDistractionKey(process, title))
	return c.save()
}

// Clear empties the cache and persists it.
func (c *FileDistractionCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[domain.DistractionKey]struct{})
	return c.save()
}

// Count returns the number of cached pairs.
func (c *FileDistractionCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns all pairs sorted by process, then title.
func (c *FileDistractionCache) Entries() []domain.DistractionKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedLocked()
}

func (c *FileDistractionCache) sortedLocked() []domain.DistractionKey {
	keys := make([]domain.DistractionKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Process != keys[j].Process {
			return keys[i].Process < keys[j].Process
		}
		return keys[i].Title < keys[j].Title
	})
	return keys
}

var _ domain.DistractionCache = (*FileDistractionCache)(nil)
