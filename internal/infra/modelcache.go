package infra

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// ModelCacheTTL is how long availability answers and model listings are trusted.
const ModelCacheTTL = 30 * time.Second

const modelCacheSize = 256

// ModelKey identifies a requested model on a given server.
type ModelKey struct {
	BaseURL string
	Name    string
}

// ModelAvailability is the cached answer for a ModelKey.
type ModelAvailability struct {
	Available bool
	Resolved  string
}

// ModelCache holds model availability and server listings. Entries expire
// by age only.
type ModelCache struct {
	availability *expirable.LRU[ModelKey, ModelAvailability]
	listings     *expirable.LRU[string, []domain.ModelInfo]
}

// NewModelCache creates a cache whose entries live for ttl.
func NewModelCache(ttl time.Duration) *ModelCache {
	return &ModelCache{
		availability: expirable.NewLRU[ModelKey, ModelAvailability](modelCacheSize, nil, ttl),
		listings:     expirable.NewLRU[string, []domain.ModelInfo](modelCacheSize, nil, ttl),
	}
}

// sharedModelCache is the process-wide cache used by clients that do not
// bring their own.
var sharedModelCache = NewModelCache(ModelCacheTTL)

// Availability returns a cached answer.
func (c *ModelCache) Availability(key ModelKey) (ModelAvailability, bool) {
	return c.availability.Get(key)
}

// SetAvailability stores an answer.
func (c *ModelCache) SetAvailability(key ModelKey, value ModelAvailability) {
	c.availability.Add(key, value)
}

// Listing returns the cached model list of a server.
func (c *ModelCache) Listing(baseURL string) ([]domain.ModelInfo, bool) {
	return c.listings.Get(baseURL)
}

// SetListing stores the model list of a server.
func (c *ModelCache) SetListing(baseURL string, models []domain.ModelInfo) {
	c.listings.Add(baseURL, models)
}

// Purge drops every entry.
func (c *ModelCache) Purge() {
	c.availability.Purge()
	c.listings.Purge()
}

// ResolveModel picks the installed model for a requested name: an exact
// match wins, then the first model whose name starts with the request.
func ResolveModel(models []domain.ModelInfo, name string) ModelAvailability {
	for _, m := range models {
		if m.Name == name {
			return ModelAvailability{Available: true, Resolved: m.Name}
		}
	}
	for _, m := range models {
		if strings.HasPrefix(m.Name, name) {
			return ModelAvailability{Available: true, Resolved: m.Name}
		}
	}
	return ModelAvailability{Available: false, Resolved: name}
}
