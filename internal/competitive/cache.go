package competitive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"demandradar/internal/model"
)

// Cache is a read-through/write-through file cache for competitive
// search results: one JSON file per query key, each holding a write
// timestamp and the payload. Entries are immutable; expired entries
// are simply refetched and overwritten. Concurrent writes to the same
// key are last-write-wins, which is fine because entries are
// idempotent recomputations of the same query.
type Cache struct {
	dir string
	ttl time.Duration
}

type cacheEntry struct {
	CachedAt time.Time             `json:"cached_at"`
	Data     model.CompetitiveData `json:"data"`
}

// NewCache creates the cache directory if needed.
func NewCache(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl}, nil
}

// Key derives the cache key for a keyword set. Keywords are sorted so
// derivation order doesn't split the cache.
func Key(keywords []string) string {
	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached data for key if it was written within the
// TTL. Anything else — missing, unreadable, expired — is a miss.
func (c *Cache) Get(key string) (model.CompetitiveData, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return model.CompetitiveData{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return model.CompetitiveData{}, false
	}
	if time.Since(entry.CachedAt) > c.ttl {
		return model.CompetitiveData{}, false
	}
	return entry.Data, true
}

// Put writes data under key with the current timestamp.
func (c *Cache) Put(key string, data model.CompetitiveData) error {
	entry := cacheEntry{CachedAt: time.Now(), Data: data}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	if err := os.WriteFile(c.path(key), payload, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Clear removes all cache entries.
func (c *Cache) Clear() (int, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
