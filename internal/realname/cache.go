// Package realname keeps the durable handle → real name mapping behind the
// "@handle (Real Name)" author folders. How names get populated is up to the
// caller; the cache is a plain key/value store that is never pruned.
package realname

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/relayout/internal/storage"
)

// FileName is the cache file inside the working directory.
const FileName = ".real-name-cache.json"

const cacheVersion = 1

type cacheFile struct {
	Version     int               `json:"version"`
	LastUpdated string            `json:"lastUpdated,omitempty"`
	Entries     map[string]string `json:"entries"`
}

// Cache is the in-memory view of the cache file.
type Cache struct {
	mu    sync.RWMutex
	data  cacheFile
	store storage.Provider
	now   func() time.Time
}

// Load reads the cache from store. A missing, unreadable or malformed file
// yields an empty cache and a warning; Load never fails.
func Load(store storage.Provider, logger *slog.Logger) *Cache {
	c := &Cache{
		data:  cacheFile{Version: cacheVersion, Entries: map[string]string{}},
		store: store,
		now:   time.Now,
	}

	raw, err := store.Read(FileName)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("realname: cache unreadable, starting empty", slog.String("error", err.Error()))
		}
		return c
	}

	var parsed cacheFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		logger.Warn("realname: cache malformed, starting empty", slog.String("error", err.Error()))
		return c
	}
	if parsed.Version == 0 {
		parsed.Version = cacheVersion
	}
	if parsed.Entries == nil {
		parsed.Entries = map[string]string{}
	}
	c.data = parsed
	return c
}

// Get returns the real name recorded for handle.
func (c *Cache) Get(handle string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.data.Entries[key(handle)]
	return name, ok
}

// Set records name for handle and persists the cache immediately.
func (c *Cache) Set(handle, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Entries[key(handle)] = name
	return c.saveLocked()
}

// Merge records every handle → name pair and persists the cache once.
func (c *Cache) Merge(entries map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for handle, name := range entries {
		c.data.Entries[key(handle)] = name
	}
	return c.saveLocked()
}

// Save stamps lastUpdated and rewrites the cache file.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data.Entries)
}

// LastUpdated returns the ISO-8601 time of the last save, if any.
func (c *Cache) LastUpdated() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.LastUpdated
}

func (c *Cache) saveLocked() error {
	c.data.LastUpdated = c.now().UTC().Format(time.RFC3339Nano)
	out, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("realname: encode: %w", err)
	}
	if err := c.store.Write(FileName, out); err != nil {
		return fmt.Errorf("realname: save: %w", err)
	}
	return nil
}

func key(handle string) string {
	if strings.HasPrefix(handle, "@") {
		return handle
	}
	return "@" + handle
}
