// File: internal/cache/cache.go

// Package cache provides a small TTL cache persisted as JSON files, with an
// in-memory LRU front. Three independent namespaces back the pipeline:
// history scans keyed by repository state, intent records keyed by file
// content hash, and generated explanations keyed by context fingerprint.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Namespace names. Each gets its own directory and LRU segment.
const (
	NamespaceHistory      = "history"
	NamespaceIntent       = "intent"
	NamespaceExplanations = "explanations"
)

var namespaces = []string{NamespaceHistory, NamespaceIntent, NamespaceExplanations}

// entry is the persisted envelope. Data stays raw so callers decode into
// their own types.
type entry struct {
	Timestamp time.Time           `json:"timestamp"`
	Data      jsoniter.RawMessage `json:"data"`
}

// Cache is safe for concurrent use. Reads and writes are atomic per key:
// writes go through a temp file and rename, so a concurrent reader sees
// either the old entry or the new one, never a torn file.
type Cache struct {
	dir    string
	ttl    time.Duration
	logger *zap.Logger
	memory map[string]*lru.Cache[string, entry]
}

// New creates the cache rooted at dir, creating the namespace directories.
func New(dir string, ttl time.Duration, memoryEntries int, logger *zap.Logger) (*Cache, error) {
	if memoryEntries <= 0 {
		memoryEntries = 128
	}
	c := &Cache{
		dir:    dir,
		ttl:    ttl,
		logger: logger.Named("cache"),
		memory: make(map[string]*lru.Cache[string, entry], len(namespaces)),
	}
	for _, ns := range namespaces {
		if err := os.MkdirAll(filepath.Join(dir, ns), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache namespace %s: %w", ns, err)
		}
		l, err := lru.New[string, entry](memoryEntries)
		if err != nil {
			return nil, err
		}
		c.memory[ns] = l
	}
	return c, nil
}

// Get decodes the cached value for key into out. The second return is false
// on miss, expiry, or decode failure; a bad entry is treated as a miss, never
// an error, since the caller can always recompute.
func (c *Cache) Get(namespace, key string, out any) bool {
	mem, ok := c.memory[namespace]
	if !ok {
		return false
	}

	e, hit := mem.Get(key)
	if !hit {
		raw, err := os.ReadFile(c.entryPath(namespace, key))
		if err != nil {
			return false
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			c.logger.Warn("discarding unreadable cache entry",
				zap.String("namespace", namespace), zap.Error(err))
			return false
		}
		mem.Add(key, e)
	}

	if c.expired(e.Timestamp) {
		mem.Remove(key)
		return false
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return false
	}
	return true
}

// Put stores value under key. Failures are logged, not returned: the cache is
// an accelerator and must never fail an analysis.
func (c *Cache) Put(namespace, key string, value any) {
	mem, ok := c.memory[namespace]
	if !ok {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache value not serializable", zap.Error(err))
		return
	}
	e := entry{Timestamp: time.Now(), Data: data}
	mem.Add(key, e)

	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	path := c.entryPath(namespace, key)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
		return
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		c.logger.Warn("cache write failed", zap.Error(err))
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		c.logger.Warn("cache rename failed", zap.Error(err))
	}
}

// Clear removes every entry in every namespace.
func (c *Cache) Clear() error {
	for _, ns := range namespaces {
		c.memory[ns].Purge()
		dir := filepath.Join(c.dir, ns)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, de := range entries {
			if err := os.Remove(filepath.Join(dir, de.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// CleanupExpired removes on-disk entries older than the TTL and returns how
// many were deleted.
func (c *Cache) CleanupExpired() (int, error) {
	removed := 0
	for _, ns := range namespaces {
		dir := filepath.Join(c.dir, ns)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		for _, de := range entries {
			path := filepath.Join(dir, de.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var e entry
			if err := json.Unmarshal(raw, &e); err != nil || c.expired(e.Timestamp) {
				if os.Remove(path) == nil {
					removed++
				}
			}
		}
	}
	return removed, nil
}

// Stats reports entry counts and total bytes per namespace.
func (c *Cache) Stats() (map[string]NamespaceStats, error) {
	stats := make(map[string]NamespaceStats, len(namespaces))
	for _, ns := range namespaces {
		dir := filepath.Join(c.dir, ns)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				stats[ns] = NamespaceStats{}
				continue
			}
			return nil, err
		}
		var s NamespaceStats
		for _, de := range entries {
			info, err := de.Info()
			if err != nil {
				continue
			}
			s.Entries++
			s.Bytes += info.Size()
		}
		stats[ns] = s
	}
	return stats, nil
}

// NamespaceStats summarizes one namespace for the cache CLI.
type NamespaceStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

func (c *Cache) expired(ts time.Time) bool {
	return c.ttl > 0 && time.Since(ts) > c.ttl
}

func (c *Cache) entryPath(namespace, key string) string {
	return filepath.Join(c.dir, namespace, Key(key)+".json")
}

// Key derives a fixed-length filename-safe key from arbitrary input.
func Key(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
