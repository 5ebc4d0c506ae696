package cache

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/paths"
)

// ContentCache deduplicates uploaded files by content hash and owns the
// sidecar records under the cache metadata directory. The in-memory map
// is a write-through cache of those records; it is rebuilt from disk at
// startup through Restore, never lazily.
type ContentCache struct {
	paths   *paths.Manager
	entries map[string]*Entry
	mu      sync.RWMutex
	logger  zerolog.Logger
}

// New creates a content cache rooted at the given path layout.
func New(pm *paths.Manager, logger zerolog.Logger) *ContentCache {
	return &ContentCache{
		paths:   pm,
		entries: make(map[string]*Entry),
		logger:  logger.With().Str("component", "content-cache").Logger(),
	}
}

// Identify computes the content hash for a source file. Same bytes always
// produce the same hash. An unreadable file degrades to a metadata-derived
// hash instead of failing the caller.
func (c *ContentCache) Identify(path string) (string, error) {
	hash, err := hashFile(path)
	if err == nil {
		return hash, nil
	}

	c.logger.Warn().Err(err).Str("path", path).Msg("Content hashing failed, falling back to metadata hash")

	hash, fbErr := fallbackHash(path)
	if fbErr != nil {
		return "", errors.New(ErrIdentifyFailed, "file is unreadable and cannot be statted", fbErr).AddContext("path", path)
	}
	return hash, nil
}

// Lookup returns the cached entry for a hash, or a miss. A miss here is
// definitive: cold entries are only loaded at startup via Restore, so a
// miss always means the file needs conversion. When the entry exists but
// its canonical file has disappeared, the entry is invalidated and the
// lookup reports a miss, healing metadata/disk drift in place.
func (c *ContentCache) Lookup(hash string) (*Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[hash]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if !fileExistsNonEmpty(entry.CanonicalPath) {
		c.logger.Warn().Str("content_hash", hash).Str("canonical_path", entry.CanonicalPath).
			Msg("Canonical file missing, invalidating cache entry")
		c.Invalidate(hash)
		return nil, false
	}

	return entry.Clone(), true
}

// Save persists the entry as a sidecar record and publishes it to the
// in-memory map. The sidecar is written to a temp path and renamed so
// concurrent readers never observe a half-written record. On a persist
// failure the in-memory map is left untouched.
func (c *ContentCache) Save(hash string, entry *Entry) error {
	entry.ContentHash = hash
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}
	if entry.LastAccessedAt.IsZero() {
		entry.LastAccessedAt = entry.CachedAt
	}
	if entry.AccessCount == 0 {
		entry.AccessCount = 1
	}

	if err := c.persistSidecar(entry); err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[hash] = entry.Clone()
	c.mu.Unlock()

	return nil
}

// Touch records a cache hit: access count and last-access time advance in
// memory and on the persisted record. A failed persist logs and keeps the
// hit valid.
func (c *ContentCache) Touch(hash string) (*Entry, error) {
	c.mu.Lock()
	entry, ok := c.entries[hash]
	if !ok {
		c.mu.Unlock()
		return nil, errors.New(ErrEntryNotFound, "no cache entry for hash", nil).AddContext("content_hash", hash)
	}
	entry.AccessCount++
	entry.LastAccessedAt = time.Now()
	snapshot := entry.Clone()
	c.mu.Unlock()

	if err := c.persistSidecar(snapshot); err != nil {
		c.logger.Warn().Err(err).Str("content_hash", hash).Msg("Failed to persist access stats")
	}

	return snapshot, nil
}

// Invalidate removes the in-memory entry and deletes both the canonical
// file and the sidecar record. Files already gone are not an error.
func (c *ContentCache) Invalidate(hash string) {
	c.mu.Lock()
	delete(c.entries, hash)
	c.mu.Unlock()

	for _, path := range []string{c.paths.CanonicalFile(hash), c.paths.SidecarFile(hash)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove cache artifact")
		}
	}
}

// Cleanup removes entries older than maxAge with access counts at or
// below minAccessCount. Entries whose canonical file no longer exists are
// removed unconditionally.
func (c *ContentCache) Cleanup(maxAge time.Duration, minAccessCount int64) CleanupResult {
	cutoff := time.Now().Add(-maxAge)

	c.mu.RLock()
	candidates := make([]*Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		candidates = append(candidates, entry.Clone())
	}
	c.mu.RUnlock()

	var result CleanupResult
	for _, entry := range candidates {
		missing := !fileExistsNonEmpty(entry.CanonicalPath)
		stale := entry.CachedAt.Before(cutoff) && entry.AccessCount <= minAccessCount
		if !missing && !stale {
			continue
		}

		c.Invalidate(entry.ContentHash)
		result.Removed++
		if !missing {
			result.BytesFreed += entry.CanonicalSize
		}
	}

	if result.Removed > 0 {
		c.logger.Info().Int("removed", result.Removed).Int64("bytes_freed", result.BytesFreed).Msg("Cache cleanup completed")
	}
	return result
}

// GetStats summarizes the live cache.
func (c *ContentCache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{Entries: len(c.entries)}
	for _, entry := range c.entries {
		stats.TotalCanonicalSize += entry.CanonicalSize
		stats.TotalOriginalSize += entry.OriginalSize
	}
	if stats.TotalCanonicalSize > 0 {
		stats.CompressionRatio = float64(stats.TotalOriginalSize) / float64(stats.TotalCanonicalSize)
	}
	return stats
}

// Paths exposes the cache path layout to collaborators.
func (c *ContentCache) Paths() *paths.Manager {
	return c.paths
}

func (c *ContentCache) persistSidecar(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return errors.New(ErrSidecarEncoding, "failed to encode sidecar record", err).AddContext("content_hash", entry.ContentHash)
	}

	target := c.paths.SidecarFile(entry.ContentHash)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.New(ErrSaveFailed, "failed to write sidecar record", err).AddContext("path", tmp)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return errors.New(ErrSaveFailed, "failed to publish sidecar record", err).AddContext("path", target)
	}
	return nil
}

func fileExistsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
