package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/paths"
)

// Restore rebuilds the in-memory map from the sidecar records on disk.
// Records that fail the integrity checks, or whose canonical file is gone,
// are removed rather than surfaced; corruption here is recoverable by
// reconverting, never fatal. Original source files are never touched.
func (c *ContentCache) Restore() ([]*Entry, error) {
	metaDir := c.paths.GetCacheMetaPath()
	dirEntries, err := os.ReadDir(metaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(ErrRestoreScan, "failed to scan cache metadata directory", err).AddContext("path", metaDir)
	}

	var restored []*Entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), paths.SidecarExtension) {
			continue
		}

		sidecarPath := filepath.Join(metaDir, de.Name())
		wantHash := strings.TrimSuffix(de.Name(), paths.SidecarExtension)

		entry, err := c.loadSidecar(sidecarPath, wantHash)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", sidecarPath).Msg("Dropping corrupt sidecar record")
			c.Invalidate(wantHash)
			continue
		}

		if !fileExistsNonEmpty(entry.CanonicalPath) {
			c.logger.Warn().Str("content_hash", entry.ContentHash).Msg("Canonical file gone, dropping cache record")
			c.Invalidate(entry.ContentHash)
			continue
		}

		c.mu.Lock()
		if _, exists := c.entries[entry.ContentHash]; !exists {
			c.entries[entry.ContentHash] = entry
		}
		c.mu.Unlock()
		restored = append(restored, entry.Clone())
	}

	c.logger.Info().Int("restored", len(restored)).Msg("Cache metadata restored from disk")
	return restored, nil
}

// loadSidecar validates and decodes one sidecar record. A cheap gjson
// field check runs before the full unmarshal so obviously broken records
// are rejected without decoding the whole document.
func (c *ContentCache) loadSidecar(path, wantHash string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(ErrCorruption, "failed to read sidecar record", err)
	}

	if !gjson.ValidBytes(data) {
		return nil, errors.New(ErrCorruption, "sidecar record is not valid JSON", nil)
	}

	hashField := gjson.GetBytes(data, "content_hash").String()
	if hashField == "" || hashField != wantHash {
		return nil, errors.New(ErrCorruption, "sidecar content_hash does not match its filename", nil).
			AddContext("want", wantHash).
			AddContext("got", hashField)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.New(ErrCorruption, "failed to decode sidecar record", err)
	}

	if len(entry.Columns) == 0 {
		return nil, errors.New(ErrCorruption, "sidecar record has no column metadata", nil)
	}

	return &entry, nil
}
