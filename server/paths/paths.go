package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Suffixes of the hash-keyed cache layout. Canonical data and sidecar
// metadata live in sibling directories, both addressed by content hash.
const (
	CanonicalExtension = ".parquet"
	SidecarExtension   = ".meta.json"
)

// Manager handles standardized path construction for the dataset cache.
type Manager struct {
	basePath string
}

// NewManager creates a new path manager rooted at basePath.
func NewManager(basePath string) *Manager {
	return &Manager{basePath: basePath}
}

// GetBasePath returns the base data path.
func (m *Manager) GetBasePath() string {
	return m.basePath
}

// GetCacheDataPath returns the directory holding canonical parquet files.
func (m *Manager) GetCacheDataPath() string {
	return filepath.Join(m.basePath, "cache", "data")
}

// GetCacheMetaPath returns the directory holding per-hash sidecar records.
func (m *Manager) GetCacheMetaPath() string {
	return filepath.Join(m.basePath, "cache", "meta")
}

// GetUploadsPath returns the scratch directory for incoming files.
func (m *Manager) GetUploadsPath() string {
	return filepath.Join(m.basePath, "uploads")
}

// GetInternalMetadataPath returns the internal metadata directory.
func (m *Manager) GetInternalMetadataPath() string {
	return filepath.Join(m.basePath, ".eps")
}

// GetLinksDBPath returns the SQLite database holding logical-id links.
func (m *Manager) GetLinksDBPath() string {
	return filepath.Join(m.GetInternalMetadataPath(), "links.db")
}

// CanonicalFile returns the canonical parquet path for a content hash.
func (m *Manager) CanonicalFile(hash string) string {
	return filepath.Join(m.GetCacheDataPath(), hash+CanonicalExtension)
}

// SidecarFile returns the sidecar record path for a content hash.
func (m *Manager) SidecarFile(hash string) string {
	return filepath.Join(m.GetCacheMetaPath(), hash+SidecarExtension)
}

// EnsureDirectoryStructure creates all necessary directories.
func (m *Manager) EnsureDirectoryStructure() error {
	dirs := []string{
		m.basePath,
		m.GetCacheDataPath(),
		m.GetCacheMetaPath(),
		m.GetUploadsPath(),
		m.GetInternalMetadataPath(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
