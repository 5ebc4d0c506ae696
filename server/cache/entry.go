package cache

import "time"

// Entry is the persisted per-hash cache record. It is stored 1:1 as a
// JSON sidecar next to the canonical parquet file and mirrored in memory.
type Entry struct {
	ContentHash      string    `json:"content_hash"`
	OriginalName     string    `json:"original_name"`
	Extension        string    `json:"extension"`
	SourcePath       string    `json:"source_path,omitempty"`
	Columns          []string  `json:"columns"`
	TotalRows        int64     `json:"total_rows"`
	OriginalSize     int64     `json:"original_size_bytes"`
	CanonicalSize    int64     `json:"canonical_size_bytes"`
	CompressionRatio float64   `json:"compression_ratio"`
	Method           string    `json:"method"`
	CachedAt         time.Time `json:"cached_at"`
	LastAccessedAt   time.Time `json:"last_accessed_at"`
	AccessCount      int64     `json:"access_count"`
	CanonicalPath    string    `json:"canonical_path"`
}

// Clone returns a copy safe to hand outside the cache lock.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Columns = append([]string(nil), e.Columns...)
	return &out
}

// CleanupResult reports what a cleanup pass removed.
type CleanupResult struct {
	Removed    int
	BytesFreed int64
}

// Stats summarizes the live cache for status surfaces.
type Stats struct {
	Entries            int     `json:"entries"`
	TotalCanonicalSize int64   `json:"total_canonical_bytes"`
	TotalOriginalSize  int64   `json:"total_original_bytes"`
	CompressionRatio   float64 `json:"compression_ratio"`
}
