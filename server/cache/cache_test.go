package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danyguancha/soft-eps-v2-sub000/server/paths"
)

func newTestCache(t *testing.T) *ContentCache {
	t.Helper()
	pm := paths.NewManager(t.TempDir())
	require.NoError(t, pm.EnsureDirectoryStructure())
	return New(pm, zerolog.Nop())
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writeCanonical puts a non-empty placeholder at the canonical path so
// lookups see the file as present.
func writeCanonical(t *testing.T, c *ContentCache, hash string) string {
	t.Helper()
	return writeFile(t, c.paths.CanonicalFile(hash), "parquet-bytes")
}

func TestIdentifyIsDeterministic(t *testing.T) {
	c := newTestCache(t)
	src := writeFile(t, filepath.Join(t.TempDir(), "a.csv"), "id,name\n1,x\n")

	h1, err := c.Identify(src)
	require.NoError(t, err)
	h2, err := c.Identify(src)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 32)
}

func TestIdentifyChangesWithContent(t *testing.T) {
	c := newTestCache(t)
	dir := t.TempDir()

	h1, err := c.Identify(writeFile(t, filepath.Join(dir, "a.csv"), "id,name\n1,x\n"))
	require.NoError(t, err)
	h2, err := c.Identify(writeFile(t, filepath.Join(dir, "b.csv"), "id,name\n1,y\n"))
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestSaveAndLookup(t *testing.T) {
	c := newTestCache(t)
	hash := "deadbeefdeadbeefdeadbeefdeadbeef"
	canonical := writeCanonical(t, c, hash)

	err := c.Save(hash, &Entry{
		OriginalName:  "people.csv",
		Columns:       []string{"id", "name"},
		TotalRows:     2,
		CanonicalPath: canonical,
	})
	require.NoError(t, err)

	// Sidecar was persisted.
	_, err = os.Stat(c.paths.SidecarFile(hash))
	require.NoError(t, err)

	entry, ok := c.Lookup(hash)
	require.True(t, ok)
	assert.Equal(t, hash, entry.ContentHash)
	assert.Equal(t, []string{"id", "name"}, entry.Columns)
	assert.Equal(t, int64(1), entry.AccessCount)
	assert.False(t, entry.CachedAt.IsZero())
}

func TestLookupMissIsDefinitive(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Lookup("0000000000000000000000000000dead")
	assert.False(t, ok)
}

func TestLookupInvalidatesWhenCanonicalMissing(t *testing.T) {
	c := newTestCache(t)
	hash := "cafebabecafebabecafebabecafebabe"
	canonical := writeCanonical(t, c, hash)

	require.NoError(t, c.Save(hash, &Entry{CanonicalPath: canonical}))
	require.NoError(t, os.Remove(canonical))

	_, ok := c.Lookup(hash)
	assert.False(t, ok)

	// The sidecar was cleaned up along with the in-memory entry.
	_, err := os.Stat(c.paths.SidecarFile(hash))
	assert.True(t, os.IsNotExist(err))
}

func TestTouchIncrementsAccessStats(t *testing.T) {
	c := newTestCache(t)
	hash := "11111111111111111111111111111111"
	canonical := writeCanonical(t, c, hash)

	require.NoError(t, c.Save(hash, &Entry{CanonicalPath: canonical}))

	entry, err := c.Touch(hash)
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.AccessCount)

	entry, err = c.Touch(hash)
	require.NoError(t, err)
	assert.Equal(t, int64(3), entry.AccessCount)

	_, err = c.Touch("22222222222222222222222222222222")
	assert.Error(t, err)
}

func TestCleanupPolicy(t *testing.T) {
	c := newTestCache(t)

	// Old and cold: removed.
	oldHash := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	writeCanonical(t, c, oldHash)
	require.NoError(t, c.Save(oldHash, &Entry{
		CanonicalPath: c.paths.CanonicalFile(oldHash),
		CanonicalSize: 100,
		CachedAt:      time.Now().Add(-72 * time.Hour),
	}))

	// Recent: kept.
	newHash := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	writeCanonical(t, c, newHash)
	require.NoError(t, c.Save(newHash, &Entry{
		CanonicalPath: c.paths.CanonicalFile(newHash),
		CanonicalSize: 100,
	}))

	// Old but hot: kept.
	hotHash := "cccccccccccccccccccccccccccccccc"
	writeCanonical(t, c, hotHash)
	require.NoError(t, c.Save(hotHash, &Entry{
		CanonicalPath: c.paths.CanonicalFile(hotHash),
		CanonicalSize: 100,
		CachedAt:      time.Now().Add(-72 * time.Hour),
		AccessCount:   50,
	}))

	// Canonical file gone: removed regardless of age.
	goneHash := "dddddddddddddddddddddddddddddddd"
	writeCanonical(t, c, goneHash)
	require.NoError(t, c.Save(goneHash, &Entry{CanonicalPath: c.paths.CanonicalFile(goneHash)}))
	require.NoError(t, os.Remove(c.paths.CanonicalFile(goneHash)))

	result := c.Cleanup(24*time.Hour, 1)
	assert.Equal(t, 2, result.Removed)
	assert.Equal(t, int64(100), result.BytesFreed)

	_, ok := c.Lookup(newHash)
	assert.True(t, ok)
	_, ok = c.Lookup(hotHash)
	assert.True(t, ok)
	_, ok = c.Lookup(oldHash)
	assert.False(t, ok)
}

func TestRestoreRebuildsMap(t *testing.T) {
	c := newTestCache(t)
	hash := "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	canonical := writeCanonical(t, c, hash)
	require.NoError(t, c.Save(hash, &Entry{
		OriginalName:  "survivors.csv",
		Columns:       []string{"a"},
		CanonicalPath: canonical,
	}))

	// Fresh cache over the same directories simulates a restart.
	rebuilt := New(c.paths, zerolog.Nop())
	entries, err := rebuilt.Restore()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "survivors.csv", entries[0].OriginalName)

	entry, ok := rebuilt.Lookup(hash)
	require.True(t, ok)
	assert.Equal(t, hash, entry.ContentHash)
}

func TestRestoreDropsCorruptAndOrphanedSidecars(t *testing.T) {
	c := newTestCache(t)

	// Valid entry.
	good := "99999999999999999999999999999999"
	writeCanonical(t, c, good)
	require.NoError(t, c.Save(good, &Entry{Columns: []string{"a"}, CanonicalPath: c.paths.CanonicalFile(good)}))

	// Sidecar whose canonical file is missing.
	orphan := "88888888888888888888888888888888"
	writeCanonical(t, c, orphan)
	require.NoError(t, c.Save(orphan, &Entry{Columns: []string{"a"}, CanonicalPath: c.paths.CanonicalFile(orphan)}))
	require.NoError(t, os.Remove(c.paths.CanonicalFile(orphan)))

	// Unparseable sidecar.
	corrupt := "77777777777777777777777777777777"
	writeFile(t, c.paths.SidecarFile(corrupt), "{not json")

	rebuilt := New(c.paths, zerolog.Nop())
	entries, err := rebuilt.Restore()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, good, entries[0].ContentHash)

	// Bad sidecars were removed from disk, not just skipped.
	_, err = os.Stat(c.paths.SidecarFile(orphan))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(c.paths.SidecarFile(corrupt))
	assert.True(t, os.IsNotExist(err))
}

func TestRestoreIsIdempotent(t *testing.T) {
	c := newTestCache(t)
	hash := "66666666666666666666666666666666"
	writeCanonical(t, c, hash)
	require.NoError(t, c.Save(hash, &Entry{Columns: []string{"a"}, CanonicalPath: c.paths.CanonicalFile(hash)}))

	_, err := c.Restore()
	require.NoError(t, err)
	_, err = c.Restore()
	require.NoError(t, err)

	assert.Equal(t, 1, c.GetStats().Entries)
}
