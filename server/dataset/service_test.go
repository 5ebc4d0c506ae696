package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/config"
	"github.com/danyguancha/soft-eps-v2-sub000/server/convert"
	"github.com/danyguancha/soft-eps-v2-sub000/server/engine"
	"github.com/danyguancha/soft-eps-v2-sub000/server/join"
	"github.com/danyguancha/soft-eps-v2-sub000/server/paths"
	"github.com/danyguancha/soft-eps-v2-sub000/server/query"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

// stubEngine satisfies every collaborator's engine interface; queries
// themselves are covered by the query and join package tests.
type stubEngine struct{}

func (stubEngine) Execute(ctx context.Context, sql string) (*engine.Result, error) {
	return &engine.Result{Columns: []string{"count"}, Rows: [][]interface{}{{int64(0)}}}, nil
}

func (stubEngine) Describe(ctx context.Context, sql string) ([]engine.Column, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *cache.ContentCache) {
	t.Helper()
	pm := paths.NewManager(t.TempDir())
	require.NoError(t, pm.EnsureDirectoryStructure())

	logger := zerolog.Nop()
	eng := stubEngine{}

	cc := cache.New(pm, logger)
	pipeline := convert.New(cc, eng, &config.ConvertConfig{
		SpreadsheetDirectMB: 15,
		TimeoutMinMinutes:   2,
		TimeoutMaxMinutes:   20,
		MBPerMinute:         8,
	}, logger)
	reg := registry.New(eng, nil, logger)
	executor := query.NewExecutor(eng, reg, pipeline, logger)
	joiner := join.New(eng, reg, logger)

	return NewService(cc, pipeline, reg, executor, joiner, logger), cc
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIngestConvertsOnFirstUpload(t *testing.T) {
	svc, _ := newTestService(t)
	src := writeCSV(t, "id,name\n1,ana\n2,luis\n")

	res, err := svc.Ingest(context.Background(), src, "people.csv", ".csv", "upload-1")
	require.NoError(t, err)

	assert.False(t, res.FromCache)
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	assert.Equal(t, int64(2), res.TotalRows)
	assert.NotEmpty(t, res.ContentHash)

	entry, ok := svc.registry.Lookup("upload-1")
	require.True(t, ok)
	assert.Equal(t, registry.StateLazy, entry.State)
}

func TestIngestIdenticalBytesHitsCache(t *testing.T) {
	svc, cc := newTestService(t)
	src := writeCSV(t, "id,name\n1,ana\n2,luis\n")
	ctx := context.Background()

	first, err := svc.Ingest(ctx, src, "people.csv", ".csv", "upload-1")
	require.NoError(t, err)
	second, err := svc.Ingest(ctx, src, "people.csv", ".csv", "upload-2")
	require.NoError(t, err)

	assert.False(t, first.FromCache)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.ContentHash, second.ContentHash)

	// The hit advanced the access count on the shared cache entry.
	entry, ok := cc.Lookup(first.ContentHash)
	require.True(t, ok)
	assert.Equal(t, int64(2), entry.AccessCount)

	// Both logical ids are registered and point at the same canonical file.
	a, ok := svc.registry.Lookup("upload-1")
	require.True(t, ok)
	b, ok := svc.registry.Lookup("upload-2")
	require.True(t, ok)
	assert.Equal(t, a.CanonicalPath, b.CanonicalPath)
}

func TestIngestValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Ingest(context.Background(), "", "x.csv", ".csv", "upload-1")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidRequest))

	_, err = svc.Ingest(context.Background(), "/tmp/x.csv", "x.csv", ".csv", "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInvalidRequest))
}

func TestEvictThenQueryMisses(t *testing.T) {
	svc, _ := newTestService(t)
	src := writeCSV(t, "id,name\n1,ana\n")
	ctx := context.Background()

	_, err := svc.Ingest(ctx, src, "people.csv", ".csv", "upload-1")
	require.NoError(t, err)
	require.NoError(t, svc.Evict(ctx, "upload-1"))

	_, err = svc.Query(ctx, &query.Request{LogicalID: "upload-1"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, registry.ErrMiss))
}

func TestCacheStatsReflectIngest(t *testing.T) {
	svc, _ := newTestService(t)
	src := writeCSV(t, "id,name\n1,ana\n")

	_, err := svc.Ingest(context.Background(), src, "people.csv", ".csv", "upload-1")
	require.NoError(t, err)

	stats := svc.CacheStats()
	assert.Equal(t, 1, stats.Entries)
	assert.Greater(t, stats.TotalCanonicalSize, int64(0))
}
