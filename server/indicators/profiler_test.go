package indicators

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/engine"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

type stubEngine struct {
	executed []string
}

func (s *stubEngine) Execute(ctx context.Context, sql string) (*engine.Result, error) {
	s.executed = append(s.executed, sql)
	if strings.HasPrefix(sql, "SELECT COUNT(*)") {
		return &engine.Result{Rows: [][]interface{}{{int64(10)}}}, nil
	}
	// non_empty, distinct, top value
	return &engine.Result{Rows: [][]interface{}{{int64(8), int64(3), "A"}}}, nil
}

type stubRegistry struct {
	entry *registry.Entry
}

func (s *stubRegistry) Lookup(logicalID string) (*registry.Entry, bool) {
	if s.entry == nil || s.entry.LogicalID != logicalID {
		return nil, false
	}
	return s.entry, true
}

func TestProfileComputesCoverage(t *testing.T) {
	eng := &stubEngine{}
	reg := &stubRegistry{entry: &registry.Entry{
		LogicalID:     "upload-1",
		State:         registry.StateLazy,
		CanonicalPath: "/data/abc.parquet",
		Source:        &cache.Entry{Columns: []string{"status", "dni"}},
	}}

	p := New(eng, reg, zerolog.Nop())
	profile, err := p.Profile(context.Background(), "upload-1")
	require.NoError(t, err)

	assert.Equal(t, int64(10), profile.TotalRows)
	require.Len(t, profile.Columns, 2)

	col := profile.Columns[0]
	assert.Equal(t, "status", col.Name)
	assert.Equal(t, int64(8), col.NonEmptyCount)
	assert.Equal(t, int64(3), col.DistinctCount)
	assert.InDelta(t, 0.8, col.Coverage, 1e-9)
	assert.InDelta(t, 0.2, col.NullRate, 1e-9)
	assert.Equal(t, "A", col.TopValue)

	// One row count plus one aggregate per column.
	assert.Len(t, eng.executed, 3)
	// Empty cells count as nulls in every aggregate.
	assert.Contains(t, eng.executed[1], `NULLIF("status", '')`)
}

func TestProfileUnknownID(t *testing.T) {
	p := New(&stubEngine{}, &stubRegistry{}, zerolog.Nop())

	_, err := p.Profile(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, registry.ErrMiss))
}
