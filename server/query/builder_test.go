package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

func lazyEntry(columns ...string) *registry.Entry {
	return &registry.Entry{
		LogicalID:     "upload-1",
		State:         registry.StateLazy,
		CanonicalPath: "/data/cache/data/abc.parquet",
		Source:        &cache.Entry{Columns: columns},
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"name"`, QuoteIdent("name"))
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
	assert.Equal(t, `"a""""b"`, QuoteIdent(`a""b`))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, `'x'`, QuoteLiteral("x"))
	assert.Equal(t, `'o''brien'`, QuoteLiteral("o'brien"))
	assert.Equal(t, `''`, QuoteLiteral(""))
}

func TestBuildPlainQuery(t *testing.T) {
	b := Build(&Request{Page: 1, PageSize: 50}, lazyEntry("id", "name"), nil)

	assert.Equal(t, "SELECT * FROM read_parquet('/data/cache/data/abc.parquet') LIMIT 50 OFFSET 0", b.SelectSQL)
	assert.Equal(t, "SELECT COUNT(*) FROM read_parquet('/data/cache/data/abc.parquet')", b.CountSQL)
	assert.Empty(t, b.Warnings)
}

func TestBuildOperators(t *testing.T) {
	cases := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"eq", Filter{Column: "status", Operator: "eq", Value: "A"}, `"status" = 'A'`},
		{"neq", Filter{Column: "status", Operator: "neq", Value: "A"}, `"status" <> 'A'`},
		{"contains", Filter{Column: "name", Operator: "contains", Value: "Ana"}, `LOWER("name") LIKE '%ana%'`},
		{"not_contains", Filter{Column: "name", Operator: "not_contains", Value: "Ana"}, `LOWER("name") NOT LIKE '%ana%'`},
		{"starts_with", Filter{Column: "name", Operator: "starts_with", Value: "An"}, `LOWER("name") LIKE 'an%'`},
		{"ends_with", Filter{Column: "name", Operator: "ends_with", Value: "na"}, `LOWER("name") LIKE '%na'`},
		{"in", Filter{Column: "status", Operator: "in", Values: []string{"A", "B"}}, `"status" IN ('A', 'B')`},
		{"not_in", Filter{Column: "status", Operator: "not_in", Values: []string{"A"}}, `"status" NOT IN ('A')`},
		{"gt", Filter{Column: "age", Operator: "gt", Value: "30"}, `TRY_CAST("age" AS DOUBLE) > TRY_CAST('30' AS DOUBLE)`},
		{"lte", Filter{Column: "age", Operator: "lte", Value: "30"}, `TRY_CAST("age" AS DOUBLE) <= TRY_CAST('30' AS DOUBLE)`},
		{"between", Filter{Column: "age", Operator: "between", Values: []string{"20", "30"}}, `TRY_CAST("age" AS DOUBLE) BETWEEN TRY_CAST('20' AS DOUBLE) AND TRY_CAST('30' AS DOUBLE)`},
		{"is_null", Filter{Column: "age", Operator: "is_null"}, `("age" IS NULL OR "age" = '')`},
		{"is_not_null", Filter{Column: "age", Operator: "is_not_null"}, `("age" IS NOT NULL AND "age" <> '')`},
		{"regex", Filter{Column: "name", Operator: "regex", Value: "^a.*"}, `regexp_matches("name", '^a.*')`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := Build(&Request{Filters: []Filter{tc.filter}}, lazyEntry("id", "name", "status", "age"), nil)
			assert.Contains(t, b.SelectSQL, "WHERE "+tc.want)
			assert.Empty(t, b.Warnings)
		})
	}
}

func TestBuildUnknownOperatorIsDroppedWithWarning(t *testing.T) {
	b := Build(&Request{Filters: []Filter{
		{Column: "status", Operator: "eq", Value: "A"},
		{Column: "status", Operator: "sounds_like", Value: "A"},
	}}, lazyEntry("status"), nil)

	assert.Contains(t, b.SelectSQL, `WHERE "status" = 'A'`)
	assert.NotContains(t, b.SelectSQL, "sounds_like")
	require.Len(t, b.Warnings, 1)
	assert.Contains(t, b.Warnings[0], "sounds_like")
}

func TestBuildCountSharesWhereClause(t *testing.T) {
	b := Build(&Request{
		Filters: []Filter{{Column: "status", Operator: "in", Values: []string{"A", "B"}}},
		Search:  "ana",
		Page:    2,
		PageSize: 10,
	}, lazyEntry("status", "name"), []string{"name"})

	wherePos := strings.Index(b.SelectSQL, " WHERE ")
	require.Greater(t, wherePos, 0)
	limitPos := strings.Index(b.SelectSQL, " LIMIT ")
	require.Greater(t, limitPos, wherePos)

	selectWhere := b.SelectSQL[wherePos:limitPos]
	assert.True(t, strings.HasSuffix(b.CountSQL, selectWhere), "count and data queries must share the WHERE clause")
}

func TestBuildSearchOverTextColumns(t *testing.T) {
	b := Build(&Request{Search: "O'Neil"}, lazyEntry("id", "name", "city"), []string{"name", "city"})

	assert.Contains(t, b.SelectSQL, `(LOWER("name") LIKE '%o''neil%' OR LOWER("city") LIKE '%o''neil%')`)

	// No text columns makes search a no-op, not an error.
	b = Build(&Request{Search: "ana"}, lazyEntry("id"), nil)
	assert.NotContains(t, b.SelectSQL, "WHERE")
}

func TestBuildInjectionViaColumnName(t *testing.T) {
	b := Build(&Request{Filters: []Filter{
		{Column: `x"; DROP TABLE y; --`, Operator: "eq", Value: "v"},
	}}, lazyEntry("x"), nil)

	assert.Contains(t, b.SelectSQL, `"x""; DROP TABLE y; --" = 'v'`)
}

func TestBuildPaginationClamp(t *testing.T) {
	entry := lazyEntry("id")

	b := Build(&Request{Page: 0, PageSize: 3}, entry, nil)
	assert.Equal(t, 1, b.Page)
	assert.Equal(t, 10, b.PageSize)
	assert.Contains(t, b.SelectSQL, "LIMIT 10 OFFSET 0")

	b = Build(&Request{Page: 4, PageSize: 100000}, entry, nil)
	assert.Equal(t, 2000, b.PageSize)
	assert.Contains(t, b.SelectSQL, "LIMIT 2000 OFFSET 6000")

	b = Build(&Request{Page: 1}, entry, nil)
	assert.Equal(t, 50, b.PageSize)
}

func TestBuildProjectionAndSort(t *testing.T) {
	b := Build(&Request{
		Columns: []string{"name", "ghost"},
		Sort:    &Sort{Column: "name", Direction: "desc"},
	}, lazyEntry("id", "name"), nil)

	assert.True(t, strings.HasPrefix(b.SelectSQL, `SELECT "name" FROM`))
	assert.Contains(t, b.SelectSQL, `ORDER BY "name" DESC`)
	require.Len(t, b.Warnings, 1)
	assert.Contains(t, b.Warnings[0], "ghost")
}

func TestBuildUsesNamedRelationAfterPromotion(t *testing.T) {
	entry := &registry.Entry{
		State:     registry.StateView,
		TableName: "ds_abc123_x",
		Source:    &cache.Entry{Columns: []string{"id"}},
	}
	b := Build(&Request{}, entry, nil)
	assert.Contains(t, b.SelectSQL, `FROM "ds_abc123_x"`)
}
