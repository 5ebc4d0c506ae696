package join

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/engine"
	"github.com/danyguancha/soft-eps-v2-sub000/server/query"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

// Spec describes a first-match left join between two registered
// datasets. Only left-outer joins are supported; the right side is
// deduplicated by key before joining so rows never multiply.
type Spec struct {
	LeftID       string   `json:"left_id"`
	RightID      string   `json:"right_id"`
	LeftKey      string   `json:"left_key"`
	RightKey     string   `json:"right_key"`
	LeftColumns  []string `json:"left_columns,omitempty"`
	RightColumns []string `json:"right_columns,omitempty"`
}

// Result is the join output. Warnings carries the row-count invariant
// violation when one is detected; the rows are still returned.
type Result struct {
	Rows           [][]interface{} `json:"rows"`
	Columns        []string        `json:"columns"`
	MatchedCount   int64           `json:"matched_count"`
	UnmatchedCount int64           `json:"unmatched_count"`
	TotalRows      int64           `json:"total_rows"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// Engine is the slice of the gateway the join engine needs.
type Engine interface {
	Execute(ctx context.Context, sql string) (*engine.Result, error)
}

// Registry is the slice of the table registry the join engine needs.
type Registry interface {
	Lookup(logicalID string) (*registry.Entry, bool)
}

// Joiner builds and executes VLOOKUP-style joins.
type Joiner struct {
	engine   Engine
	registry Registry
	logger   zerolog.Logger
}

func New(eng Engine, reg Registry, logger zerolog.Logger) *Joiner {
	return &Joiner{
		engine:   eng,
		registry: reg,
		logger:   logger.With().Str("component", "join-engine").Logger(),
	}
}

// Join executes a Spec and checks the row-count invariant: the result
// must have exactly as many rows as the left table. A violation is an
// engine-level anomaly and is surfaced as a warning alongside the rows,
// never hidden and never a hard failure.
func (j *Joiner) Join(ctx context.Context, spec *Spec) (*Result, error) {
	if err := validate(spec); err != nil {
		return nil, err
	}

	left, ok := j.registry.Lookup(spec.LeftID)
	if !ok {
		return nil, errors.New(registry.ErrMiss, "left dataset is not registered", nil).AddContext("logical_id", spec.LeftID)
	}
	right, ok := j.registry.Lookup(spec.RightID)
	if !ok {
		return nil, errors.New(registry.ErrMiss, "right dataset is not registered", nil).AddContext("logical_id", spec.RightID)
	}

	joinSQL, countSQL := buildSQL(spec, left, right)

	counts, err := j.engine.Execute(ctx, countSQL)
	if err != nil {
		return nil, errors.New(ErrCountFailed, "join count query failed", err).
			AddContext("left_id", spec.LeftID).
			AddContext("right_id", spec.RightID)
	}
	matched, total := parseCounts(counts)

	res, err := j.engine.Execute(ctx, joinSQL)
	if err != nil {
		return nil, errors.New(ErrExecutionFailed, "join query failed", err).
			AddContext("left_id", spec.LeftID).
			AddContext("right_id", spec.RightID).
			AddContext("sql", joinSQL)
	}

	result := &Result{
		Rows:           res.Rows,
		Columns:        res.Columns,
		MatchedCount:   matched,
		UnmatchedCount: total - matched,
		TotalRows:      total,
	}

	leftCount, err := j.leftRowCount(ctx, left)
	if err != nil {
		j.logger.Warn().Err(err).Str("left_id", spec.LeftID).Msg("Could not verify join row-count invariant")
	} else if total != leftCount {
		warning := fmt.Sprintf("join produced %d rows but left table has %d rows", total, leftCount)
		j.logger.Warn().
			Str("left_id", spec.LeftID).
			Str("right_id", spec.RightID).
			Int64("result_rows", total).
			Int64("left_rows", leftCount).
			Msg("Join row-count invariant violated")
		result.Warnings = append(result.Warnings, warning)
	}

	return result, nil
}

func validate(spec *Spec) error {
	switch {
	case spec.LeftID == "" || spec.RightID == "":
		return errors.New(ErrInvalidSpec, "both left_id and right_id are required", nil)
	case spec.LeftKey == "" || spec.RightKey == "":
		return errors.New(ErrInvalidSpec, "both left_key and right_key are required", nil)
	}
	return nil
}

// buildSQL emits the join statement and its companion count statement.
// ORDER BY 1 in the window makes "first occurrence" deterministic, and
// rn = 1 in the join condition keeps exactly one right row per key.
func buildSQL(spec *Spec, left, right *registry.Entry) (joinSQL, countSQL string) {
	leftKey := query.QuoteIdent(spec.LeftKey)
	rightKey := query.QuoteIdent(spec.RightKey)

	cte := fmt.Sprintf(
		"WITH right_dedup AS (SELECT *, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY 1) AS rn FROM %s)",
		rightKey, right.Relation())

	on := fmt.Sprintf("CAST(l.%s AS VARCHAR) = CAST(r.%s AS VARCHAR) AND r.rn = 1", leftKey, rightKey)

	body := fmt.Sprintf("FROM %s AS l LEFT JOIN right_dedup AS r ON %s", left.Relation(), on)

	joinSQL = fmt.Sprintf("%s SELECT %s %s", cte, projection(spec, left, right), body)
	countSQL = fmt.Sprintf(
		"%s SELECT COUNT(*) FILTER (WHERE r.%s IS NOT NULL) AS matched, COUNT(*) AS total %s",
		cte, rightKey, body)
	return joinSQL, countSQL
}

// projection selects the requested columns from each side, all columns
// when no projection was requested. Right-side names that collide with a
// selected left column get a right_ alias.
func projection(spec *Spec, left, right *registry.Entry) string {
	leftCols := spec.LeftColumns
	if len(leftCols) == 0 {
		leftCols = left.Source.Columns
	}
	rightCols := spec.RightColumns
	if len(rightCols) == 0 {
		rightCols = right.Source.Columns
	}

	taken := make(map[string]bool, len(leftCols))
	parts := make([]string, 0, len(leftCols)+len(rightCols))
	for _, c := range leftCols {
		parts = append(parts, "l."+query.QuoteIdent(c))
		taken[c] = true
	}
	for _, c := range rightCols {
		expr := "r." + query.QuoteIdent(c)
		if taken[c] {
			expr += " AS " + query.QuoteIdent("right_"+c)
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, ", ")
}

func (j *Joiner) leftRowCount(ctx context.Context, left *registry.Entry) (int64, error) {
	res, err := j.engine.Execute(ctx, "SELECT COUNT(*) FROM "+left.Relation())
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, nil
	}
	return toInt64(res.Rows[0][0]), nil
}

func parseCounts(res *engine.Result) (matched, total int64) {
	if res == nil || len(res.Rows) == 0 || len(res.Rows[0]) < 2 {
		return 0, 0
	}
	return toInt64(res.Rows[0][0]), toInt64(res.Rows[0][1])
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
