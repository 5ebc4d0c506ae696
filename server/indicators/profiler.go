package indicators

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/engine"
	"github.com/danyguancha/soft-eps-v2-sub000/server/query"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

// ColumnProfile is the coverage summary for one column. Empty strings
// count as nulls because the canonical format normalizes nulls to "".
type ColumnProfile struct {
	Name          string  `json:"name"`
	NonEmptyCount int64   `json:"non_empty_count"`
	NullRate      float64 `json:"null_rate"`
	DistinctCount int64   `json:"distinct_count"`
	Coverage      float64 `json:"coverage"`
	TopValue      string  `json:"top_value,omitempty"`
}

// TableProfile is the per-column coverage report for one dataset.
type TableProfile struct {
	LogicalID string          `json:"logical_id"`
	TotalRows int64           `json:"total_rows"`
	Columns   []ColumnProfile `json:"columns"`
	Duration  time.Duration   `json:"duration_ns"`
}

// Engine is the slice of the gateway the profiler needs.
type Engine interface {
	Execute(ctx context.Context, sql string) (*engine.Result, error)
}

// Registry is the slice of the table registry the profiler needs.
type Registry interface {
	Lookup(logicalID string) (*registry.Entry, bool)
}

// Profiler computes coverage indicators over registered datasets.
type Profiler struct {
	engine   Engine
	registry Registry
	logger   zerolog.Logger
}

func New(eng Engine, reg Registry, logger zerolog.Logger) *Profiler {
	return &Profiler{
		engine:   eng,
		registry: reg,
		logger:   logger.With().Str("component", "profiler").Logger(),
	}
}

// Profile computes per-column coverage for a dataset: non-empty count,
// null rate, distinct count, coverage ratio and most frequent value.
func (p *Profiler) Profile(ctx context.Context, logicalID string) (*TableProfile, error) {
	entry, ok := p.registry.Lookup(logicalID)
	if !ok {
		return nil, errors.New(registry.ErrMiss, "logical id is not registered", nil).AddContext("logical_id", logicalID)
	}

	start := time.Now()
	relation := entry.Relation()

	total, err := p.rowCount(ctx, relation)
	if err != nil {
		return nil, errors.New(ErrProfileFailed, "failed to count rows", err).AddContext("logical_id", logicalID)
	}

	profile := &TableProfile{
		LogicalID: logicalID,
		TotalRows: total,
		Columns:   make([]ColumnProfile, 0, len(entry.Source.Columns)),
	}

	for _, name := range entry.Source.Columns {
		col := query.QuoteIdent(name)
		// mode over NULLIF skips empty cells so the top value is a real one.
		sql := fmt.Sprintf(
			"SELECT COUNT(*) FILTER (WHERE %s IS NOT NULL AND %s <> '') AS non_empty, "+
				"COUNT(DISTINCT NULLIF(%s, '')) AS distinct_values, "+
				"COALESCE(CAST(mode(NULLIF(%s, '')) AS VARCHAR), '') AS top_value FROM %s",
			col, col, col, col, relation)

		res, err := p.engine.Execute(ctx, sql)
		if err != nil {
			return nil, errors.New(ErrProfileFailed, "column profile query failed", err).
				AddContext("logical_id", logicalID).
				AddContext("column", name)
		}

		cp := ColumnProfile{Name: name}
		if len(res.Rows) > 0 && len(res.Rows[0]) >= 3 {
			cp.NonEmptyCount = toInt64(res.Rows[0][0])
			cp.DistinctCount = toInt64(res.Rows[0][1])
			cp.TopValue = toString(res.Rows[0][2])
		}
		if total > 0 {
			cp.Coverage = float64(cp.NonEmptyCount) / float64(total)
			cp.NullRate = 1 - cp.Coverage
		}
		profile.Columns = append(profile.Columns, cp)
	}

	profile.Duration = time.Since(start)
	p.logger.Debug().Str("logical_id", logicalID).Int("columns", len(profile.Columns)).Dur("duration", profile.Duration).Msg("Table profiled")
	return profile, nil
}

func (p *Profiler) rowCount(ctx context.Context, relation string) (int64, error) {
	res, err := p.engine.Execute(ctx, "SELECT COUNT(*) FROM "+relation)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, nil
	}
	return toInt64(res.Rows[0][0]), nil
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

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
