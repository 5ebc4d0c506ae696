package query

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/engine"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

// Engine is the slice of the gateway the executor needs.
type Engine interface {
	Execute(ctx context.Context, sql string) (*engine.Result, error)
	Describe(ctx context.Context, sql string) ([]engine.Column, error)
}

// Registry is the slice of the table registry the executor needs.
type Registry interface {
	Lookup(logicalID string) (*registry.Entry, bool)
	Register(ctx context.Context, logicalID string, src *cache.Entry) (*registry.Entry, error)
}

// Converter regenerates the canonical file from its original source.
type Converter interface {
	Convert(ctx context.Context, sourcePath, originalName, ext, contentHash string) (*cache.Entry, error)
}

// Page is the paginated result envelope.
type Page struct {
	Rows       [][]interface{} `json:"rows"`
	Columns    []string        `json:"columns"`
	TotalRows  int64           `json:"total_rows"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int64           `json:"total_pages"`
	HasNext    bool            `json:"has_next"`
	HasPrev    bool            `json:"has_prev"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// Executor runs paginated queries against registered datasets, with a
// one-shot regenerate-and-retry when the canonical file has gone missing
// out from under a registry entry.
type Executor struct {
	engine    Engine
	registry  Registry
	converter Converter
	logger    zerolog.Logger
}

func NewExecutor(eng Engine, reg Registry, conv Converter, logger zerolog.Logger) *Executor {
	return &Executor{
		engine:    eng,
		registry:  reg,
		converter: conv,
		logger:    logger.With().Str("component", "query-executor").Logger(),
	}
}

// Run executes a request and assembles the pagination envelope. Count
// and data statements share the same WHERE clause, so total_rows is
// always consistent with the returned page.
func (e *Executor) Run(ctx context.Context, req *Request) (*Page, error) {
	if req.LogicalID == "" {
		return nil, errors.New(ErrInvalidRequest, "logical_id is required", nil)
	}

	entry, ok := e.registry.Lookup(req.LogicalID)
	if !ok {
		return nil, errors.New(registry.ErrMiss, "logical id is not registered", nil).AddContext("logical_id", req.LogicalID)
	}

	page, err := e.runOnce(ctx, req, entry)
	if err == nil {
		return page, nil
	}

	if !e.canonicalMissing(err, entry) {
		return nil, err
	}

	healed, healErr := e.selfHeal(ctx, req.LogicalID, entry)
	if healErr != nil {
		return nil, healErr
	}

	e.logger.Info().Str("logical_id", req.LogicalID).Msg("Canonical file regenerated, retrying query")
	return e.runOnce(ctx, req, healed)
}

func (e *Executor) runOnce(ctx context.Context, req *Request, entry *registry.Entry) (*Page, error) {
	var textCols []string
	if strings.TrimSpace(req.Search) != "" {
		cols, err := e.engine.Describe(ctx, "SELECT * FROM "+entry.Relation())
		if err != nil {
			return nil, errors.New(ErrDescribeFailed, "failed to introspect columns for search", err).AddContext("logical_id", entry.LogicalID)
		}
		for _, c := range cols {
			if strings.Contains(strings.ToUpper(c.Type), "VARCHAR") {
				textCols = append(textCols, c.Name)
			}
		}
	}

	built := Build(req, entry, textCols)

	countRes, err := e.engine.Execute(ctx, built.CountSQL)
	if err != nil {
		return nil, errors.New(ErrCountFailed, "count query failed", err).AddContext("logical_id", entry.LogicalID)
	}
	total := firstInt64(countRes)

	dataRes, err := e.engine.Execute(ctx, built.SelectSQL)
	if err != nil {
		return nil, errors.New(ErrExecutionFailed, "data query failed", err).AddContext("logical_id", entry.LogicalID)
	}

	totalPages := total / int64(built.PageSize)
	if total%int64(built.PageSize) != 0 {
		totalPages++
	}
	if totalPages < 1 {
		totalPages = 1
	}

	return &Page{
		Rows:       dataRes.Rows,
		Columns:    dataRes.Columns,
		TotalRows:  total,
		Page:       built.Page,
		PageSize:   built.PageSize,
		TotalPages: totalPages,
		HasNext:    int64(built.Page) < totalPages,
		HasPrev:    built.Page > 1,
		Warnings:   built.Warnings,
	}, nil
}

// canonicalMissing decides whether an execution failure means the
// canonical file is physically gone. A stat miss on the recorded path is
// authoritative; engine error text is checked as a fallback for races.
func (e *Executor) canonicalMissing(err error, entry *registry.Entry) bool {
	if _, statErr := os.Stat(entry.CanonicalPath); os.IsNotExist(statErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no files found") ||
		strings.Contains(msg, "no such file") ||
		strings.Contains(msg, strings.ToLower(entry.CanonicalPath))
}

// selfHeal regenerates the canonical file from the recorded source and
// re-registers the entry. Recovered entries carry no source path and
// cannot be healed.
func (e *Executor) selfHeal(ctx context.Context, logicalID string, entry *registry.Entry) (*registry.Entry, error) {
	src := entry.Source
	if src == nil || src.SourcePath == "" {
		return nil, errors.New(ErrSelfHealFailed, "canonical file missing and no source path recorded", nil).
			AddContext("logical_id", logicalID).
			AddContext("canonical_path", entry.CanonicalPath)
	}

	e.logger.Warn().
		Str("logical_id", logicalID).
		Str("canonical_path", entry.CanonicalPath).
		Msg("Canonical file missing, regenerating from source")

	regenerated, err := e.converter.Convert(ctx, src.SourcePath, src.OriginalName, src.Extension, src.ContentHash)
	if err != nil {
		return nil, errors.New(ErrSelfHealFailed, "failed to regenerate canonical file from source", err).AddContext("logical_id", logicalID)
	}

	healed, err := e.registry.Register(ctx, logicalID, regenerated)
	if err != nil {
		return nil, errors.New(ErrSelfHealFailed, "failed to re-register regenerated dataset", err).AddContext("logical_id", logicalID)
	}
	return healed, nil
}

func firstInt64(res *engine.Result) int64 {
	if res == nil || len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0
	}
	switch v := res.Rows[0][0].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	default:
		return 0
	}
}
