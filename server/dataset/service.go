package dataset

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/convert"
	"github.com/danyguancha/soft-eps-v2-sub000/server/join"
	"github.com/danyguancha/soft-eps-v2-sub000/server/query"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

// IngestResult reports what happened to one uploaded file.
type IngestResult struct {
	LogicalID   string   `json:"logical_id"`
	ContentHash string   `json:"content_hash"`
	Columns     []string `json:"columns"`
	TotalRows   int64    `json:"total_rows"`
	FromCache   bool     `json:"from_cache"`
	Method      string   `json:"method"`
}

// Service is the single entry point for dataset operations. It composes
// the cache, pipeline, registry and query collaborators; callers hold a
// Service handle, never the collaborators directly.
type Service struct {
	cache    *cache.ContentCache
	pipeline *convert.Pipeline
	registry *registry.Registry
	executor *query.Executor
	joiner   *join.Joiner
	logger   zerolog.Logger
}

func NewService(cc *cache.ContentCache, pipeline *convert.Pipeline, reg *registry.Registry, exec *query.Executor, joiner *join.Joiner, logger zerolog.Logger) *Service {
	return &Service{
		cache:    cc,
		pipeline: pipeline,
		registry: reg,
		executor: exec,
		joiner:   joiner,
		logger:   logger.With().Str("component", "dataset-service").Logger(),
	}
}

// Ingest makes an uploaded file queryable under logicalID. Identical
// bytes hit the cache and skip conversion entirely; the hit is recorded
// on the cache entry either way.
func (s *Service) Ingest(ctx context.Context, sourcePath, originalName, ext, logicalID string) (*IngestResult, error) {
	if logicalID == "" || sourcePath == "" {
		return nil, errors.New(ErrInvalidRequest, "logical_id and source path are required", nil)
	}

	hash, err := s.cache.Identify(sourcePath)
	if err != nil {
		return nil, errors.New(ErrIngestFailed, "failed to identify source file", err).AddContext("source", originalName)
	}

	if entry, ok := s.cache.Lookup(hash); ok {
		if touched, err := s.cache.Touch(hash); err == nil {
			entry = touched
		}
		if _, err := s.registry.Register(ctx, logicalID, entry); err != nil {
			return nil, err
		}
		s.logger.Info().Str("logical_id", logicalID).Str("content_hash", hash).Msg("Cache hit, conversion skipped")
		return &IngestResult{
			LogicalID:   logicalID,
			ContentHash: hash,
			Columns:     entry.Columns,
			TotalRows:   entry.TotalRows,
			FromCache:   true,
			Method:      entry.Method,
		}, nil
	}

	entry, err := s.pipeline.Convert(ctx, sourcePath, originalName, ext, hash)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.Register(ctx, logicalID, entry); err != nil {
		return nil, err
	}

	return &IngestResult{
		LogicalID:   logicalID,
		ContentHash: hash,
		Columns:     entry.Columns,
		TotalRows:   entry.TotalRows,
		Method:      entry.Method,
	}, nil
}

// Query runs a paginated query against a registered dataset.
func (s *Service) Query(ctx context.Context, req *query.Request) (*query.Page, error) {
	return s.executor.Run(ctx, req)
}

// Join executes a first-match left join between two registered datasets.
func (s *Service) Join(ctx context.Context, spec *join.Spec) (*join.Result, error) {
	return s.joiner.Join(ctx, spec)
}

// Promote moves a dataset forward to a view or materialized relation.
func (s *Service) Promote(ctx context.Context, logicalID string, target registry.State) (*registry.Entry, error) {
	return s.registry.Promote(ctx, logicalID, target)
}

// Evict makes a logical id unqueryable.
func (s *Service) Evict(ctx context.Context, logicalID string) error {
	return s.registry.Evict(ctx, logicalID)
}

// List returns every registered dataset.
func (s *Service) List() []*registry.Entry {
	return s.registry.List()
}

// CacheStats summarizes the content cache.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.GetStats()
}

// Cleanup removes stale low-traffic cache entries.
func (s *Service) Cleanup(maxAge time.Duration, minAccessCount int64) cache.CleanupResult {
	return s.cache.Cleanup(maxAge, minAccessCount)
}
