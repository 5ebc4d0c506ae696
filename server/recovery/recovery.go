package recovery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

// Report summarizes one recovery pass.
type Report struct {
	EntriesRestored int
	LinksReattached int
	Duration        time.Duration
}

// Coordinator rebuilds the queryable state after a restart: cache
// metadata is restored from sidecar records, every surviving entry is
// registered under its content hash, and persisted logical-id links are
// re-attached on top. Original source files are never consulted.
type Coordinator struct {
	cache    *cache.ContentCache
	registry *registry.Registry
	logger   zerolog.Logger
}

func New(cc *cache.ContentCache, reg *registry.Registry, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		cache:    cc,
		registry: reg,
		logger:   logger.With().Str("component", "recovery").Logger(),
	}
}

// Run performs one recovery pass. It is idempotent: registration only
// fills gaps, so running it again (for example when a dependent
// subsystem starts late) never duplicates or overwrites live entries.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	restored, err := c.cache.Restore()
	if err != nil {
		return nil, errors.New(ErrRestoreFailed, "failed to restore cache metadata", err)
	}

	for _, entry := range restored {
		if _, added := c.registry.RegisterRecovered(entry.ContentHash, entry); added {
			report.EntriesRestored++
		}
	}

	// Re-expose recovered datasets under their original logical ids.
	// Links whose hash no longer survives in the cache are stale and
	// are dropped so they do not resurrect on the next restart.
	if links := c.registry.Links(); links != nil {
		persisted, err := links.All(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Could not read persisted dataset links")
		} else {
			for _, link := range persisted {
				src, ok := c.cache.Lookup(link.ContentHash)
				if !ok {
					if err := links.Delete(ctx, link.LogicalID); err != nil {
						c.logger.Warn().Err(err).Str("logical_id", link.LogicalID).Msg("Could not remove stale dataset link")
					}
					continue
				}
				if _, added := c.registry.RegisterRecovered(link.LogicalID, src); added {
					report.LinksReattached++
				}
			}
		}
	}

	report.Duration = time.Since(start)
	c.logger.Info().
		Int("entries", report.EntriesRestored).
		Int("links", report.LinksReattached).
		Dur("duration", report.Duration).
		Msg("Recovery complete")
	return report, nil
}
