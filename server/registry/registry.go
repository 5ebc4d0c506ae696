package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/pkg/ids"
	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/engine"
)

// State describes how a registry entry is exposed to the engine.
type State string

const (
	// StateLazy queries read the canonical file directly on every call.
	StateLazy State = "lazy"
	// StateView has a named engine-side relation over the canonical file.
	StateView State = "view"
	// StateMaterialized has the data fully loaded into engine storage.
	StateMaterialized State = "materialized"
)

// Entry is the runtime record for one queryable logical dataset.
type Entry struct {
	LogicalID     string
	TableName     string
	CanonicalPath string
	LoadedAt      time.Time
	LoadTime      time.Duration
	State         State
	Recovered     bool
	Source        *cache.Entry
}

// Relation returns the SQL relation clause for this entry: the canonical
// file scan for lazy entries, the generated name otherwise.
func (e *Entry) Relation() string {
	if e.State == StateLazy {
		return fmt.Sprintf("read_parquet('%s')", strings.ReplaceAll(e.CanonicalPath, "'", "''"))
	}
	return quoteIdent(e.TableName)
}

// Clone returns a copy safe to hand outside the registry lock.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Source = e.Source.Clone()
	return &out
}

// Engine is the slice of the gateway the registry needs for promotion
// and eviction DDL.
type Engine interface {
	Execute(ctx context.Context, sql string) (*engine.Result, error)
}

// Registry is the source of truth for which logical datasets are
// queryable right now. Entries never expire on their own; eviction is
// explicit. The logical_id to content_hash mapping is persisted through
// the link store so recovery after a restart is exact.
type Registry struct {
	engine  Engine
	links   *LinkStore
	entries map[string]*Entry
	mu      sync.RWMutex
	logger  zerolog.Logger
}

// New creates a registry. links may be nil (no persistence of the
// logical-id mapping; recovery then only exposes content hashes).
func New(eng Engine, links *LinkStore, logger zerolog.Logger) *Registry {
	return &Registry{
		engine:  eng,
		links:   links,
		entries: make(map[string]*Entry),
		logger:  logger.With().Str("component", "table-registry").Logger(),
	}
}

// Register creates or replaces the entry for logicalID in lazy state.
// Re-registering the same id replaces its entry; any engine-side
// relation from a previous registration is dropped first.
func (r *Registry) Register(ctx context.Context, logicalID string, src *cache.Entry) (*Entry, error) {
	start := time.Now()

	r.mu.Lock()
	if old, ok := r.entries[logicalID]; ok && old.State != StateLazy {
		if err := r.dropRelation(ctx, old); err != nil {
			r.logger.Warn().Err(err).Str("logical_id", logicalID).Msg("Failed to drop stale relation during re-registration")
		}
	}

	entry := &Entry{
		LogicalID:     logicalID,
		TableName:     generatedName(src.ContentHash),
		CanonicalPath: src.CanonicalPath,
		LoadedAt:      time.Now(),
		State:         StateLazy,
		Source:        src.Clone(),
	}
	entry.LoadTime = time.Since(start)
	r.entries[logicalID] = entry
	r.mu.Unlock()

	if r.links != nil {
		if err := r.links.Upsert(ctx, logicalID, src.ContentHash, src.OriginalName); err != nil {
			r.logger.Warn().Err(err).Str("logical_id", logicalID).Msg("Failed to persist dataset link")
		}
	}

	r.logger.Debug().Str("logical_id", logicalID).Str("content_hash", src.ContentHash).Msg("Dataset registered")
	return entry.Clone(), nil
}

// RegisterRecovered registers an entry found during startup recovery.
// It only fills gaps: a live entry under the same key is never replaced,
// which makes repeated recovery runs safe.
func (r *Registry) RegisterRecovered(key string, src *cache.Entry) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return nil, false
	}

	entry := &Entry{
		LogicalID:     key,
		TableName:     generatedName(src.ContentHash),
		CanonicalPath: src.CanonicalPath,
		LoadedAt:      time.Now(),
		State:         StateLazy,
		Recovered:     true,
		Source:        src.Clone(),
	}
	r.entries[key] = entry
	return entry.Clone(), true
}

// Lookup returns the entry for a logical id.
func (r *Registry) Lookup(logicalID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[logicalID]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// List returns all registered entries.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Clone())
	}
	return out
}

// Promote moves an entry forward through lazy -> view -> materialized.
// Transitions never go backwards and are never applied implicitly.
func (r *Registry) Promote(ctx context.Context, logicalID string, target State) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[logicalID]
	if !ok {
		return nil, errors.New(ErrMiss, "logical id is not registered", nil).AddContext("logical_id", logicalID)
	}

	if !validTransition(entry.State, target) {
		return nil, errors.New(ErrInvalidTransition, "state transition not allowed", nil).
			AddContext("from", string(entry.State)).
			AddContext("to", string(target))
	}

	name := fmt.Sprintf("%s_%s", generatedName(entry.Source.ContentHash), strings.ToLower(ids.NewULIDString()[16:]))
	scan := fmt.Sprintf("read_parquet('%s')", strings.ReplaceAll(entry.CanonicalPath, "'", "''"))

	var ddl string
	switch target {
	case StateView:
		ddl = fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", quoteIdent(name), scan)
	case StateMaterialized:
		ddl = fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", quoteIdent(name), scan)
	}

	start := time.Now()
	if _, err := r.engine.Execute(ctx, ddl); err != nil {
		return nil, errors.New(ErrPromotionFailed, "failed to create engine-side relation", err).AddContext("logical_id", logicalID)
	}

	// Drop the relation left behind by a prior promotion.
	if entry.State != StateLazy {
		old := *entry
		if err := r.dropRelation(ctx, &old); err != nil {
			r.logger.Warn().Err(err).Str("logical_id", logicalID).Msg("Failed to drop superseded relation")
		}
	}

	entry.TableName = name
	entry.State = target
	entry.LoadTime = time.Since(start)

	r.logger.Info().Str("logical_id", logicalID).Str("state", string(target)).Dur("load_time", entry.LoadTime).Msg("Dataset promoted")
	return entry.Clone(), nil
}

// Evict removes an entry and its engine-side relation. This is the only
// way a logical id becomes unqueryable.
func (r *Registry) Evict(ctx context.Context, logicalID string) error {
	r.mu.Lock()
	entry, ok := r.entries[logicalID]
	if ok {
		delete(r.entries, logicalID)
	}
	r.mu.Unlock()

	if !ok {
		return errors.New(ErrMiss, "logical id is not registered", nil).AddContext("logical_id", logicalID)
	}

	if entry.State != StateLazy {
		if err := r.dropRelation(ctx, entry); err != nil {
			return errors.New(ErrEvictionFailed, "failed to drop engine-side relation", err).AddContext("logical_id", logicalID)
		}
	}

	if r.links != nil {
		if err := r.links.Delete(ctx, logicalID); err != nil {
			r.logger.Warn().Err(err).Str("logical_id", logicalID).Msg("Failed to remove dataset link")
		}
	}

	r.logger.Info().Str("logical_id", logicalID).Msg("Dataset evicted")
	return nil
}

// Links exposes the persisted logical-id mapping, if any.
func (r *Registry) Links() *LinkStore {
	return r.links
}

func (r *Registry) dropRelation(ctx context.Context, entry *Entry) error {
	kind := "VIEW"
	if entry.State == StateMaterialized {
		kind = "TABLE"
	}
	_, err := r.engine.Execute(ctx, fmt.Sprintf("DROP %s IF EXISTS %s", kind, quoteIdent(entry.TableName)))
	return err
}

func validTransition(from, to State) bool {
	switch from {
	case StateLazy:
		return to == StateView || to == StateMaterialized
	case StateView:
		return to == StateMaterialized
	default:
		return false
	}
}

func generatedName(contentHash string) string {
	if len(contentHash) > 12 {
		contentHash = contentHash[:12]
	}
	return "ds_" + contentHash
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
