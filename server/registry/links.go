package registry

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
)

// DatasetLink persists the logical_id to content_hash association so a
// restarted process can re-expose datasets under their original ids.
type DatasetLink struct {
	bun.BaseModel `bun:"table:dataset_links"`

	LogicalID    string    `bun:"logical_id,pk"`
	ContentHash  string    `bun:"content_hash,notnull"`
	OriginalName string    `bun:"original_name"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

// LinkStore is the SQLite-backed store for dataset links.
type LinkStore struct {
	db *bun.DB
}

// NewLinkStore opens (or creates) the link database at dbPath.
func NewLinkStore(ctx context.Context, dbPath string) (*LinkStore, error) {
	sqldb, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, errors.New(ErrLinkStoreOpenFailed, "failed to open link database", err).AddContext("path", dbPath)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*DatasetLink)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		db.Close()
		return nil, errors.New(ErrLinkStoreOpenFailed, "failed to create dataset_links table", err)
	}

	if _, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_dataset_links_hash ON dataset_links(content_hash)`); err != nil {
		db.Close()
		return nil, errors.New(ErrLinkStoreOpenFailed, "failed to create dataset_links index", err)
	}

	return &LinkStore{db: db}, nil
}

// Upsert records or updates the link for a logical id.
func (s *LinkStore) Upsert(ctx context.Context, logicalID, contentHash, originalName string) error {
	link := &DatasetLink{
		LogicalID:    logicalID,
		ContentHash:  contentHash,
		OriginalName: originalName,
		CreatedAt:    time.Now(),
	}

	_, err := s.db.NewInsert().
		Model(link).
		On("CONFLICT (logical_id) DO UPDATE").
		Set("content_hash = EXCLUDED.content_hash").
		Set("original_name = EXCLUDED.original_name").
		Exec(ctx)
	if err != nil {
		return errors.New(ErrLinkStoreFailed, "failed to upsert dataset link", err).AddContext("logical_id", logicalID)
	}
	return nil
}

// ByHash returns every link pointing at a content hash.
func (s *LinkStore) ByHash(ctx context.Context, contentHash string) ([]DatasetLink, error) {
	var links []DatasetLink
	if err := s.db.NewSelect().
		Model(&links).
		Where("content_hash = ?", contentHash).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, errors.New(ErrLinkStoreFailed, "failed to query dataset links", err).AddContext("content_hash", contentHash)
	}
	return links, nil
}

// All returns every persisted link.
func (s *LinkStore) All(ctx context.Context) ([]DatasetLink, error) {
	var links []DatasetLink
	if err := s.db.NewSelect().Model(&links).Order("created_at ASC").Scan(ctx); err != nil {
		return nil, errors.New(ErrLinkStoreFailed, "failed to list dataset links", err)
	}
	return links, nil
}

// Delete removes the link for a logical id.
func (s *LinkStore) Delete(ctx context.Context, logicalID string) error {
	if _, err := s.db.NewDelete().
		Model((*DatasetLink)(nil)).
		Where("logical_id = ?", logicalID).
		Exec(ctx); err != nil {
		return errors.New(ErrLinkStoreFailed, "failed to delete dataset link", err).AddContext("logical_id", logicalID)
	}
	return nil
}

// Close closes the underlying database.
func (s *LinkStore) Close() error {
	return s.db.Close()
}
