package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/caresync/internal/models"
)

// Repository is the on-device store of one entity's records.
type Repository interface {
	// UpsertAll inserts or replaces recs by ID in one transaction. Rows that
	// are dirty locally are never replaced.
	UpsertAll(ctx context.Context, recs []*models.Record) error
	// ReplaceDirty replaces dirty rows whose updatedAt still equals seen[id]
	// and returns the ids it left alone.
	ReplaceDirty(ctx context.Context, recs []*models.Record, seen map[string]time.Time) ([]string, error)
	// GetByIDs returns the stored records keyed by ID; absent IDs are omitted.
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.Record, error)
	// LoadDirtyBatch returns up to limit dirty records, oldest edit first.
	LoadDirtyBatch(ctx context.Context, limit int) ([]*models.Record, error)
	// MarkBatchPushed stores the pushed version of each record and clears
	// is_dirty for those not edited since they were loaded, in one
	// transaction.
	MarkBatchPushed(ctx context.Context, pushed []*models.Record, updatedAt time.Time) error
	// HardDeleteOldTombstones removes pushed tombstones last updated before
	// cutoff and reports how many rows went away.
	HardDeleteOldTombstones(ctx context.Context, cutoff time.Time) (int64, error)

	// SaveLocal stores a local edit as dirty, keeping the stored version.
	SaveLocal(ctx context.Context, rec *models.Record, now time.Time) error
	// SoftDelete tombstones id as a dirty local edit.
	SoftDelete(ctx context.Context, id string, now time.Time) error
	// DeleteByIDs physically removes ids.
	DeleteByIDs(ctx context.Context, ids []string) error

	Count(ctx context.Context) (int64, error)
	CountDirty(ctx context.Context) (int64, error)
}
