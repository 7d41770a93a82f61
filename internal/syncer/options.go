package syncer

import (
	"context"
	"time"

	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/remote"
	"github.com/dmitrijs2005/caresync/internal/syncx"
)

// Options tunes the units. Zero fields take the defaults below.
type Options struct {
	PageSize      int
	MaxPages      int
	PushBatchSize int

	// FutureGuard is how far ahead of now a cursor may sit before it is
	// treated as poisoned.
	FutureGuard time.Duration
	// ExtendedOverlap is re-scanned after retries, first runs, long offline
	// periods and poisoned cursors.
	ExtendedOverlap time.Duration
	NormalOverlap   time.Duration
	// OfflineThreshold is the gap since the last success beyond which the
	// extended overlap applies.
	OfflineThreshold time.Duration

	Now func() time.Time
}

const (
	DefaultPageSize         = 500
	DefaultMaxPages         = 50
	DefaultPushBatchSize    = 500
	DefaultFutureGuard      = 5 * time.Hour
	DefaultExtendedOverlap  = 12 * time.Hour
	DefaultNormalOverlap    = 10 * time.Minute
	DefaultOfflineThreshold = 6 * time.Hour
)

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.PushBatchSize <= 0 {
		o.PushBatchSize = DefaultPushBatchSize
	}
	o.PushBatchSize = min(o.PushBatchSize, remote.MaxBatchWrites)
	if o.FutureGuard <= 0 {
		o.FutureGuard = DefaultFutureGuard
	}
	if o.ExtendedOverlap <= 0 {
		o.ExtendedOverlap = DefaultExtendedOverlap
	}
	if o.NormalOverlap <= 0 {
		o.NormalOverlap = DefaultNormalOverlap
	}
	if o.OfflineThreshold <= 0 {
		o.OfflineThreshold = DefaultOfflineThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// LocalStore is the part of the on-device store the Puller, Pusher and
// Cleaner use. Each call is transactional on its own.
type LocalStore interface {
	// UpsertAll never replaces a row that is dirty when it is written.
	UpsertAll(ctx context.Context, recs []*models.Record) error
	// ReplaceDirty replaces dirty rows still at updatedAt seen[id] and
	// returns the ids edited again since.
	ReplaceDirty(ctx context.Context, recs []*models.Record, seen map[string]time.Time) ([]string, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.Record, error)
	LoadDirtyBatch(ctx context.Context, limit int) ([]*models.Record, error)
	MarkBatchPushed(ctx context.Context, pushed []*models.Record, updatedAt time.Time) error
	HardDeleteOldTombstones(ctx context.Context, cutoff time.Time) (int64, error)
}

// CursorStore persists each entity's pull cursor.
type CursorStore interface {
	Load(ctx context.Context, entity string) (syncx.Cursor, error)
	Save(ctx context.Context, entity string, c syncx.Cursor) error
}
