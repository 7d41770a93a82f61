// Package records provides the client-side persistence layer for syncable
// records.
//
// # Overview
//
// Every entity (see models.Entities) owns one SQLite table with the same
// layout: the record ID, its JSON payload and the sync envelope (created and
// updated instants in Unix nanoseconds, version, dirty flag and tombstone
// pair). SQLiteRepository is bound to one such table.
//
// The sync engine writes through UpsertAll, ReplaceDirty and MarkBatchPushed.
// Each call is transactional and compares the stored dirty flag or updatedAt
// before writing, so an edit saved while a pull or push is in flight is never
// overwritten or marked pushed. Application code
// records edits with SaveLocal and SoftDelete, which mark rows dirty for the
// next push.
//
// Typical Usage
//
//	repo := records.NewSQLiteRepository(db, models.Children)
//	rec := models.NewRecord(data, time.Now())
//	_ = repo.SaveLocal(ctx, rec, time.Now())
//	dirty, _ := repo.LoadDirtyBatch(ctx, 500)
package records
