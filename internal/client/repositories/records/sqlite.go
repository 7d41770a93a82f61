package records

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/dbx"
	"github.com/dmitrijs2005/caresync/internal/models"
)

const columns = `id, data, created_at_ns, updated_at_ns, version, is_dirty, is_deleted, deleted_at_ns`

// SQLiteRepository implements Repository over one entity table using a DBTX
// (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db    dbx.DBTX
	table string
}

// NewSQLiteRepository returns a repository bound to entity's table.
func NewSQLiteRepository(db dbx.DBTX, entity models.Entity) *SQLiteRepository {
	return &SQLiteRepository{db: db, table: entity.Table}
}

// UpsertAll writes remote records. Existing dirty rows are left untouched.
func (r *SQLiteRepository) UpsertAll(ctx context.Context, recs []*models.Record) error {
	_, err := r.upsert(ctx, recs, nil)
	return err
}

// ReplaceDirty writes server winners over dirty rows, but only over rows
// still carrying the updatedAt recorded in seen. It returns the ids of rows
// edited again in the meantime, which keep their local state.
func (r *SQLiteRepository) ReplaceDirty(ctx context.Context, recs []*models.Record, seen map[string]time.Time) ([]string, error) {
	return r.upsert(ctx, recs, seen)
}

func (r *SQLiteRepository) upsert(ctx context.Context, recs []*models.Record, seen map[string]time.Time) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	query := `INSERT INTO ` + r.table + ` (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data,
			created_at_ns = excluded.created_at_ns,
			updated_at_ns = excluded.updated_at_ns,
			version = excluded.version,
			is_dirty = excluded.is_dirty,
			is_deleted = excluded.is_deleted,
			deleted_at_ns = excluded.deleted_at_ns
		WHERE ` + r.table + `.is_dirty = 0 OR ` + r.table + `.updated_at_ns = ?`

	var skipped []string
	err := dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		for _, rec := range recs {
			var expect any
			if at, ok := seen[rec.ID]; ok {
				expect = at.UnixNano()
			}
			res, err := tx.ExecContext(ctx, query, append(values(rec), expect)...)
			if err != nil {
				return fmt.Errorf("failed to upsert %s/%s: %w", r.table, rec.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if n == 0 {
				skipped = append(skipped, rec.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return skipped, nil
}

func (r *SQLiteRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Record, error) {
	result := make(map[string]*models.Record, len(ids))
	for _, chunk := range dbx.Chunk(ids, dbx.MaxInParams) {
		query := `SELECT ` + columns + ` FROM ` + r.table + ` WHERE id IN (` + dbx.Placeholders(len(chunk)) + `)`
		recs, err := r.query(ctx, query, dbx.Args(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s by ids: %w", r.table, err)
		}
		for _, rec := range recs {
			result[rec.ID] = rec
		}
	}
	return result, nil
}

func (r *SQLiteRepository) LoadDirtyBatch(ctx context.Context, limit int) ([]*models.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `SELECT ` + columns + ` FROM ` + r.table + `
		WHERE is_dirty = 1 ORDER BY updated_at_ns, id LIMIT ?`
	recs, err := r.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load dirty %s: %w", r.table, err)
	}
	return recs, nil
}

// MarkBatchPushed records a successful push of recs, as they were loaded, at
// updatedAt. Each row takes the pushed version. Rows edited since loading
// stay dirty and have their updatedAt raised to at least updatedAt so the
// newer edit is pushed next time instead of losing to the remote copy.
func (r *SQLiteRepository) MarkBatchPushed(ctx context.Context, pushed []*models.Record, updatedAt time.Time) error {
	if len(pushed) == 0 {
		return nil
	}
	query := `UPDATE ` + r.table + ` SET version = ?,
			is_dirty = CASE WHEN updated_at_ns = ? THEN 0 ELSE 1 END,
			updated_at_ns = CASE WHEN updated_at_ns = ? THEN ? ELSE MAX(updated_at_ns, ?) END
		WHERE id = ?`
	at := updatedAt.UnixNano()
	return dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		for _, rec := range pushed {
			loaded := rec.UpdatedAt.UnixNano()
			if _, err := tx.ExecContext(ctx, query, rec.Version+1, loaded, loaded, at, at, rec.ID); err != nil {
				return fmt.Errorf("failed to mark %s/%s pushed: %w", r.table, rec.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) HardDeleteOldTombstones(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM ` + r.table + ` WHERE is_deleted = 1 AND is_dirty = 0 AND updated_at_ns < ?`
	res, err := r.db.ExecContext(ctx, query, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s tombstones: %w", r.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SaveLocal(ctx context.Context, rec *models.Record, now time.Time) error {
	if rec.ID == "" {
		return common.ErrBlankID
	}
	rec.Touch(now)

	query := `INSERT INTO ` + r.table + ` (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data,
			updated_at_ns = excluded.updated_at_ns,
			is_dirty = 1,
			is_deleted = excluded.is_deleted,
			deleted_at_ns = excluded.deleted_at_ns`
	if _, err := r.db.ExecContext(ctx, query, values(rec)...); err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", r.table, rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE ` + r.table + ` SET is_deleted = 1, deleted_at_ns = ?, updated_at_ns = ?, is_dirty = 1
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, now.UnixNano(), now.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", r.table, id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("%s/%s: %w", r.table, id, common.ErrorNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		for _, chunk := range dbx.Chunk(ids, dbx.MaxInParams) {
			query := `DELETE FROM ` + r.table + ` WHERE id IN (` + dbx.Placeholders(len(chunk)) + `)`
			if _, err := tx.ExecContext(ctx, query, dbx.Args(chunk)...); err != nil {
				return fmt.Errorf("failed to delete %s: %w", r.table, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM `+r.table)
}

func (r *SQLiteRepository) CountDirty(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM `+r.table+` WHERE is_dirty = 1`)
}

func (r *SQLiteRepository) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.table, err)
	}
	return n, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scan(rows *sql.Rows) (*models.Record, error) {
	var (
		rec                  models.Record
		data                 []byte
		createdNs, updatedNs int64
		dirty, deleted       int64
		deletedNs            sql.NullInt64
	)
	if err := rows.Scan(&rec.ID, &data, &createdNs, &updatedNs, &rec.Version, &dirty, &deleted, &deletedNs); err != nil {
		return nil, err
	}
	rec.Data = data
	rec.CreatedAt = fromNanos(createdNs)
	rec.UpdatedAt = fromNanos(updatedNs)
	rec.IsDirty = dirty != 0
	rec.IsDeleted = deleted != 0
	if deletedNs.Valid {
		t := fromNanos(deletedNs.Int64)
		rec.DeletedAt = &t
	}
	return &rec, nil
}

func values(rec *models.Record) []any {
	data := []byte(rec.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	var deletedAt any
	if rec.DeletedAt != nil {
		deletedAt = rec.DeletedAt.UnixNano()
	}
	return []any{
		rec.ID, data, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(), rec.Version,
		boolInt(rec.IsDirty), boolInt(rec.IsDeleted), deletedAt,
	}
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
