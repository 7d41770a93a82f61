// Package postgres implements remote.Store on a Postgres table of JSONB
// documents, one row per (collection, id).
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/caresync/internal/dbx"
	"github.com/dmitrijs2005/caresync/internal/remote"
	"github.com/dmitrijs2005/caresync/internal/remote/postgres/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const selectColumns = `id, version, updated_at_seconds, updated_at_nanos, fields`

// Store is a remote.Store over *sql.DB. Every read goes to the server, so
// remote.Default and remote.Server behave the same.
type Store struct {
	db *sql.DB
}

var _ remote.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// Open connects with the pgx driver and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", mapError("migrate", err))
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Query(ctx context.Context, q remote.Query) ([]*remote.Document, error) {
	var (
		sb   strings.Builder
		args = []any{q.Collection}
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	sb.WriteString(`SELECT ` + selectColumns + ` FROM documents
		WHERE collection = $1 AND updated_at_seconds IS NOT NULL`)
	if q.From != nil {
		sb.WriteString(` AND (updated_at_seconds, COALESCE(updated_at_nanos, 0)) >= (` +
			arg(q.From.GetSeconds()) + `, ` + arg(q.From.GetNanos()) + `)`)
	}
	if p := q.StartAfter; p != nil {
		sb.WriteString(` AND (updated_at_seconds, COALESCE(updated_at_nanos, 0), id) > (` +
			arg(p.UpdatedAt.GetSeconds()) + `, ` + arg(p.UpdatedAt.GetNanos()) + `, ` + arg(p.ID) + `)`)
	}
	sb.WriteString(` ORDER BY updated_at_seconds, COALESCE(updated_at_nanos, 0), id`)
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ` + arg(q.Limit))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError("query "+q.Collection, err)
	}
	defer rows.Close()

	var result []*remote.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, mapError("query "+q.Collection, err)
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("query "+q.Collection, err)
	}
	return result, nil
}

func (s *Store) Get(ctx context.Context, collection, id string, _ remote.Source) (*remote.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("get "+collection+"/"+id, err)
	}
	return doc, nil
}

func (s *Store) Commit(ctx context.Context, collection string, writes []remote.Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > remote.MaxBatchWrites {
		return fmt.Errorf("%w: %d", remote.ErrBatchTooLarge, len(writes))
	}

	query := `
		INSERT INTO documents (collection, id, version, updated_at_seconds, updated_at_nanos, fields)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (collection, id)
		DO UPDATE SET
			version = EXCLUDED.version,
			updated_at_seconds = EXCLUDED.updated_at_seconds,
			updated_at_nanos = EXCLUDED.updated_at_nanos,
			fields = documents.fields || EXCLUDED.fields`

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, w := range writes {
			fields, err := encodeFields(w.Fields)
			if err != nil {
				return fmt.Errorf("encode %s: %w", w.ID, err)
			}
			if _, err := tx.ExecContext(ctx, query, collection, w.ID, w.Version,
				w.UpdatedAt.GetSeconds(), w.UpdatedAt.GetNanos(), fields); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapError("commit "+collection, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return mapError("delete "+collection+"/"+id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*remote.Document, error) {
	var (
		doc     remote.Document
		version sql.NullInt64
		seconds sql.NullInt64
		nanos   sql.NullInt32
		raw     []byte
	)
	if err := row.Scan(&doc.ID, &version, &seconds, &nanos, &raw); err != nil {
		return nil, err
	}
	if version.Valid {
		v := version.Int64
		doc.Version = &v
	}
	if seconds.Valid {
		doc.UpdatedAt = &timestamppb.Timestamp{Seconds: seconds.Int64, Nanos: nanos.Int32}
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", doc.ID, err)
	}
	doc.Fields = fields
	return &doc, nil
}

// encodeFields renders fields as a JSON object. Timestamps become RFC 3339
// strings.
func encodeFields(fields map[string]any) (string, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if ts, ok := v.(*timestamppb.Timestamp); ok {
			if ts == nil {
				out[k] = nil
				continue
			}
			out[k] = ts.AsTime().Format(time.RFC3339Nano)
			continue
		}
		out[k] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if len(raw) == 0 {
		return fields, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	// Values that do not read as timestamps stay as stored, so the engine
	// rejects that one document instead of the whole page.
	for _, k := range []string{remote.FieldCreatedAt, remote.FieldDeletedAt} {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		if ts, err := remote.AsTimestamp(v); err == nil {
			fields[k] = ts
		}
	}
	return fields, nil
}
