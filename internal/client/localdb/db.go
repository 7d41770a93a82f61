// Package localdb opens the on-device SQLite database, applies the embedded
// schema and vends the repositories the sync engine runs against.
package localdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/caresync/internal/client/migrations"
	"github.com/dmitrijs2005/caresync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/caresync/internal/client/repositories/records"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Repositories bundles the local stores sharing one *sql.DB.
type Repositories struct {
	DB       *sql.DB
	Metadata metadata.Repository
	// Records is keyed by models.Entity.Name.
	Records map[string]records.Repository
}

// Close releases the underlying database.
func (r *Repositories) Close() error {
	return r.DB.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens dsn with the modernc driver, migrates it and builds one
// records repository per registered entity.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	// SQLite serializes writers; one connection keeps transactions from
	// tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	repos := &Repositories{
		DB:       db,
		Metadata: metadata.NewSQLiteRepository(db),
		Records:  make(map[string]records.Repository),
	}
	for _, e := range models.Entities() {
		repos.Records[e.Name] = records.NewSQLiteRepository(db, e)
	}
	return repos, nil
}
