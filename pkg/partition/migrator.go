package partition

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "partition_migrations"

// DBOpener returns a database/sql handle whose sessions resolve unqualified names in h.
type DBOpener func(h Handle) (*sql.DB, error)

// SQLMigrator applies the embedded partition migrations with sql-migrate, keeping one migration
// table per partition.
type SQLMigrator struct {
	open   DBOpener
	source migrate.MigrationSource
}

func NewSQLMigrator(open DBOpener) *SQLMigrator {
	return &SQLMigrator{
		open: open,
		source: &migrate.EmbedFileSystemMigrationSource{
			FileSystem: migrationsFS,
			Root:       "migrations",
		},
	}
}

// OpenerFromDSN opens a fresh pgx-backed *sql.DB per partition with search_path preset.
func OpenerFromDSN(dsn string) DBOpener {
	return func(h Handle) (*sql.DB, error) {
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, err
		}
		cfg.RuntimeParams["search_path"] = h.Key() + ",public"
		return stdlib.OpenDB(*cfg), nil
	}
}

func (m *SQLMigrator) set(h Handle) migrate.MigrationSet {
	return migrate.MigrationSet{
		TableName:  migrationsTable,
		SchemaName: h.Key(),
	}
}

func (m *SQLMigrator) Up(ctx context.Context, h Handle) (int, error) {
	db, err := m.open(h)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	set := m.set(h)
	return set.ExecContext(ctx, db, "postgres", m.source, migrate.Up)
}

func (m *SQLMigrator) Missing(ctx context.Context, h Handle) ([]string, error) {
	known, err := m.source.FindMigrations()
	if err != nil {
		return nil, err
	}
	db, err := m.open(h)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	q := fmt.Sprintf("SELECT id FROM %s", pgx.Identifier{h.Key(), migrationsTable}.Sanitize())
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		// No migration table yet means nothing was applied.
		if exists, exErr := tableExists(ctx, db, h); exErr == nil && !exists {
			return ids(known), nil
		}
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, mig := range known {
		if _, ok := applied[mig.Id]; !ok {
			missing = append(missing, mig.Id)
		}
	}
	return missing, nil
}

func tableExists(ctx context.Context, db *sql.DB, h Handle) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		h.Key(), migrationsTable,
	).Scan(&exists)
	return exists, err
}

func ids(migs []*migrate.Migration) []string {
	out := make([]string, 0, len(migs))
	for _, m := range migs {
		out = append(out, m.Id)
	}
	return out
}
