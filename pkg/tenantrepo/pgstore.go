package tenantrepo

import (
	"context"
	"fmt"
	"slices"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/tenantcore/pkg/composables"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PgStore runs row operations on the transaction in ctx. Table names are unqualified, so they
// resolve inside whatever partition the surrounding scope pinned.
type PgStore struct {
	// Columns lists the known columns per table; filters and ordering on anything else are rejected.
	Columns map[string][]string
}

func NewPgStore() *PgStore {
	return &PgStore{Columns: make(map[string][]string)}
}

// Register records the columns of table for filter validation.
func (s *PgStore) Register(table string, columns []string) *PgStore {
	s.Columns[table] = columns
	return s
}

func (s *PgStore) checkColumns(table string, f Filter) error {
	known, ok := s.Columns[table]
	if !ok {
		if len(f.Where) == 0 && f.OrderBy == "" {
			return nil
		}
		return fmt.Errorf("tenantrepo: table %s is not registered", table)
	}
	for k := range f.Where {
		if !slices.Contains(known, k) {
			return fmt.Errorf("tenantrepo: unknown column %s.%s", table, k)
		}
	}
	if f.OrderBy != "" {
		col, _ := parseOrder(f.OrderBy)
		if !slices.Contains(known, col) {
			return fmt.Errorf("tenantrepo: unknown order column %s.%s", table, col)
		}
	}
	return nil
}

func tableName(table string) string {
	return pgx.Identifier{table}.Sanitize()
}

func scoped(b sq.SelectBuilder, tenantID uuid.UUID, f Filter) sq.SelectBuilder {
	b = b.Where(sq.Eq{"tenant_id": tenantID})
	if len(f.Where) > 0 {
		b = b.Where(sq.Eq(f.Where))
	}
	return b
}

func (s *PgStore) Select(ctx context.Context, table string, columns []string, tenantID uuid.UUID, f Filter) ([]map[string]any, error) {
	if err := s.checkColumns(table, f); err != nil {
		return nil, err
	}
	b := scoped(psql.Select(columns...).From(tableName(table)), tenantID, f)
	if f.OrderBy != "" {
		col, desc := parseOrder(f.OrderBy)
		if desc {
			col += " DESC"
		}
		b = b.OrderBy(col)
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "select %s", table)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, errors.Wrapf(err, "collect %s", table)
	}
	return out, nil
}

func (s *PgStore) Get(ctx context.Context, table string, columns []string, tenantID, id uuid.UUID) (map[string]any, error) {
	rows, err := s.Select(ctx, table, columns, tenantID, Filter{Where: map[string]any{"id": id}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *PgStore) Owner(ctx context.Context, table string, id uuid.UUID) (uuid.UUID, bool, error) {
	query, args, err := psql.Select("tenant_id").From(tableName(table)).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return uuid.Nil, false, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}
	var owner uuid.UUID
	if err := tx.QueryRow(ctx, query, args...).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, errors.Wrapf(err, "owner of %s", table)
	}
	return owner, true, nil
}

func (s *PgStore) Exists(ctx context.Context, table string, tenantID, id uuid.UUID) (bool, error) {
	query, args, err := psql.Select("1").
		From(tableName(table)).
		Where(sq.Eq{"id": id, "tenant_id": tenantID}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "exists in %s", table)
	}
	return exists, nil
}

func (s *PgStore) Count(ctx context.Context, table string, tenantID uuid.UUID, f Filter) (int64, error) {
	if err := s.checkColumns(table, Filter{Where: f.Where}); err != nil {
		return 0, err
	}
	query, args, err := scoped(psql.Select("COUNT(*)").From(tableName(table)), tenantID, f).ToSql()
	if err != nil {
		return 0, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count %s", table)
	}
	return n, nil
}

func (s *PgStore) Insert(ctx context.Context, table string, rows ...map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	columns := sortedKeys(rows[0])
	b := psql.Insert(tableName(table)).Columns(columns...)
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("tenantrepo: row %d of %s has a different column set", i, table)
		}
		values := make([]any, len(columns))
		for j, c := range columns {
			v, ok := row[c]
			if !ok {
				return fmt.Errorf("tenantrepo: row %d of %s is missing %s", i, table, c)
			}
			values[j] = v
		}
		b = b.Values(values...)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "insert into %s", table)
	}
	return nil
}

func (s *PgStore) Update(ctx context.Context, table string, tenantID, id uuid.UUID, row map[string]any) (int64, error) {
	set := make(map[string]any, len(row))
	for k, v := range row {
		if k == "id" || k == "tenant_id" {
			continue
		}
		set[k] = v
	}
	query, args, err := psql.Update(tableName(table)).
		SetMap(set).
		Where(sq.Eq{"id": id, "tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "update %s", table)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) Delete(ctx context.Context, table string, tenantID, id uuid.UUID) (int64, error) {
	query, args, err := psql.Delete(tableName(table)).
		Where(sq.Eq{"id": id, "tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "delete from %s", table)
	}
	return tag.RowsAffected(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
