package tenantrepo

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore keeps all tenants' rows in shared in-memory tables. It backs tests and offline tooling;
// isolation comes entirely from the tenant filters the Repository passes in.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string]*memTable

	// FailInsert, when set, is consulted before every insert.
	FailInsert func(table string) error
}

type memTable struct {
	rows  map[uuid.UUID]map[string]any
	order []uuid.UUID
}

func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[string]*memTable)}
}

func (s *MemStore) table(name string) *memTable {
	t, ok := s.tables[name]
	if !ok {
		t = &memTable{rows: make(map[uuid.UUID]map[string]any)}
		s.tables[name] = t
	}
	return t
}

func rowTenant(row map[string]any) uuid.UUID {
	id, _ := UUIDValue(row["tenant_id"])
	return id
}

func project(row map[string]any, columns []string) map[string]any {
	if len(columns) == 0 {
		return maps.Clone(row)
	}
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return out
}

func matches(row map[string]any, where map[string]any) bool {
	for k, want := range where {
		got := row[k]
		if gu, err := UUIDValue(got); err == nil && gu != uuid.Nil {
			if wu, err := UUIDValue(want); err == nil && wu == gu {
				continue
			}
			return false
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func (s *MemStore) Select(ctx context.Context, table string, columns []string, tenantID uuid.UUID, f Filter) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return nil, nil
	}
	var out []map[string]any
	for _, id := range t.order {
		row := t.rows[id]
		if rowTenant(row) != tenantID || !matches(row, f.Where) {
			continue
		}
		out = append(out, project(row, columns))
	}
	if f.OrderBy != "" {
		sortRows(out, f.OrderBy)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortRows(rows []map[string]any, orderBy string) {
	col, desc := parseOrder(orderBy)
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return lessValue(rows[j][col], rows[i][col])
		}
		return lessValue(rows[i][col], rows[j][col])
	})
}

func parseOrder(orderBy string) (string, bool) {
	parts := strings.Fields(orderBy)
	if len(parts) == 0 {
		return "", false
	}
	return parts[0], len(parts) > 1 && strings.EqualFold(parts[1], "DESC")
}

func lessValue(a, b any) bool {
	switch x := a.(type) {
	case time.Time:
		return x.Before(TimeValue(b))
	case string:
		return x < StringValue(b)
	case int, int32, int64:
		ai, _ := Int64Value(a)
		bi, _ := Int64Value(b)
		return ai < bi
	default:
		return fmt.Sprint(a) < fmt.Sprint(b)
	}
}

func (s *MemStore) Get(ctx context.Context, table string, columns []string, tenantID, id uuid.UUID) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return nil, ErrNotFound
	}
	row, ok := t.rows[id]
	if !ok || rowTenant(row) != tenantID {
		return nil, ErrNotFound
	}
	return project(row, columns), nil
}

func (s *MemStore) Owner(ctx context.Context, table string, id uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return uuid.Nil, false, nil
	}
	row, ok := t.rows[id]
	if !ok {
		return uuid.Nil, false, nil
	}
	return rowTenant(row), true, nil
}

func (s *MemStore) Exists(ctx context.Context, table string, tenantID, id uuid.UUID) (bool, error) {
	owner, found, err := s.Owner(ctx, table, id)
	if err != nil {
		return false, err
	}
	return found && owner == tenantID, nil
}

func (s *MemStore) Count(ctx context.Context, table string, tenantID uuid.UUID, f Filter) (int64, error) {
	rows, err := s.Select(ctx, table, []string{"id"}, tenantID, Filter{Where: f.Where})
	return int64(len(rows)), err
}

// Insert adds all rows or none.
func (s *MemStore) Insert(ctx context.Context, table string, rows ...map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailInsert != nil {
		if err := s.FailInsert(table); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	ids := make([]uuid.UUID, len(rows))
	seen := make(map[uuid.UUID]struct{}, len(rows))
	for i, row := range rows {
		id, err := UUIDValue(row["id"])
		if err != nil {
			return err
		}
		if id == uuid.Nil {
			return fmt.Errorf("%s: row %d has no id", table, i)
		}
		if _, dup := t.rows[id]; dup {
			return fmt.Errorf("%s: duplicate key %s", table, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s: duplicate key %s in batch", table, id)
		}
		seen[id] = struct{}{}
		ids[i] = id
	}
	for i, row := range rows {
		t.rows[ids[i]] = maps.Clone(row)
		t.order = append(t.order, ids[i])
	}
	return nil
}

func (s *MemStore) Update(ctx context.Context, table string, tenantID, id uuid.UUID, row map[string]any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table]
	if !ok {
		return 0, nil
	}
	cur, ok := t.rows[id]
	if !ok || rowTenant(cur) != tenantID {
		return 0, nil
	}
	next := maps.Clone(cur)
	for k, v := range row {
		if k == "id" || k == "tenant_id" {
			continue
		}
		next[k] = v
	}
	t.rows[id] = next
	return 1, nil
}

func (s *MemStore) Delete(ctx context.Context, table string, tenantID, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table]
	if !ok {
		return 0, nil
	}
	cur, ok := t.rows[id]
	if !ok || rowTenant(cur) != tenantID {
		return 0, nil
	}
	delete(t.rows, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

// DropTenant removes every row owned by tenantID. It stands in for dropping a partition.
func (s *MemStore) DropTenant(tenantID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, t := range s.tables {
		kept := t.order[:0]
		for _, id := range t.order {
			if rowTenant(t.rows[id]) == tenantID {
				delete(t.rows, id)
				removed++
				continue
			}
			kept = append(kept, id)
		}
		t.order = kept
	}
	return removed
}
