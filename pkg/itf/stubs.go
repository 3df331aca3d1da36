package itf

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// StubTx is a pgx.Tx that records every statement and delegates to optional hooks.
type StubTx struct {
	ExecFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	CommitErr    error
	RollbackErr  error

	mu         sync.Mutex
	statements []string
	committed  bool
	rolledBack bool
}

func (s *StubTx) record(sql string) {
	s.mu.Lock()
	s.statements = append(s.statements, sql)
	s.mu.Unlock()
}

// Statements returns the SQL seen so far, in order.
func (s *StubTx) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statements...)
}

// Executed reports whether any recorded statement contains fragment.
func (s *StubTx) Executed(fragment string) bool {
	for _, stmt := range s.Statements() {
		if strings.Contains(stmt, fragment) {
			return true
		}
	}
	return false
}

func (s *StubTx) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

func (s *StubTx) RolledBack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolledBack
}

func (s *StubTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return s, nil
}

func (s *StubTx) Commit(ctx context.Context) error {
	s.mu.Lock()
	s.committed = s.CommitErr == nil
	s.mu.Unlock()
	return s.CommitErr
}

func (s *StubTx) Rollback(ctx context.Context) error {
	s.mu.Lock()
	if !s.committed {
		s.rolledBack = true
	}
	s.mu.Unlock()
	return s.RollbackErr
}

func (s *StubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("copy not implemented")
}

func (s *StubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	var results pgx.BatchResults
	return results
}

func (s *StubTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (s *StubTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("prepare not implemented")
}

func (s *StubTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	s.record(sql)
	if s.ExecFunc == nil {
		return pgconn.NewCommandTag("OK"), nil
	}
	return s.ExecFunc(ctx, sql, arguments...)
}

func (s *StubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.record(sql)
	if s.QueryFunc == nil {
		return &StubRows{}, nil
	}
	return s.QueryFunc(ctx, sql, args...)
}

func (s *StubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	s.record(sql)
	if s.QueryRowFunc == nil {
		return StubRow{Err: pgx.ErrNoRows}
	}
	return s.QueryRowFunc(ctx, sql, args...)
}

func (s *StubTx) Conn() *pgx.Conn {
	return nil
}

// StubBeginner hands out Tx on every Begin. It satisfies repo.Beginner.
type StubBeginner struct {
	Tx  *StubTx
	Err error

	mu     sync.Mutex
	begins int
}

func (b *StubBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	b.mu.Lock()
	b.begins++
	b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	return b.Tx, nil
}

func (b *StubBeginner) Begins() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.begins
}

// StubRows serves Data row by row under the given Columns.
type StubRows struct {
	Columns []string
	Data    [][]any
	Error   error

	idx int
}

func (r *StubRows) Next() bool {
	if r.idx >= len(r.Data) {
		return false
	}
	r.idx++
	return true
}

func (r *StubRows) current() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.Data) {
		return nil, errors.New("no current row")
	}
	return r.Data[r.idx-1], nil
}

func (r *StubRows) Scan(dest ...any) error {
	if len(dest) == 1 {
		if rs, ok := dest[0].(pgx.RowScanner); ok {
			return rs.ScanRow(r)
		}
	}
	row, err := r.current()
	if err != nil {
		return err
	}
	return assign(row, dest)
}

func (r *StubRows) Values() ([]any, error) {
	return r.current()
}

func (r *StubRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}

func (r *StubRows) RawValues() [][]byte { return nil }
func (r *StubRows) Err() error          { return r.Error }
func (r *StubRows) Close()              {}
func (r *StubRows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.Data)))
}
func (r *StubRows) Conn() *pgx.Conn { return nil }

// StubRow is a single-row result. Values are assigned positionally to Scan destinations.
type StubRow struct {
	Values []any
	Err    error
}

func (r StubRow) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	return assign(r.Values, dest)
}

func assign(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("destination length %d does not match row length %d", len(dest), len(row))
	}
	for i, target := range dest {
		tv := reflect.ValueOf(target)
		if tv.Kind() != reflect.Pointer || tv.IsNil() {
			return fmt.Errorf("scan target %d is not a non-nil pointer", i)
		}
		elem := tv.Elem()
		if row[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		v := reflect.ValueOf(row[i])
		switch {
		case v.Type().AssignableTo(elem.Type()):
			elem.Set(v)
		case elem.Kind() == reflect.Pointer && v.Type().AssignableTo(elem.Type().Elem()):
			p := reflect.New(elem.Type().Elem())
			p.Elem().Set(v)
			elem.Set(p)
		case v.Type().ConvertibleTo(elem.Type()):
			elem.Set(v.Convert(elem.Type()))
		default:
			return fmt.Errorf("cannot scan %T into %s", row[i], elem.Type())
		}
	}
	return nil
}
