package partition

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/itf"
)

func existingPartitions(keys ...string) func(ctx context.Context, sql string, args ...any) pgx.Row {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return func(ctx context.Context, sql string, args ...any) pgx.Row {
		return itf.StubRow{Values: []any{set[args[0].(string)]}}
	}
}

func searchPaths(tx *itf.StubTx) []string {
	var out []string
	for _, stmt := range tx.Statements() {
		if strings.HasPrefix(stmt, "SET LOCAL search_path") {
			out = append(out, stmt)
		}
	}
	return out
}

func TestPartitionFor_IsPureAndQuoted(t *testing.T) {
	t.Parallel()

	acme := itf.NewTenant("acme-vet")
	h := PartitionFor(acme)
	require.Equal(t, h, PartitionFor(acme))
	require.Equal(t, "tenant_acme_vet", h.Key())
	require.Equal(t, `"tenant_acme_vet"`, h.Identifier())
}

func TestWithPartition_PinsSearchPathAndTenant(t *testing.T) {
	t.Parallel()

	acme := itf.NewTenant("acme")
	tx := &itf.StubTx{QueryRowFunc: existingPartitions("tenant_acme")}
	r := NewRouter(&itf.StubBeginner{Tx: tx}, Options{})

	err := r.WithPartition(context.Background(), acme, func(ctx context.Context) error {
		h, ok := UseHandle(ctx)
		require.True(t, ok)
		require.Equal(t, "tenant_acme", h.Key())

		id, err := composables.UseTenantID(ctx)
		require.NoError(t, err)
		require.Equal(t, acme.ID(), id)
		return nil
	})
	require.NoError(t, err)
	require.True(t, tx.Committed())
	require.Equal(t, []string{`SET LOCAL search_path TO "tenant_acme", public`}, searchPaths(tx))
}

func TestWithPartition_MissingPartitionFailsClosed(t *testing.T) {
	t.Parallel()

	tx := &itf.StubTx{QueryRowFunc: existingPartitions()}
	r := NewRouter(&itf.StubBeginner{Tx: tx}, Options{})

	called := false
	err := r.WithPartition(context.Background(), itf.NewTenant("ghost"), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrPartitionNotFound)
	require.False(t, called)
	require.Empty(t, searchPaths(tx))
	require.True(t, tx.RolledBack())
}

func TestWithPartition_ReassertsOnEveryCheckout(t *testing.T) {
	t.Parallel()

	acme := itf.NewTenant("acme")
	tx := &itf.StubTx{QueryRowFunc: existingPartitions("tenant_acme")}
	b := &itf.StubBeginner{Tx: tx}
	r := NewRouter(b, Options{})

	for i := 0; i < 3; i++ {
		require.NoError(t, r.WithPartition(context.Background(), acme, func(context.Context) error { return nil }))
	}
	require.Equal(t, 3, b.Begins())
	require.Len(t, searchPaths(tx), 3)

	var checks int
	for _, stmt := range tx.Statements() {
		if strings.Contains(stmt, "pg_namespace") {
			checks++
		}
	}
	require.Equal(t, 1, checks, "positive existence checks are cached")
}

func TestWithPartition_NestedRestoresPreviousOnError(t *testing.T) {
	t.Parallel()

	acme, globex := itf.NewTenant("acme"), itf.NewTenant("globex")
	tx := &itf.StubTx{QueryRowFunc: existingPartitions("tenant_acme", "tenant_globex")}
	b := &itf.StubBeginner{Tx: tx}
	r := NewRouter(b, Options{})
	boom := errors.New("boom")

	err := r.WithPartition(context.Background(), acme, func(ctx context.Context) error {
		innerErr := r.WithPartition(ctx, globex, func(inner context.Context) error {
			h, _ := UseHandle(inner)
			require.Equal(t, "tenant_globex", h.Key())
			return boom
		})
		require.ErrorIs(t, innerErr, boom)

		h, _ := UseHandle(ctx)
		require.Equal(t, "tenant_acme", h.Key())
		id, err := composables.UseTenantID(ctx)
		require.NoError(t, err)
		require.Equal(t, acme.ID(), id)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, b.Begins())
	require.Equal(t, []string{
		`SET LOCAL search_path TO "tenant_acme", public`,
		`SET LOCAL search_path TO "tenant_globex", public`,
		`SET LOCAL search_path TO "tenant_acme", public`,
	}, searchPaths(tx))
}

func TestWithPartition_AuditEventsFollowOuterOutcome(t *testing.T) {
	t.Parallel()

	acme := itf.NewTenant("acme")
	tx := &itf.StubTx{QueryRowFunc: existingPartitions("tenant_acme")}
	r := NewRouter(&itf.StubBeginner{Tx: tx}, Options{})
	var recorded []event.Event
	rec := event.RecorderFunc(func(ctx context.Context, e event.Event) { recorded = append(recorded, e) })
	boom := errors.New("boom")

	err := r.WithPartition(context.Background(), acme, func(ctx context.Context) error {
		innerErr := r.WithPartition(ctx, acme, func(inner context.Context) error {
			event.Emit(inner, rec, event.Event{Type: event.TypeCreate, ResourceID: "c1", Success: true})
			return nil
		})
		require.NoError(t, innerErr)
		require.Empty(t, recorded, "nothing is final before the outer transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, tx.Committed())
	require.Len(t, recorded, 1)
	require.False(t, recorded[0].Success)
	require.Equal(t, "rolled back: boom", recorded[0].ErrorMessage)
}

func TestWithPartition_NestedRestoresAfterCancellation(t *testing.T) {
	t.Parallel()

	acme, globex := itf.NewTenant("acme"), itf.NewTenant("globex")
	var restoreCtxErr error
	tx := &itf.StubTx{QueryRowFunc: existingPartitions("tenant_acme", "tenant_globex")}
	tx.ExecFunc = func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		if strings.Contains(sql, `"tenant_acme"`) {
			restoreCtxErr = ctx.Err()
		}
		return pgconn.NewCommandTag("SET"), nil
	}
	r := NewRouter(&itf.StubBeginner{Tx: tx}, Options{})

	_ = r.WithPartition(context.Background(), acme, func(ctx context.Context) error {
		cctx, cancel := context.WithCancel(ctx)
		return r.WithPartition(cctx, globex, func(context.Context) error {
			cancel()
			return context.Canceled
		})
	})
	require.NoError(t, restoreCtxErr)
	require.Len(t, searchPaths(tx), 3)
}

func TestWithPartition_NestedRestoresOnPanic(t *testing.T) {
	t.Parallel()

	acme, globex := itf.NewTenant("acme"), itf.NewTenant("globex")
	tx := &itf.StubTx{QueryRowFunc: existingPartitions("tenant_acme", "tenant_globex")}
	r := NewRouter(&itf.StubBeginner{Tx: tx}, Options{})

	require.Panics(t, func() {
		_ = r.WithPartition(context.Background(), acme, func(ctx context.Context) error {
			return r.WithPartition(ctx, globex, func(context.Context) error {
				panic("boom")
			})
		})
	})
	paths := searchPaths(tx)
	require.Equal(t, `SET LOCAL search_path TO "tenant_acme", public`, paths[len(paths)-1])
	require.True(t, tx.RolledBack())
}

func TestWithPartition_NilTenant(t *testing.T) {
	t.Parallel()

	r := NewRouter(&itf.StubBeginner{Tx: &itf.StubTx{}}, Options{})
	err := r.WithPartition(context.Background(), nil, func(context.Context) error { return nil })
	require.ErrorIs(t, err, composables.ErrNoTenant)
}

func TestEnsureAndDropPartition(t *testing.T) {
	t.Parallel()

	acme := itf.NewTenant("acme")
	tx := &itf.StubTx{QueryRowFunc: existingPartitions()}
	r := NewRouter(&itf.StubBeginner{Tx: tx}, Options{})

	require.NoError(t, r.EnsurePartitionExists(context.Background(), acme))
	require.True(t, tx.Executed(`CREATE SCHEMA IF NOT EXISTS "tenant_acme"`))

	// cached after creation even though the stub catalog says otherwise
	require.NoError(t, r.WithPartition(context.Background(), acme, func(context.Context) error { return nil }))

	require.NoError(t, r.DropPartition(context.Background(), acme))
	require.True(t, tx.Executed(`DROP SCHEMA IF EXISTS "tenant_acme" CASCADE`))

	err := r.WithPartition(context.Background(), acme, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrPartitionNotFound)
}

type stubMigrator struct {
	applied int
	missing []string
	err     error
}

func (m *stubMigrator) Up(ctx context.Context, h Handle) (int, error) { return m.applied, m.err }

func (m *stubMigrator) Missing(ctx context.Context, h Handle) ([]string, error) {
	return m.missing, m.err
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	acme := itf.NewTenant("acme")
	r := NewRouter(&itf.StubBeginner{Tx: &itf.StubTx{}}, Options{})
	_, err := r.Migrate(context.Background(), acme)
	require.ErrorIs(t, err, ErrNoMigrator)

	r = NewRouter(&itf.StubBeginner{Tx: &itf.StubTx{}}, Options{Migrator: &stubMigrator{applied: 4, missing: []string{"0004_compliance.sql"}}})
	n, err := r.Migrate(context.Background(), acme)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	missing, err := r.MissingMigrations(context.Background(), acme)
	require.NoError(t, err)
	require.Equal(t, []string{"0004_compliance.sql"}, missing)
}
