package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/modules/audit/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/pkg/itf"
)

func TestEventRepository_AppendWritesEveryColumn(t *testing.T) {
	t.Parallel()

	var gotSQL string
	var gotArgs []any
	db := &itf.StubTx{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL, gotArgs = sql, args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}
	r := persistence.NewEventRepository(db)

	tenantID := uuid.New()
	err := r.Append(context.Background(), event.Event{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Type:          event.TypeCreate,
		ResourceType:  "customers",
		ResourceID:    uuid.NewString(),
		Timestamp:     time.Now(),
		Success:       true,
		After:         map[string]any{"name": "Maria"},
		RetentionDays: 30,
	})
	require.NoError(t, err)
	require.Contains(t, gotSQL, "INSERT INTO public.audit_events")
	require.Len(t, gotArgs, 17)
	require.Equal(t, tenantID, gotArgs[1])
	require.JSONEq(t, `{"name":"Maria"}`, string(gotArgs[9].([]byte)))
	require.Nil(t, gotArgs[8], "absent before snapshot is NULL")
	require.NotNil(t, gotArgs[13], "retention sets expires_at")
}

func TestEventRepository_QueriesAreTenantScoped(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	var statements []string
	var firstArgs [][]any
	db := &itf.StubTx{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			statements = append(statements, sql)
			firstArgs = append(firstArgs, args)
			return pgconn.NewCommandTag("DELETE 3"), nil
		},
	}
	r := persistence.NewEventRepository(db)
	ctx := context.Background()

	n, err := r.PurgeOlderThan(ctx, tenantID, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	_, err = r.PurgeExpired(ctx, tenantID, time.Now())
	require.NoError(t, err)

	require.Len(t, statements, 2)
	require.Contains(t, statements[0], "DELETE FROM public.audit_events WHERE (tenant_id = $1 AND occurred_at < $2)")
	require.Contains(t, statements[1], "expires_at IS NOT NULL")
	for _, args := range firstArgs {
		require.Equal(t, tenantID, args[0])
	}
}

func TestEventRepository_ListFilters(t *testing.T) {
	t.Parallel()

	var gotSQL string
	db := &itf.StubTx{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			gotSQL = sql
			return &itf.StubRows{}, nil
		},
	}
	r := persistence.NewEventRepository(db)
	ok := true
	events, err := r.List(context.Background(), uuid.New(), &event.FindParams{
		Types:        []event.Type{event.TypeDelete},
		ResourceType: "customers",
		SuccessOnly:  &ok,
		Limit:        5,
	})
	require.NoError(t, err)
	require.Empty(t, events)
	require.Contains(t, gotSQL, "tenant_id = $1")
	require.Contains(t, gotSQL, "event_type IN ($2)")
	require.Contains(t, gotSQL, "resource_type = $3")
	require.Contains(t, gotSQL, "success = $4")
	require.Contains(t, gotSQL, "LIMIT 5")
}

func TestMemoryRepository_PurgeStaysInTenant(t *testing.T) {
	t.Parallel()

	r := persistence.NewMemoryRepository()
	ctx := context.Background()
	acme, globex := uuid.New(), uuid.New()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, r.Append(ctx,
		event.Event{ID: uuid.New(), TenantID: acme, Type: event.TypeCreate, Timestamp: old, RetentionDays: 1},
		event.Event{ID: uuid.New(), TenantID: acme, Type: event.TypeCreate, Timestamp: time.Now()},
		event.Event{ID: uuid.New(), TenantID: globex, Type: event.TypeCreate, Timestamp: old, RetentionDays: 1},
	))

	n, err := r.PurgeExpired(ctx, acme, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	left, err := r.Count(ctx, acme, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, left)

	other, err := r.Count(ctx, globex, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, other)
}
