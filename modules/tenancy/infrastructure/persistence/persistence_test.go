package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/pkg/itf"
)

func TestTenantRepository_CreateMapsUniqueViolation(t *testing.T) {
	t.Parallel()

	tx := &itf.StubTx{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", Message: "duplicate key"}
		},
	}
	ctx := itf.NewTestContext().WithTx(tx).Build(t)

	_, err := persistence.NewTenantRepository().Create(ctx, itf.NewTenant("acme"))
	require.ErrorIs(t, err, tenant.ErrIdentifierTaken)
}

func TestTenantRepository_BumpKeyVersion(t *testing.T) {
	t.Parallel()

	tx := &itf.StubTx{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return itf.StubRow{Values: []any{3}}
		},
	}
	ctx := itf.NewTestContext().WithTx(tx).Build(t)
	v, err := persistence.NewTenantRepository().BumpKeyVersion(ctx, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 3, v)
	require.True(t, tx.Executed("key_version = key_version + 1"))

	missing := itf.NewTestContext().WithTx(&itf.StubTx{}).Build(t)
	_, err = persistence.NewTenantRepository().BumpKeyVersion(missing, uuid.New())
	require.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestTenantRepository_GetByIdentifierScansRow(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	now := time.Now()
	var gotArgs []any
	tx := &itf.StubTx{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			gotArgs = args
			return &itf.StubRows{Data: [][]any{{
				id.String(), "acme", "tenant_acme", "Acme", true,
				[]byte(`{"max_users":5,"max_entities":{"customers":10}}`), 2, now, now,
			}}}, nil
		},
	}
	ctx := itf.NewTestContext().WithTx(tx).Build(t)

	got, err := persistence.NewTenantRepository().GetByIdentifier(ctx, " ACME ")
	require.NoError(t, err)
	require.Equal(t, []any{"acme"}, gotArgs)
	require.Equal(t, id, got.ID())
	require.Equal(t, "tenant_acme", got.PartitionKey())
	require.Equal(t, 2, got.KeyVersion())
	limit, ok := got.PlanLimits().EntityLimit("customers")
	require.True(t, ok)
	require.Equal(t, 10, limit)
}

func TestMemoryTenantRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := persistence.NewMemoryTenantRepository()
	acme := itf.NewTenant("acme")

	_, err := r.Create(ctx, acme)
	require.NoError(t, err)
	_, err = r.Create(ctx, itf.NewTenant("acme"))
	require.ErrorIs(t, err, tenant.ErrIdentifierTaken)

	v, err := r.BumpKeyVersion(ctx, acme.ID())
	require.NoError(t, err)
	require.Equal(t, 2, v)

	acme.Deactivate()
	_, err = r.Update(ctx, acme)
	require.NoError(t, err)

	active, err := r.List(ctx, &tenant.FindParams{ActiveOnly: true})
	require.NoError(t, err)
	require.Empty(t, active)

	got, err := r.GetByIdentifier(ctx, "acme")
	require.NoError(t, err)
	require.False(t, got.IsActive())
	require.Equal(t, 2, got.KeyVersion(), "update does not reset the key version")
}

func TestCachedTenantRepository_FallsThroughWhenRedisIsDown(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	acme := itf.NewTenant("acme")
	source := persistence.NewMemoryTenantRepository(acme)
	r := persistence.NewCachedTenantRepository(source, client, time.Minute, nil)
	ctx := context.Background()

	got, err := r.GetByID(ctx, acme.ID())
	require.NoError(t, err)
	require.Equal(t, acme.Identifier(), got.Identifier())

	got, err = r.GetByIdentifier(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, acme.ID(), got.ID())

	v, err := r.BumpKeyVersion(ctx, acme.ID())
	require.NoError(t, err)
	require.Equal(t, 2, v)

	_, err = r.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, tenant.ErrNotFound)
}
