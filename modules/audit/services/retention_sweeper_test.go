package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/modules/audit/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/modules/audit/services"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	tenancypersistence "github.com/iota-uz/tenantcore/modules/tenancy/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/pkg/itf"
)

func TestRetentionSweeper_PurgesExpiredPerActiveTenant(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	acme := itf.NewTenant("acme")
	globex := itf.NewTenant("globex")
	dormant := itf.NewTenant("dormant", tenant.WithIsActive(false))
	tenants := tenancypersistence.NewMemoryTenantRepository(acme, globex, dormant)

	store := persistence.NewMemoryRepository()
	stale := func(tenantID uuid.UUID, age time.Duration, retention int) event.Event {
		return event.Event{
			ID:            uuid.New(),
			TenantID:      tenantID,
			Type:          event.TypeUpdate,
			ResourceType:  "customers",
			Timestamp:     now.Add(-age),
			RetentionDays: retention,
		}
	}
	day := 24 * time.Hour
	require.NoError(t, store.Append(context.Background(),
		stale(acme.ID(), 40*day, 30),
		stale(acme.ID(), 10*day, 30),
		stale(globex.ID(), 400*day, 365),
		stale(globex.ID(), 400*day, 0),
		stale(dormant.ID(), 400*day, 30),
	))

	pipeline := services.NewPipeline(store, store, services.PipelineOptions{RetentionDays: 30})
	sweeper := services.NewRetentionSweeper(pipeline, tenants, services.SweeperOptions{
		Now: func() time.Time { return now },
	})

	purged, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), purged)

	for id, want := range map[uuid.UUID]int64{acme.ID(): 1, globex.ID(): 1, dormant.ID(): 1} {
		n, err := store.Count(context.Background(), id, nil)
		require.NoError(t, err)
		require.Equal(t, want, n)
	}
}

func TestRetentionSweeper_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := persistence.NewMemoryRepository()
	pipeline := services.NewPipeline(store, store, services.PipelineOptions{RetentionDays: 30})
	sweeper := services.NewRetentionSweeper(pipeline, tenancypersistence.NewMemoryTenantRepository(), services.SweeperOptions{
		Interval: time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sweeper.Run(ctx), context.DeadlineExceeded)
}
