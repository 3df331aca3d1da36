package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	clinicpersistence "github.com/iota-uz/tenantcore/modules/clinic/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/modules/tenancy/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/modules/tenancy/services"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/eventbus"
	"github.com/iota-uz/tenantcore/pkg/itf"
	"github.com/iota-uz/tenantcore/pkg/partition"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

var partitionMigrations = []string{"0001_service_catalog", "0002_customers_animals", "0003_appointments", "0004_compliance"}

// fakePartitions mirrors partition.Router over a MemStore: dropping a partition drops its rows.
type fakePartitions struct {
	store *tenantrepo.MemStore

	mu       sync.Mutex
	created  map[uuid.UUID]bool
	migrated map[uuid.UUID]bool
	drops    int

	failEnsure  error
	failMigrate error
	failDrop    error
}

func newFakePartitions(store *tenantrepo.MemStore) *fakePartitions {
	return &fakePartitions{
		store:    store,
		created:  make(map[uuid.UUID]bool),
		migrated: make(map[uuid.UUID]bool),
	}
}

func (f *fakePartitions) PartitionExists(ctx context.Context, t *tenant.Tenant) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[t.ID()], nil
}

func (f *fakePartitions) EnsurePartitionExists(ctx context.Context, t *tenant.Tenant) error {
	if f.failEnsure != nil {
		return f.failEnsure
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[t.ID()] = true
	return nil
}

func (f *fakePartitions) Migrate(ctx context.Context, t *tenant.Tenant) (int, error) {
	if f.failMigrate != nil {
		return 0, f.failMigrate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.created[t.ID()] {
		return 0, partition.ErrPartitionNotFound
	}
	f.migrated[t.ID()] = true
	return len(partitionMigrations), nil
}

func (f *fakePartitions) MissingMigrations(ctx context.Context, t *tenant.Tenant) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.migrated[t.ID()] {
		return nil, nil
	}
	return partitionMigrations, nil
}

func (f *fakePartitions) DropPartition(ctx context.Context, t *tenant.Tenant) error {
	f.mu.Lock()
	f.drops++
	f.mu.Unlock()
	if f.failDrop != nil {
		return f.failDrop
	}
	f.mu.Lock()
	delete(f.created, t.ID())
	delete(f.migrated, t.ID())
	f.mu.Unlock()
	f.store.DropTenant(t.ID())
	return nil
}

func (f *fakePartitions) WithPartition(ctx context.Context, t *tenant.Tenant, fn func(context.Context) error) error {
	f.mu.Lock()
	ok := f.created[t.ID()]
	f.mu.Unlock()
	if !ok {
		return partition.ErrPartitionNotFound
	}
	return composables.RunScoped(ctx, t, fn)
}

func (f *fakePartitions) exists(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[id]
}

type fixture struct {
	tenants    *persistence.MemoryTenantRepository
	users      *persistence.MemoryAdminUserRepository
	store      *tenantrepo.MemStore
	partitions *fakePartitions
	repos      *clinicpersistence.Repositories
	bus        eventbus.EventBus
	service    *services.ProvisioningService
}

func newFixture() *fixture {
	f := &fixture{
		tenants: persistence.NewMemoryTenantRepository(),
		users:   persistence.NewMemoryAdminUserRepository(),
		store:   tenantrepo.NewMemStore(),
		bus:     eventbus.NewEventPublisher(nil),
	}
	f.partitions = newFakePartitions(f.store)
	f.repos = clinicpersistence.NewRepositories(f.store, tenantrepo.Options{Scoper: f.partitions})
	f.service = services.NewProvisioningService(f.tenants, f.users, f.partitions, f.repos.Services, services.ProvisioningOptions{
		Publisher: f.bus,
	})
	return f
}

func (f *fixture) seedCount(t *tenant.Tenant) int64 {
	var n int64
	_ = composables.RunScoped(context.Background(), t, func(ctx context.Context) error {
		var err error
		n, err = f.repos.Services.Count(ctx, tenantrepo.Filter{})
		return err
	})
	return n
}

func operatorContext(tb testing.TB) context.Context {
	return itf.NewTestContext().
		WithPrincipal(principal.NewSystemPrincipal("tenantctl", principal.RoleSystemOperator)).
		Build(tb)
}

func validSpec(identifier string) services.Spec {
	return services.Spec{
		Identifier:    identifier,
		Name:          "Acme Veterinary",
		AdminEmail:    "owner@" + identifier + ".test",
		AdminPassword: "correct-horse-42",
	}
}
