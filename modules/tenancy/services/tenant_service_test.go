package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/adminuser"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/services"
	"github.com/iota-uz/tenantcore/pkg/itf"
	"github.com/iota-uz/tenantcore/pkg/keyring"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

type evictions struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (e *evictions) RotateKey(ctx context.Context, tenantID uuid.UUID) (int, error) { return 2, nil }

func (e *evictions) Evict(tenantID uuid.UUID) {
	e.mu.Lock()
	e.ids = append(e.ids, tenantID)
	e.mu.Unlock()
}

func provisioned(t *testing.T, f *fixture, identifier string) *tenant.Tenant {
	t.Helper()
	tn, _, err := f.service.CreateTenant(operatorContext(t), validSpec(identifier))
	require.NoError(t, err)
	return tn
}

func TestTenantService_Lifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	keys := &evictions{}
	svc := services.NewTenantService(f.tenants, f.users, f.partitions, keys, f.bus, nil)
	services.EvictKeysOnLifecycle(f.bus, keys)
	var deactivated, activated, deleted int
	f.bus.Subscribe(func(*tenant.DeactivatedEvent) { deactivated++ })
	f.bus.Subscribe(func(*tenant.ActivatedEvent) { activated++ })
	f.bus.Subscribe(func(*tenant.DeletedEvent) { deleted++ })

	ctx := operatorContext(t)
	acme := provisioned(t, f, "acme")

	require.ErrorIs(t, svc.HardDelete(ctx, acme.ID()), services.ErrTenantActive)

	off, err := svc.Deactivate(ctx, acme.ID())
	require.NoError(t, err)
	require.False(t, off.IsActive())
	_, err = svc.Deactivate(ctx, acme.ID())
	require.NoError(t, err)
	require.Equal(t, 1, deactivated, "repeated deactivation is a no-op")

	on, err := svc.Activate(ctx, acme.ID())
	require.NoError(t, err)
	require.True(t, on.IsActive())
	require.Equal(t, 1, activated)

	_, err = svc.Deactivate(ctx, acme.ID())
	require.NoError(t, err)
	require.NoError(t, svc.HardDelete(ctx, acme.ID()))
	require.Equal(t, 1, deleted)

	_, err = svc.GetByID(ctx, acme.ID())
	require.ErrorIs(t, err, tenant.ErrNotFound)
	admins, err := f.users.ListByTenant(ctx, acme.ID(), false)
	require.NoError(t, err)
	require.Empty(t, admins)
	require.False(t, f.partitions.exists(acme.ID()))
	require.Zero(t, f.seedCount(acme))

	require.Equal(t, []uuid.UUID{acme.ID(), acme.ID(), acme.ID()}, keys.ids, "two deactivations and one delete evict keys")
}

func TestTenantService_Lookup(t *testing.T) {
	t.Parallel()

	f := newFixture()
	svc := services.NewTenantService(f.tenants, f.users, f.partitions, &evictions{}, nil, nil)
	acme := provisioned(t, f, "acme")
	ctx := context.Background()

	byID, err := svc.Lookup(ctx, acme.ID().String())
	require.NoError(t, err)
	require.Equal(t, "acme", byID.Identifier())

	byIdent, err := svc.Lookup(ctx, " ACME ")
	require.NoError(t, err)
	require.Equal(t, acme.ID(), byIdent.ID())

	list, err := svc.List(ctx, &tenant.FindParams{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestTenantService_RotateKeyMakesOldDataUnreadable(t *testing.T) {
	t.Parallel()

	f := newFixture()
	kr, err := keyring.New([]byte("master-secret"), f.tenants, keyring.Options{Iterations: 1000})
	require.NoError(t, err)
	svc := services.NewTenantService(f.tenants, f.users, f.partitions, kr, f.bus, nil)
	var rotated []*tenant.KeyRotatedEvent
	f.bus.Subscribe(func(e *tenant.KeyRotatedEvent) { rotated = append(rotated, e) })

	ctx := operatorContext(t)
	acme := provisioned(t, f, "acme")
	blob, err := kr.Encrypt(ctx, []byte("+1 555 0100"), acme.ID())
	require.NoError(t, err)

	v, err := svc.RotateKey(ctx, acme.ID())
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Len(t, rotated, 1)
	require.Equal(t, 2, rotated[0].KeyVersion)

	_, err = kr.Decrypt(ctx, blob, acme.ID())
	require.ErrorIs(t, err, keyring.ErrDecryptionFailed)
}

func TestTenantService_RequiresOperator(t *testing.T) {
	t.Parallel()

	f := newFixture()
	svc := services.NewTenantService(f.tenants, f.users, f.partitions, &evictions{}, nil, nil)
	acme := provisioned(t, f, "acme")
	admin := itf.NewTestContext().WithTenantAdmin(acme).Build(t)

	_, err := svc.Deactivate(admin, acme.ID())
	require.ErrorIs(t, err, services.ErrForbidden)
	_, err = svc.RotateKey(admin, acme.ID())
	require.ErrorIs(t, err, services.ErrForbidden)
	require.ErrorIs(t, svc.HardDelete(admin, acme.ID()), services.ErrForbidden)
}

func TestTenantService_AddAdminHonoursUserLimit(t *testing.T) {
	t.Parallel()

	f := newFixture()
	svc := services.NewTenantService(f.tenants, f.users, f.partitions, &evictions{}, f.bus, nil)
	ctx := operatorContext(t)
	spec := validSpec("acme")
	spec.PlanLimits = tenant.PlanLimits{MaxUsers: 2}
	acme, _, err := f.service.CreateTenant(ctx, spec)
	require.NoError(t, err)

	u, err := svc.AddAdmin(ctx, acme.ID(), services.NewAdmin{Email: " Second@Acme.test ", Password: "correct-horse-43"})
	require.NoError(t, err)
	require.Equal(t, "second@acme.test", u.Email)

	_, err = svc.AddAdmin(ctx, acme.ID(), services.NewAdmin{Email: "third@acme.test", Password: "correct-horse-44"})
	require.ErrorIs(t, err, tenantrepo.ErrPlanLimitExceeded)
	_, err = f.users.GetByEmail(ctx, "third@acme.test")
	require.ErrorIs(t, err, adminuser.ErrNotFound)

	_, err = svc.AddAdmin(ctx, acme.ID(), services.NewAdmin{Email: "second@acme.test", Password: "correct-horse-45"})
	require.ErrorIs(t, err, services.ErrEmailTaken)
}

func TestTenantService_AddAdminWithoutLimit(t *testing.T) {
	t.Parallel()

	f := newFixture()
	svc := services.NewTenantService(f.tenants, f.users, f.partitions, &evictions{}, f.bus, nil)
	ctx := operatorContext(t)
	acme := provisioned(t, f, "acme")

	for _, email := range []string{"a@acme.test", "b@acme.test", "c@acme.test"} {
		_, err := svc.AddAdmin(ctx, acme.ID(), services.NewAdmin{Email: email, Password: "correct-horse-42"})
		require.NoError(t, err)
	}
	admins, err := f.users.ListByTenant(ctx, acme.ID(), false)
	require.NoError(t, err)
	require.Len(t, admins, 4)

	_, err = svc.AddAdmin(itf.NewTestContext().WithTenantAdmin(acme).Build(t), acme.ID(), services.NewAdmin{Email: "d@acme.test", Password: "correct-horse-42"})
	require.ErrorIs(t, err, services.ErrForbidden)
}
