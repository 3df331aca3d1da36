package services_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/animal"
	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/appointment"
	"github.com/iota-uz/tenantcore/modules/clinic/domain/entities/customer"
	clinicpersistence "github.com/iota-uz/tenantcore/modules/clinic/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/modules/tenancy/services"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/fieldcrypt"
	"github.com/iota-uz/tenantcore/pkg/keyring"
	"github.com/iota-uz/tenantcore/pkg/tenantrepo"
)

func restoreFixture(t *testing.T) (*fixture, *services.RestoreService) {
	t.Helper()
	f := newFixture()
	kr, err := keyring.New([]byte("master-secret"), f.tenants, keyring.Options{Iterations: 1000})
	require.NoError(t, err)
	f.repos = clinicpersistence.NewRepositories(f.store, tenantrepo.Options{
		Scoper: f.partitions,
		Codec:  fieldcrypt.New(kr, fieldcrypt.Options{}),
	})
	return f, services.NewRestoreService(f.partitions, f.repos, nil)
}

func snapshotJSON(t *testing.T, snap services.Snapshot) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func TestRestoreService_Restore(t *testing.T) {
	t.Parallel()

	f, svc := restoreFixture(t)
	ctx := operatorContext(t)
	acme := provisioned(t, f, "acme")

	maria := customer.New("Maria")
	maria.Email = "maria@example.com"
	rex := animal.New(maria.ID, "Rex", "dog")
	visit := appointment.New(maria.ID, rex.ID, time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))

	summary, err := svc.Restore(ctx, acme, snapshotJSON(t, services.Snapshot{
		Customers:    []*customer.Customer{maria, customer.New("Joao")},
		Animals:      []*animal.Animal{rex},
		Appointments: []*appointment.Appointment{visit},
	}))
	require.NoError(t, err)
	require.Equal(t, services.RestoreSummary{Customers: 2, Animals: 1, Appointments: 1}, summary)

	err = composables.RunScoped(context.Background(), acme, func(ctx context.Context) error {
		got, err := f.repos.Customers.FindByID(ctx, maria.ID)
		require.NoError(t, err)
		require.Equal(t, acme.ID(), got.TenantID)
		require.Equal(t, "maria@example.com", got.Email)

		n, err := f.repos.Appointments.Count(ctx, tenantrepo.Filter{})
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)

	rows, err := f.store.Select(context.Background(), clinicpersistence.CustomersTable, []string{"id", "email"}, acme.ID(), tenantrepo.Filter{
		Where: map[string]any{"id": maria.ID},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotContains(t, rows[0]["email"], "maria@", "sensitive fields are stored encrypted")
}

func TestRestoreService_RejectsForeignRecords(t *testing.T) {
	t.Parallel()

	f, svc := restoreFixture(t)
	ctx := operatorContext(t)
	acme := provisioned(t, f, "acme")
	globex := provisioned(t, f, "globex")

	stolen := customer.New("Maria")
	stolen.TenantID = globex.ID()
	_, err := svc.Restore(ctx, acme, snapshotJSON(t, services.Snapshot{Customers: []*customer.Customer{stolen}}))
	require.ErrorIs(t, err, tenantrepo.ErrCrossTenantViolation)

	_, err = svc.Restore(ctx, acme, strings.NewReader(`{"invoices": []}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode snapshot")
}
