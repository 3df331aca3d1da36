package partition

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/pkg/itf"
)

func TestSQLMigrator_Missing(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id FROM "tenant_acme"."partition_migrations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow("0001_service_catalog.sql").
			AddRow("0002_customers_animals.sql"))
	mock.ExpectClose()

	m := NewSQLMigrator(func(h Handle) (*sql.DB, error) {
		require.Equal(t, "tenant_acme", h.Key())
		return db, nil
	})
	missing, err := m.Missing(context.Background(), PartitionFor(itf.NewTenant("acme")))
	require.NoError(t, err)
	require.Equal(t, []string{"0003_appointments.sql", "0004_compliance.sql"}, missing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMigrator_MissingWithoutMigrationTable(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id FROM`).WillReturnError(sql.ErrConnDone)
	mock.ExpectQuery(`information_schema.tables`).
		WithArgs("tenant_acme", "partition_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectClose()

	m := NewSQLMigrator(func(Handle) (*sql.DB, error) { return db, nil })
	missing, err := m.Missing(context.Background(), PartitionFor(itf.NewTenant("acme")))
	require.NoError(t, err)
	require.Len(t, missing, 4)
	require.NoError(t, mock.ExpectationsWereMet())
}
