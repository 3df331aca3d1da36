package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/infrastructure/persistence/models"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/repo"
)

const (
	tenantFindQuery = `SELECT id, identifier, partition_key, name, is_active, plan_limits, key_version, created_at, updated_at FROM public.tenants`

	uniqueViolation = "23505"
)

type TenantRepository struct{}

func NewTenantRepository() tenant.Repository {
	return &TenantRepository{}
}

func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return r.getOne(ctx, tenantFindQuery+" WHERE id = $1", id.String())
}

func (r *TenantRepository) GetByIdentifier(ctx context.Context, identifier string) (*tenant.Tenant, error) {
	return r.getOne(ctx, tenantFindQuery+" WHERE identifier = $1", tenant.NormalizeIdentifier(identifier))
}

func (r *TenantRepository) List(ctx context.Context, params *tenant.FindParams) ([]*tenant.Tenant, error) {
	query := tenantFindQuery
	if params != nil && params.ActiveOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY identifier"
	if params != nil {
		if lo := repo.FormatLimitOffset(params.Limit, params.Offset); lo != "" {
			query += " " + lo
		}
	}
	return r.queryTenants(ctx, query)
}

func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	query := `
		INSERT INTO public.tenants (id, identifier, partition_key, name, is_active, plan_limits, key_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m, err := toDBTenant(t)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(
		ctx,
		query,
		m.ID,
		m.Identifier,
		m.PartitionKey,
		m.Name,
		m.IsActive,
		m.PlanLimits,
		m.KeyVersion,
		m.CreatedAt,
		m.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, tenant.ErrIdentifierTaken
		}
		return nil, errors.Wrap(err, "failed to insert tenant")
	}
	return r.GetByID(ctx, t.ID())
}

// Update persists the mutable fields. partition_key and key_version are never written here.
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	query := `
		UPDATE public.tenants
		SET name = $1, is_active = $2, plan_limits = $3, updated_at = $4
		WHERE id = $5
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m, err := toDBTenant(t)
	if err != nil {
		return nil, err
	}
	tag, err := tx.Exec(ctx, query, m.Name, m.IsActive, m.PlanLimits, m.UpdatedAt, m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update tenant")
	}
	if tag.RowsAffected() == 0 {
		return nil, tenant.ErrNotFound
	}
	return r.GetByID(ctx, t.ID())
}

func (r *TenantRepository) BumpKeyVersion(ctx context.Context, id uuid.UUID) (int, error) {
	query := `UPDATE public.tenants SET key_version = key_version + 1, updated_at = now() WHERE id = $1 RETURNING key_version`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var version int
	if err := tx.QueryRow(ctx, query, id.String()).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, tenant.ErrNotFound
		}
		return 0, errors.Wrap(err, "failed to bump key version")
	}
	return version, nil
}

func (r *TenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM public.tenants WHERE id = $1`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, query, id.String())
	return err
}

func (r *TenantRepository) getOne(ctx context.Context, query string, args ...any) (*tenant.Tenant, error) {
	tenants, err := r.queryTenants(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(tenants) == 0 {
		return nil, tenant.ErrNotFound
	}
	return tenants[0], nil
}

func (r *TenantRepository) queryTenants(ctx context.Context, query string, args ...any) ([]*tenant.Tenant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(
			&t.ID,
			&t.Identifier,
			&t.PartitionKey,
			&t.Name,
			&t.IsActive,
			&t.PlanLimits,
			&t.KeyVersion,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan tenant row")
		}
		domainTenant, err := toDomainTenant(&t)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map tenant row")
		}
		tenants = append(tenants, domainTenant)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return tenants, nil
}
