package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/adminuser"
	"github.com/iota-uz/tenantcore/modules/tenancy/infrastructure/persistence/models"
	"github.com/iota-uz/tenantcore/pkg/composables"
)


const userFindQuery = `SELECT id, tenant_id, email, password_hash, is_active, created_at FROM public.users`

type AdminUserRepository struct{}

func NewAdminUserRepository() adminuser.Repository {
	return &AdminUserRepository{}
}

func (r *AdminUserRepository) Create(ctx context.Context, u *adminuser.User) error {
	query := `
		INSERT INTO public.users (id, tenant_id, email, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, u.ID.String(), u.TenantID.String(), u.Email, u.PasswordHash, u.Active, u.CreatedAt); err != nil {
		return errors.Wrap(err, "failed to insert user")
	}
	return nil
}

func (r *AdminUserRepository) GetByEmail(ctx context.Context, email string) (*adminuser.User, error) {
	users, err := r.queryUsers(ctx, userFindQuery+" WHERE email = $1", adminuser.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, adminuser.ErrNotFound
	}
	return users[0], nil
}

func (r *AdminUserRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]*adminuser.User, error) {
	query := userFindQuery + " WHERE tenant_id = $1"
	if activeOnly {
		query += " AND is_active"
	}
	return r.queryUsers(ctx, query+" ORDER BY created_at", tenantID.String())
}

func (r *AdminUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM public.users WHERE id = $1`, id.String())
	return err
}

func (r *AdminUserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]*adminuser.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var users []*adminuser.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan user row")
		}
		du, err := toDomainUser(&u)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map user row")
		}
		users = append(users, du)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return users, nil
}
