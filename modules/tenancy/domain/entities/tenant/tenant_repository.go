package tenant

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantcore/pkg/serrors"
)

var (
	ErrNotFound        = serrors.NewError(serrors.CodeTenantNotFound, "tenant not found", "Errors.TenantNotFound")
	ErrIdentifierTaken = serrors.NewError("TENANT_IDENTIFIER_TAKEN", "tenant identifier is already in use", "Errors.TenantIdentifierTaken")
)

type FindParams struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Tenant, error)
	List(ctx context.Context, params *FindParams) ([]*Tenant, error)
	Create(ctx context.Context, t *Tenant) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) (*Tenant, error)
	// BumpKeyVersion increments the tenant's key version and returns the new value.
	BumpKeyVersion(ctx context.Context, id uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
