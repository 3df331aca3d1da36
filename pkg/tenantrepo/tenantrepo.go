package tenantrepo

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/fieldcrypt"
	"github.com/iota-uz/tenantcore/pkg/serrors"
)

var (
	ErrNotFound              = serrors.NewError(serrors.CodeNotFound, "record not found", "Errors.NotFound")
	ErrTenantContextRequired = serrors.NewError(serrors.CodeTenantContextRequired, "operation requires a tenant in context", "Errors.TenantContextRequired")
	ErrCrossTenantViolation  = serrors.NewError(serrors.CodeCrossTenantViolation, "record belongs to a different tenant", "Errors.CrossTenantViolation")
	ErrTenantMismatch        = serrors.NewError(serrors.CodeTenantMismatch, "referenced record does not belong to the current tenant", "Errors.TenantMismatch")
	ErrPlanLimitExceeded     = serrors.NewError(serrors.CodePlanLimitExceeded, "plan limit exceeded", "Errors.PlanLimitExceeded")
)

// Entity is a record owned by exactly one tenant.
type Entity interface {
	GetID() uuid.UUID
	GetTenantID() uuid.UUID
	SetTenantID(id uuid.UUID)
}

// Mapper converts between an entity and its row. Rows always carry "id" and "tenant_id".
type Mapper[T Entity] interface {
	Table() string
	Columns() []string
	ToRow(e T) map[string]any
	FromRow(row map[string]any) (T, error)
}

// Sensitive is implemented by mappers whose rows hold encrypted columns.
type Sensitive interface {
	SensitiveFields() []fieldcrypt.Field
}

// SubjectResolver names the data subject a row belongs to, for consent checks on read.
type SubjectResolver interface {
	SubjectOf(row map[string]any) fieldcrypt.Subject
}

// Referencing is implemented by mappers whose rows point at other tenant-owned rows.
type Referencing interface {
	References() []Reference
}

// ReadAudited is implemented by mappers whose single-record reads must be audited.
type ReadAudited interface {
	AuditReads() bool
}

type Reference struct {
	Column   string
	Table    string
	Optional bool
}

type Filter struct {
	// Where holds equality conditions keyed by column.
	Where   map[string]any
	OrderBy string
	Limit   int
	Offset  int
}

// Store executes row operations against the storage pinned in ctx.
type Store interface {
	Select(ctx context.Context, table string, columns []string, tenantID uuid.UUID, f Filter) ([]map[string]any, error)
	Get(ctx context.Context, table string, columns []string, tenantID, id uuid.UUID) (map[string]any, error)
	// Owner returns the tenant of row id without filtering by tenant.
	Owner(ctx context.Context, table string, id uuid.UUID) (uuid.UUID, bool, error)
	Exists(ctx context.Context, table string, tenantID, id uuid.UUID) (bool, error)
	Count(ctx context.Context, table string, tenantID uuid.UUID, f Filter) (int64, error)
	Insert(ctx context.Context, table string, rows ...map[string]any) error
	Update(ctx context.Context, table string, tenantID, id uuid.UUID, row map[string]any) (int64, error)
	Delete(ctx context.Context, table string, tenantID, id uuid.UUID) (int64, error)
}

// Scoper pins storage to a tenant for the duration of fn. partition.Router implements it.
type Scoper interface {
	WithPartition(ctx context.Context, t *tenant.Tenant, fn func(context.Context) error) error
}

// DirectScope runs fn with t as the current tenant and no storage switching. Suitable for MemStore.
type DirectScope struct{}

func (DirectScope) WithPartition(ctx context.Context, t *tenant.Tenant, fn func(context.Context) error) error {
	return composables.RunScoped(ctx, t, fn)
}
