package partition

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/pkg/constants"
)

// Handle names a tenant's storage namespace (a Postgres schema).
type Handle struct {
	key string
}

// PartitionFor is a pure function of the tenant's partition key.
func PartitionFor(t *tenant.Tenant) Handle {
	return Handle{key: t.PartitionKey()}
}

func (h Handle) Key() string {
	return h.key
}

// Identifier returns the quoted schema name, safe to splice into SQL.
func (h Handle) Identifier() string {
	return pgx.Identifier{h.key}.Sanitize()
}

func (h Handle) IsZero() bool {
	return h.key == ""
}

func (h Handle) String() string {
	return h.key
}

func withHandle(ctx context.Context, h Handle) context.Context {
	return context.WithValue(ctx, constants.PartitionKey, h)
}

// UseHandle returns the partition pinned by the innermost WithPartition scope.
func UseHandle(ctx context.Context) (Handle, bool) {
	h, ok := ctx.Value(constants.PartitionKey).(Handle)
	return h, ok && !h.IsZero()
}
