package services

import (
	"context"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/composables"
)

// authorize requires a principal in ctx that may use c inside the tenant in ctx.
func authorize(ctx context.Context, c principal.Capability) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	p, ok := composables.UsePrincipal(ctx)
	if !ok || !principal.CanAccessTenant(p, tenantID, c) {
		return ErrForbidden
	}
	return nil
}
