package services

import (
	"context"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/composables"
)

// authorize requires a principal in ctx holding c. Operator actions are never tenant-bound.
func authorize(ctx context.Context, c principal.Capability) error {
	p, ok := composables.UsePrincipal(ctx)
	if !ok || !p.Can(c) {
		return ErrForbidden
	}
	return nil
}
