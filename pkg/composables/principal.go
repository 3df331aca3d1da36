package composables

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/constants"
)

func WithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, constants.PrincipalKey, p)
}

func UsePrincipal(ctx context.Context) (principal.Principal, bool) {
	p, ok := ctx.Value(constants.PrincipalKey).(principal.Principal)
	return p, ok && p != nil
}

// UseActorID returns the acting user's id, or nil for system and anonymous callers.
func UseActorID(ctx context.Context) *uuid.UUID {
	p, ok := UsePrincipal(ctx)
	if !ok {
		return nil
	}
	return p.ActorID()
}
