package composables

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/pkg/constants"
	"github.com/iota-uz/tenantcore/pkg/serrors"
)

var ErrNoTenant = serrors.NewError(serrors.CodeTenantContextRequired, "no tenant in context", "Errors.TenantContextRequired")

// tenantFrame is immutable. Nested scopes link to the frame they shadow, so the caller's context
// still sees its own frame once the callee returns.
type tenantFrame struct {
	tenant *tenant.Tenant
	prev   *tenantFrame
	depth  int
}

func currentFrame(ctx context.Context) *tenantFrame {
	f, _ := ctx.Value(constants.TenantFrameKey).(*tenantFrame)
	return f
}

// PushTenant returns a child context in which t is the current tenant.
// Pushing nil masks any outer tenant.
func PushTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	prev := currentFrame(ctx)
	depth := 1
	if prev != nil {
		depth = prev.depth + 1
	}
	return context.WithValue(ctx, constants.TenantFrameKey, &tenantFrame{
		tenant: t,
		prev:   prev,
		depth:  depth,
	})
}

// PopTenant returns a context whose current tenant is the one active before the last push.
func PopTenant(ctx context.Context) (context.Context, error) {
	f := currentFrame(ctx)
	if f == nil {
		return ctx, ErrNoTenant
	}
	return context.WithValue(ctx, constants.TenantFrameKey, f.prev), nil
}

// UseTenant returns the current tenant.
func UseTenant(ctx context.Context) (*tenant.Tenant, error) {
	f := currentFrame(ctx)
	if f == nil || f.tenant == nil {
		return nil, ErrNoTenant
	}
	return f.tenant, nil
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	t, err := UseTenant(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return t.ID(), nil
}

// FrameDepth reports how many tenant frames are stacked in ctx.
func FrameDepth(ctx context.Context) int {
	f := currentFrame(ctx)
	if f == nil {
		return 0
	}
	return f.depth
}

// RunScoped runs fn with t as the current tenant. The caller's ctx is never modified, so the outer
// tenant is back in effect after fn returns, fails or panics.
func RunScoped(ctx context.Context, t *tenant.Tenant, fn func(context.Context) error) error {
	if t == nil {
		return ErrNoTenant
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(PushTenant(ctx, t))
}

func RunScopedResult[T any](ctx context.Context, t *tenant.Tenant, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := RunScoped(ctx, t, func(scoped context.Context) error {
		var innerErr error
		out, innerErr = fn(scoped)
		return innerErr
	})
	return out, err
}
