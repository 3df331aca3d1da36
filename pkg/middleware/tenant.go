package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/services"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/serrors"
)

type TenantResolver interface {
	Resolve(ctx context.Context, sig services.RequestSignal) (*tenant.Tenant, error)
}

// ResolveTenant makes the request's tenant current for the rest of the chain. When required is
// false, requests that carry no tenant signal pass through unscoped.
func ResolveTenant(resolver TenantResolver, required bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			t, err := resolver.Resolve(ctx, services.RequestSignalFromHTTP(r))
			switch {
			case err == nil:
			case errors.Is(err, services.ErrTenantRequired) && !required:
				next.ServeHTTP(w, r)
				return
			case errors.Is(err, services.ErrTenantRequired):
				writeError(w, http.StatusBadRequest, serrors.CodeTenantRequired, err.Error())
				return
			case errors.Is(err, services.ErrTenantNotFound):
				composables.UseLogger(ctx).WithField("host", r.Host).Warn("tenant not found for request")
				writeError(w, http.StatusNotFound, serrors.CodeTenantNotFound, err.Error())
				return
			default:
				composables.UseLogger(ctx).WithError(err).Error("tenant resolution failed")
				writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
				return
			}

			ctx = composables.PushTenant(ctx, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
