package itf

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantcore/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenantcore/modules/tenancy/domain/principal"
	"github.com/iota-uz/tenantcore/pkg/composables"
	"github.com/iota-uz/tenantcore/pkg/constants"
	"github.com/iota-uz/tenantcore/pkg/logging"
	"github.com/iota-uz/tenantcore/pkg/repo"
)

// TestContext provides a fluent API for building test contexts
type TestContext struct {
	ctx       context.Context
	tenant    *tenant.Tenant
	principal principal.Principal
	tx        repo.Tx
	logger    *logrus.Entry
	params    *composables.Params
}

func NewTestContext() *TestContext {
	return &TestContext{
		ctx:    context.Background(),
		logger: logging.Nop(),
	}
}

// WithTenant scopes the context to t.
func (tc *TestContext) WithTenant(t *tenant.Tenant) *TestContext {
	tc.tenant = t
	return tc
}

// WithTenantAdmin scopes the context to t and acts as an admin user of t.
func (tc *TestContext) WithTenantAdmin(t *tenant.Tenant) *TestContext {
	tc.tenant = t
	tc.principal = principal.NewTenantPrincipal(uuid.New(), t.ID(), "admin@"+t.Identifier()+".test", principal.RoleTenantAdmin)
	return tc
}

func (tc *TestContext) WithPrincipal(p principal.Principal) *TestContext {
	tc.principal = p
	return tc
}

// WithTx places tx in the context the way repositories expect to find it.
func (tc *TestContext) WithTx(tx repo.Tx) *TestContext {
	tc.tx = tx
	return tc
}

func (tc *TestContext) WithLogger(logger *logrus.Entry) *TestContext {
	tc.logger = logger
	return tc
}

func (tc *TestContext) WithParams(params *composables.Params) *TestContext {
	tc.params = params
	return tc
}

// Build assembles the context. Cancellation follows the test's lifetime.
func (tc *TestContext) Build(tb testing.TB) context.Context {
	tb.Helper()

	ctx, cancel := context.WithCancel(tc.ctx)
	tb.Cleanup(cancel)

	ctx = composables.WithLogger(ctx, tc.logger)
	if tc.tenant != nil {
		ctx = composables.PushTenant(ctx, tc.tenant)
	}
	if tc.principal != nil {
		ctx = composables.WithPrincipal(ctx, tc.principal)
	}
	if tc.tx != nil {
		ctx = context.WithValue(ctx, constants.TxKey, tc.tx)
	}
	if tc.params != nil {
		ctx = composables.WithParams(ctx, tc.params)
	}
	return ctx
}

// NewTenant builds an active tenant with a stable identifier for tests.
func NewTenant(identifier string, opts ...tenant.Option) *tenant.Tenant {
	return tenant.New(identifier, append([]tenant.Option{tenant.WithName(identifier)}, opts...)...)
}
