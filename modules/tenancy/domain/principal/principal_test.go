package principal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTenantPrincipal_Capabilities(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	admin := NewTenantPrincipal(uuid.New(), tenantID, "owner@acme.test", RoleTenantAdmin)

	require.Equal(t, KindTenant, admin.Kind())
	require.True(t, admin.Can(CapabilityAuditRead))
	require.False(t, admin.Can(CapabilityKeyRotate))
	require.NotNil(t, admin.ActorID())

	got, ok := admin.TenantID()
	require.True(t, ok)
	require.Equal(t, tenantID, got)
}

func TestTenantPrincipal_NeverCrossTenant(t *testing.T) {
	t.Parallel()

	p := NewTenantPrincipal(uuid.New(), uuid.New(), "x@acme.test", RoleCrossAuditor, RoleTenantAdmin)
	require.False(t, p.Can(CapabilityCrossTenantAudit))
}

func TestSystemPrincipal_Capabilities(t *testing.T) {
	t.Parallel()

	op := NewSystemPrincipal("Tenantctl", RoleSystemOperator)
	require.Equal(t, "system:tenantctl", op.Subject())
	require.Nil(t, op.ActorID())
	require.True(t, op.Can(CapabilityCrossTenantAudit))
	require.True(t, op.Can(CapabilityProvision))

	job := NewSystemPrincipal("system:audit-retention", RoleSystemJob)
	require.Equal(t, "system:audit-retention", job.Subject())
	require.True(t, job.Can(CapabilityAuditPurge))
	require.False(t, job.Can(CapabilityCrossTenantAudit))
}

func TestCanAccessTenant(t *testing.T) {
	t.Parallel()

	acme, globex := uuid.New(), uuid.New()
	admin := NewTenantPrincipal(uuid.New(), acme, "a@acme.test", RoleTenantAdmin)

	require.True(t, CanAccessTenant(admin, acme, CapabilityAuditRead))
	require.False(t, CanAccessTenant(admin, globex, CapabilityAuditRead))
	require.True(t, CanAccessTenant(NewSystemPrincipal("ops", RoleSystemOperator), globex, CapabilityAuditRead))
	require.False(t, CanAccessTenant(nil, acme, CapabilityAuditRead))
}

func TestNewPolicy_CustomGrants(t *testing.T) {
	t.Parallel()

	policy, err := NewPolicy(map[string][]Capability{"reporter": {CapabilityCrossTenantAudit}})
	require.NoError(t, err)

	p := NewSystemPrincipal("reporting", "reporter").WithPolicy(policy)
	require.True(t, p.Can(CapabilityCrossTenantAudit))
	require.False(t, p.Can(CapabilityAuditPurge))
}
