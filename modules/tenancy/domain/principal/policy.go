package principal

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const policyModel = `
[request_definition]
r = sub, cap

[policy_definition]
p = sub, cap

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.cap == p.cap
`

const (
	RoleTenantAdmin    = "tenant_admin"
	RoleTenantMember   = "tenant_member"
	RoleSystemOperator = "system_operator"
	RoleSystemJob      = "system_job"
	RoleCrossAuditor   = "cross_tenant_auditor"
)

var defaultGrants = map[string][]Capability{
	RoleTenantAdmin: {
		CapabilityTenantRead,
		CapabilityTenantWrite,
		CapabilityAuditRead,
		CapabilityConsentManage,
	},
	RoleTenantMember: {
		CapabilityTenantRead,
	},
	RoleSystemOperator: {
		CapabilityProvision,
		CapabilityKeyRotate,
		CapabilityAuditRead,
		CapabilityAuditPurge,
		CapabilityCrossTenantAudit,
	},
	RoleSystemJob: {
		CapabilityAuditPurge,
	},
	RoleCrossAuditor: {
		CapabilityAuditRead,
		CapabilityCrossTenantAudit,
	},
}

// Policy maps roles to capabilities.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

var defaultPolicy = sync.OnceValue(func() *Policy {
	p, err := NewPolicy(defaultGrants)
	if err != nil {
		panic(fmt.Errorf("principal: default policy: %w", err))
	}
	return p
})

// DefaultPolicy returns the built-in role grants.
func DefaultPolicy() *Policy {
	return defaultPolicy()
}

func NewPolicy(grants map[string][]Capability) (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	for role, caps := range grants {
		for _, c := range caps {
			if _, err := e.AddPolicy(role, string(c)); err != nil {
				return nil, fmt.Errorf("grant %s to %s: %w", c, role, err)
			}
		}
	}
	return &Policy{enforcer: e}, nil
}

// Allows reports whether any of the roles grants the capability.
func (p *Policy) Allows(roles []string, c Capability) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, string(c))
		if err == nil && ok {
			return true
		}
	}
	return false
}
