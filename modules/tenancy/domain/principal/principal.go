package principal

import (
	"strings"

	"github.com/google/uuid"
)

type Capability string

const (
	CapabilityTenantRead       Capability = "tenant:read"
	CapabilityTenantWrite      Capability = "tenant:write"
	CapabilityConsentManage    Capability = "consent:manage"
	CapabilityAuditRead        Capability = "audit:read"
	CapabilityAuditPurge       Capability = "audit:purge"
	CapabilityCrossTenantAudit Capability = "audit:read_cross_tenant"
	CapabilityProvision        Capability = "tenants:provision"
	CapabilityKeyRotate        Capability = "keys:rotate"
)

type Kind string

const (
	KindTenant Kind = "tenant"
	KindSystem Kind = "system"
)

// Principal is either a TenantPrincipal or a SystemPrincipal.
type Principal interface {
	Kind() Kind
	Subject() string
	// ActorID is nil for system principals.
	ActorID() *uuid.UUID
	// TenantID is false for principals not bound to a tenant.
	TenantID() (uuid.UUID, bool)
	Roles() []string
	Can(c Capability) bool

	sealed()
}

// TenantPrincipal is a user acting inside exactly one tenant.
type TenantPrincipal struct {
	userID   uuid.UUID
	tenantID uuid.UUID
	email    string
	roles    []string
	policy   *Policy
}

func NewTenantPrincipal(userID, tenantID uuid.UUID, email string, roles ...string) *TenantPrincipal {
	return &TenantPrincipal{
		userID:   userID,
		tenantID: tenantID,
		email:    email,
		roles:    roles,
		policy:   DefaultPolicy(),
	}
}

func (p *TenantPrincipal) Kind() Kind { return KindTenant }

func (p *TenantPrincipal) Subject() string { return "user:" + p.userID.String() }

func (p *TenantPrincipal) ActorID() *uuid.UUID {
	id := p.userID
	return &id
}

func (p *TenantPrincipal) TenantID() (uuid.UUID, bool) { return p.tenantID, true }

func (p *TenantPrincipal) Email() string { return p.email }

func (p *TenantPrincipal) Roles() []string { return append([]string(nil), p.roles...) }

func (p *TenantPrincipal) Can(c Capability) bool {
	// Tenant users never receive cross-tenant capabilities, whatever their roles say.
	if c == CapabilityCrossTenantAudit {
		return false
	}
	return p.policy.Allows(p.roles, c)
}

func (p *TenantPrincipal) sealed() {}

// SystemPrincipal is an operator or background job acting outside any single tenant.
type SystemPrincipal struct {
	name   string
	roles  []string
	policy *Policy
}

func NewSystemPrincipal(name string, roles ...string) *SystemPrincipal {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "system:") {
		name = "system:" + name
	}
	return &SystemPrincipal{
		name:   name,
		roles:  roles,
		policy: DefaultPolicy(),
	}
}

func (p *SystemPrincipal) Kind() Kind { return KindSystem }

func (p *SystemPrincipal) Subject() string { return p.name }

func (p *SystemPrincipal) ActorID() *uuid.UUID { return nil }

func (p *SystemPrincipal) TenantID() (uuid.UUID, bool) { return uuid.Nil, false }

func (p *SystemPrincipal) Roles() []string { return append([]string(nil), p.roles...) }

func (p *SystemPrincipal) Can(c Capability) bool { return p.policy.Allows(p.roles, c) }

func (p *SystemPrincipal) sealed() {}

// WithPolicy returns a copy of p evaluated against a different policy.
func (p *SystemPrincipal) WithPolicy(policy *Policy) *SystemPrincipal {
	cp := *p
	cp.policy = policy
	return &cp
}

// CanAccessTenant reports whether p may act on data of tenantID for the given capability.
// System principals need the capability; tenant principals additionally need to belong to tenantID.
func CanAccessTenant(p Principal, tenantID uuid.UUID, c Capability) bool {
	if p == nil {
		return false
	}
	switch v := p.(type) {
	case *TenantPrincipal:
		return v.tenantID == tenantID && v.Can(c)
	case *SystemPrincipal:
		return v.Can(c)
	default:
		return false
	}
}
